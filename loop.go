package mainloop

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Loop is the event-dispatch core: a single-goroutine, run-to-completion
// reactor multiplexing timeouts, idlers, and foreign sources.
//
// All dispatch happens on the goroutine that called Run (or Iterate).
// Registration and cancellation are safe from any goroutine; see the
// package documentation for the double-buffering discipline backing
// that guarantee.
type Loop struct { //nolint:govet // betteralign:ignore
	// Prevent copying
	_ [0]func()

	id     uuid.UUID
	state  *loopState
	poller Poller

	// mu is the single bookkeeping lock guarding every accumulator and
	// its pending-deletion counter. It is never held while a callback
	// runs.
	mu sync.Mutex

	timeouts          timeoutQueue
	timeoutProc       timeoutQueue
	timeoutPendingDel int
	timeoutProcessing bool

	idlers          []*Idler
	idlerProc       []*Idler
	idlerPendingDel int
	idlerProcessing bool

	sources          []*Source
	sourceProc       []*Source
	sourcePendingDel int
	sourceProcessing bool

	// runDone is created per Run and closed when the run loop exits;
	// Shutdown waits on it. Guarded by mu.
	runDone chan struct{}

	loopGoroutineID atomic.Uint64
	wakePending     atomic.Uint32
	exitCode        atomic.Int32

	log    *Logger
	stats  statsRecorder
	tuning Tuning
}

// New creates an initialized loop. The returned handle is the explicit
// lifecycle object: it accepts registrations immediately, runs via Run
// or Iterate, and is consumed by Shutdown.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	poller := cfg.poller
	if poller == nil {
		poller, err = newDefaultPoller()
		if err != nil {
			return nil, err
		}
	}

	return &Loop{
		id:     uuid.New(),
		state:  newLoopState(),
		poller: poller,
		log:    cfg.logger,
		stats:  newStatsRecorder(cfg.tuning.Metrics, cfg.logger),
		tuning: cfg.tuning,
	}, nil
}

// Run executes the loop on the calling goroutine, which becomes the
// loop goroutine, and blocks until Quit is called (returning the exit
// code passed to it) or ctx is cancelled (returning ctx.Err()). After
// Run returns the loop is stopped but not shut down; Run may be called
// again until Shutdown.
func (l *Loop) Run(ctx context.Context) (int, error) {
	if l.isLoopGoroutine() {
		return 0, ErrReentrantRun
	}

	if !l.state.TryTransition(StateReady, StateRunning) {
		if l.state.IsTerminal() {
			return 0, ErrLoopTerminated
		}
		return 0, ErrLoopRunning
	}

	l.exitCode.Store(0)

	done := make(chan struct{})
	l.mu.Lock()
	l.runDone = done
	l.mu.Unlock()
	defer close(done)

	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	l.log.Debug().Str("loop", l.id.String()).Log("run")

	// Watcher wakes the loop when ctx is cancelled.
	watcherDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.state.TryTransition(StateRunning, StateQuitting)
			l.wake()
		case <-watcherDone:
		}
	}()
	defer close(watcherDone)

	for l.state.Load() == StateRunning {
		if err := l.iterate(false); err != nil {
			l.state.TryTransition(StateRunning, StateQuitting)
			l.state.TryTransition(StateQuitting, StateReady)
			return 0, err
		}
	}

	l.state.TryTransition(StateQuitting, StateReady)

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	code := int(l.exitCode.Load())
	l.log.Debug().Str("loop", l.id.String()).Int("code", code).Log("run finished")
	return code, nil
}

// Iterate executes exactly one loop pass without blocking in the
// poller, for tick-driven integrations where the platform, not this
// loop, owns the blocking wait. It must not be called concurrently with
// Run or with another Iterate.
func (l *Loop) Iterate() error {
	if !l.state.TryTransition(StateReady, StateRunning) {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrLoopRunning
	}

	prev := l.loopGoroutineID.Swap(goroutineID())
	err := l.iterate(true)
	l.loopGoroutineID.Store(prev)

	// A Quit issued mid-pass ends the pass early; either way the loop
	// returns to Ready.
	if !l.state.TryTransition(StateRunning, StateReady) {
		l.state.TryTransition(StateQuitting, StateReady)
	}
	return err
}

// Quit requests a cooperative stop of a running loop, recording the
// exit code for Run to return. The in-flight pass completes; dispatch
// loops re-check the running flag between entries so the request takes
// effect promptly. Callable from any goroutine; a no-op when the loop
// is not running. The first Quit wins.
func (l *Loop) Quit(code int) {
	if !l.state.TryTransition(StateRunning, StateQuitting) {
		return
	}
	l.exitCode.Store(int32(code))
	l.log.Debug().Str("loop", l.id.String()).Int("code", code).Log("quit")
	l.wake()
}

// Shutdown stops the loop if it is running, disposes every remaining
// timeout, idler, and source (source Dispose hooks run exactly once, in
// registration order, without the bookkeeping lock), and releases the
// poller. It blocks until termination completes or ctx expires.
// Shutdown is terminal: every subsequent operation fails with
// ErrLoopTerminated, as does a second Shutdown.
func (l *Loop) Shutdown(ctx context.Context) error {
	for {
		switch st := l.state.Load(); st {
		case StateTerminated:
			return ErrLoopTerminated

		case StateReady:
			if !l.state.TryTransition(StateReady, StateTerminated) {
				continue
			}
			l.disposeAll()
			if err := l.poller.Close(); err != nil {
				l.log.Err().Str("loop", l.id.String()).Err(err).Log("poller close failed")
			}
			l.log.Debug().Str("loop", l.id.String()).Log("shutdown")
			return nil

		case StateRunning:
			l.Quit(0)

		case StateQuitting:
		}

		l.mu.Lock()
		done := l.runDone
		l.mu.Unlock()
		if done == nil {
			// Iterate-driven pass in flight; yield and retry.
			runtime.Gosched()
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// disposeAll tombstones and releases every remaining registration.
// Source Dispose hooks run in registration order, outside the lock.
func (l *Loop) disposeAll() {
	l.mu.Lock()
	timeouts := l.timeouts
	idlers := l.idlers
	sources := l.sources
	l.timeouts, l.timeoutProc, l.timeoutPendingDel = nil, nil, 0
	l.idlers, l.idlerProc, l.idlerPendingDel = nil, nil, 0
	l.sources, l.sourceProc, l.sourcePendingDel = nil, nil, 0
	l.mu.Unlock()

	for _, t := range timeouts {
		t.removeMe.Store(true)
	}
	for _, idler := range idlers {
		idler.status.Store(uint32(idlerDeleted))
	}
	for _, s := range sources {
		s.removeMe.Store(true)
	}
	for _, s := range sources {
		s.dispose()
	}
}

// loopCheck reports whether dispatch should keep iterating; it turns
// false as soon as a quit is requested.
func (l *Loop) loopCheck() bool {
	return l.state.Load() == StateRunning
}

// iterate executes one full pass: source prepare, wait-bound
// computation, the poller's wait, source check, timeout dispatch, idle
// dispatch, and source dispatch, in that order.
func (l *Loop) iterate(nonBlocking bool) error {
	start := time.Now()

	ready := l.sourcePrepare()

	wait := l.waitBound()
	if ready || nonBlocking {
		wait = 0
	}

	if err := l.poller.Wait(wait); err != nil {
		l.log.Err().Str("loop", l.id.String()).Err(err).Log("poll failed")
		return fmt.Errorf("mainloop: poll: %w", err)
	}
	l.wakePending.Store(0)

	l.sourceCheck()
	l.timeoutDispatch()
	l.idlerDispatch()
	l.sourceDispatch()

	l.stats.recordPass(time.Since(start))
	return nil
}

// waitBound computes how long the poller may block: zero when any idler
// is pending, otherwise the minimum of the earliest timeout and every
// source-proposed deadline, clamped to zero when overdue and capped by
// the tuning's MaxWait.
func (l *Loop) waitBound() time.Duration {
	l.mu.Lock()

	if l.idlerFirstLocked() != nil {
		l.mu.Unlock()
		return 0
	}

	wait := l.tuning.MaxWait
	if next, ok := l.sourceNextTimeoutLocked(); ok && next < wait {
		wait = next
	}
	if t := l.timeoutFirstLocked(); t != nil {
		d := time.Until(t.expire)
		if d < 0 {
			d = 0
		}
		if d < wait {
			wait = d
		}
	}

	l.mu.Unlock()
	return wait
}

// wake signals the poller, deduplicated so concurrent registrations
// post at most one wake-up per pass.
func (l *Loop) wake() {
	if l.wakePending.CompareAndSwap(0, 1) {
		if err := l.poller.Wake(); err != nil {
			l.wakePending.Store(0)
		}
	}
}

// notify wakes the loop after a registration from another goroutine, so
// new work becomes visible without waiting out the current poll.
func (l *Loop) notify() {
	if !l.isLoopGoroutine() {
		l.wake()
	}
}

// isLoopGoroutine checks if we're on the loop goroutine.
func (l *Loop) isLoopGoroutine() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID returns the current goroutine's ID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
