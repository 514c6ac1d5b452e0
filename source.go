package mainloop

import (
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// SourceHandler is the hook table describing a foreign event source: an
// externally owned sub-reactor folded into this loop. Check and Dispatch
// are mandatory; a handler may additionally implement [SourcePreparer],
// [SourceTimeouter], and [SourceDisposer].
//
// A foreign event loop with its own descriptors and timers embeds itself
// by proposing its next internal deadline via NextTimeout and performing
// its own internal wait-and-dispatch inside Dispatch.
type SourceHandler interface {
	// Check is called after the poller's wait returns; true marks the
	// source ready for dispatch this pass.
	Check(data any) bool
	// Dispatch is called once per pass for every source marked ready by
	// either Prepare or Check.
	Dispatch(data any)
}

// SourcePreparer is an optional SourceHandler hook, called before the
// poller's wait. Returning true means the source has events now; the
// loop then polls without blocking.
type SourcePreparer interface {
	Prepare(data any) bool
}

// SourceTimeouter is an optional SourceHandler hook proposing an upper
// bound for the poller's blocking wait. Returning false means the source
// proposes no timeout.
type SourceTimeouter interface {
	NextTimeout(data any) (time.Duration, bool)
}

// SourceDisposer is an optional SourceHandler hook, invoked exactly once
// when the source is removed or when the loop shuts down, after which
// the data pointer is never touched again.
type SourceDisposer interface {
	Dispose(data any)
}

// Source is the handle for a registered foreign source.
type Source struct {
	handler  SourceHandler
	data     any
	ready    bool // loop goroutine only
	removeMe atomic.Bool
	disposed atomic.Bool
}

// Data returns the opaque context the source was registered with. The
// registrant retains ownership of it.
func (s *Source) Data() any {
	return s.data
}

func (s *Source) dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	if d, ok := s.handler.(SourceDisposer); ok {
		d.Dispose(s.data)
	}
}

// AddSource registers a foreign event source with its opaque context.
// Sources are prepared, checked, and dispatched in registration order.
//
// Safe to call from any goroutine, including from within callbacks.
func (l *Loop) AddSource(handler SourceHandler, data any) (*Source, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := &Source{handler: handler, data: data}

	l.mu.Lock()
	if l.state.IsTerminal() {
		l.mu.Unlock()
		return nil, ErrLoopTerminated
	}
	l.sources = append(l.sources, s)
	l.mu.Unlock()

	l.notify()
	return s, nil
}

// RemoveSource removes a registered source. The Dispose hook runs
// exactly once, outside the bookkeeping lock, either immediately or, if
// sources are mid-dispatch, at the end of the phase.
func (l *Loop) RemoveSource(s *Source) {
	if s == nil || s.removeMe.Load() {
		return
	}

	l.mu.Lock()
	if !s.removeMe.CompareAndSwap(false, true) {
		l.mu.Unlock()
		return
	}
	l.sourcePendingDel++
	if !l.sourceProcessing {
		l.sourceSweepLocked()
	}
	l.mu.Unlock()
}

// sourceSweepLocked physically removes tombstoned sources from the
// accumulator and runs their Dispose hooks with the lock released, so a
// hostile dispose that re-enters the registry cannot deadlock. Must be
// called with the bookkeeping lock held, and never while a dispatch
// iteration is in flight.
func (l *Loop) sourceSweepLocked() {
	if l.sourcePendingDel == 0 {
		return
	}

	pending := queue.New()
	for i := len(l.sources) - 1; i >= 0; i-- {
		s := l.sources[i]
		if !s.removeMe.Load() {
			continue
		}
		l.sources = append(l.sources[:i], l.sources[i+1:]...)
		pending.Add(s)
		l.sourcePendingDel--
		if l.sourcePendingDel == 0 {
			break
		}
	}

	if pending.Length() == 0 {
		return
	}
	l.mu.Unlock()
	for pending.Length() > 0 {
		pending.Remove().(*Source).dispose()
	}
	l.mu.Lock()
}

func (l *Loop) sourceStealLocked() {
	l.sourceProc, l.sources = l.sources, l.sourceProc[:0]
	l.sourceProcessing = true
}

func (l *Loop) sourceMergeLocked() {
	merged := append(l.sourceProc, l.sources...)
	l.sourceProc = l.sources[:0]
	l.sources = merged
	l.sourceSweepLocked()
	l.sourceProcessing = false
}

// sourcePrepare runs phase 1 of the source protocol: every live source's
// Prepare hook, defaulting to "not ready" when the hook is absent.
// Returns true if any source has events now, meaning the poller must not
// block this pass.
func (l *Loop) sourcePrepare() bool {
	l.mu.Lock()
	l.sourceStealLocked()
	l.mu.Unlock()

	ready := false
	for _, s := range l.sourceProc {
		if !l.loopCheck() {
			break
		}
		if s.removeMe.Load() {
			continue
		}
		if p, ok := s.handler.(SourcePreparer); ok {
			s.ready = p.Prepare(s.data)
			ready = ready || s.ready
		} else {
			s.ready = false
		}
	}

	l.mu.Lock()
	l.sourceMergeLocked()
	l.mu.Unlock()

	return ready
}

// sourceNextTimeoutLocked runs phase 2: the minimum wait proposed across
// all sources exposing NextTimeout, clamped to zero when already
// overdue. Must be called with the bookkeeping lock held; the lock is
// released while the hooks run.
func (l *Loop) sourceNextTimeoutLocked() (time.Duration, bool) {
	l.sourceStealLocked()
	l.mu.Unlock()

	var next time.Duration
	found := false
	for _, s := range l.sourceProc {
		if s.removeMe.Load() {
			continue
		}
		st, ok := s.handler.(SourceTimeouter)
		if !ok {
			continue
		}
		d, ok := st.NextTimeout(s.data)
		if !ok {
			continue
		}
		if d < 0 {
			d = 0
		}
		if !found || d < next {
			next = d
		}
		found = true
	}

	l.mu.Lock()
	l.sourceMergeLocked()
	return next, found
}

// sourceCheck runs phase 3, after the poller's wait: every live source's
// Check hook, ORed into the ready flag set during prepare.
func (l *Loop) sourceCheck() {
	l.mu.Lock()
	l.sourceStealLocked()
	l.mu.Unlock()

	for _, s := range l.sourceProc {
		if !l.loopCheck() {
			break
		}
		if s.removeMe.Load() {
			continue
		}
		s.ready = s.ready || s.handler.Check(s.data)
	}

	l.mu.Lock()
	l.sourceMergeLocked()
	l.mu.Unlock()
}

// sourceDispatch runs phase 4: Dispatch on every source marked ready by
// prepare or check, clearing the ready flag afterwards.
func (l *Loop) sourceDispatch() {
	l.mu.Lock()
	l.sourceStealLocked()
	l.mu.Unlock()

	dispatched := 0
	for _, s := range l.sourceProc {
		if !l.loopCheck() {
			break
		}
		if s.removeMe.Load() {
			continue
		}
		if s.ready {
			dispatched++
			s.handler.Dispatch(s.data)
			s.ready = false
		}
	}

	l.mu.Lock()
	l.sourceMergeLocked()
	l.mu.Unlock()

	if dispatched > 0 {
		l.stats.recordSources(dispatched)
	}
}
