package mainloop

import (
	"sync/atomic"
	"time"
)

// Poller supplies the blocking wait and the cross-goroutine wake-up
// primitive the loop depends on. The default platform poller is created
// by [New]; embedders integrating a different platform (an RTOS tick, a
// simulation clock) supply their own via [WithPoller].
//
// Wake must be safe to call from any goroutine at any time, and a wake
// posted while no Wait is in flight must cause the next Wait to return
// immediately (level-triggered until consumed).
type Poller interface {
	// Wait blocks until a wake signal or the timeout elapses. A negative
	// timeout blocks indefinitely; zero polls without blocking.
	Wait(timeout time.Duration) error
	// Wake causes a concurrent or future Wait to return promptly.
	Wake() error
	// Close releases the poller's resources. Subsequent Waits fail with
	// ErrPollerClosed.
	Close() error
}

// chanPoller is a portable, channel-based Poller with no platform
// dependencies. It backs the default poller on platforms without a
// native wake-up descriptor and is convenient for tests and embedding.
type chanPoller struct {
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewChanPoller returns a portable channel-based [Poller].
func NewChanPoller() Poller {
	return &chanPoller{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (p *chanPoller) Wait(timeout time.Duration) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}

	if timeout == 0 {
		select {
		case <-p.wake:
		default:
		}
		return nil
	}

	if timeout < 0 {
		select {
		case <-p.wake:
		case <-p.done:
		}
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.wake:
	case <-p.done:
	case <-timer.C:
	}
	return nil
}

func (p *chanPoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *chanPoller) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.done)
	}
	return nil
}
