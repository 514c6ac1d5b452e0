package mainloop

import (
	"sync/atomic"
)

// IdlerFunc is invoked once per loop pass while nothing else is pending.
// Returning true keeps the idler registered; returning false removes it.
type IdlerFunc func() bool

type idlerStatus uint32

const (
	idlerReady idlerStatus = iota
	idlerReadyOnNextPass
	idlerDeleted
)

// Idler is the handle for a registered idle callback.
type Idler struct {
	fn     IdlerFunc
	status atomic.Uint32
}

// AddIdler registers fn to run on every loop pass. An idler registered
// while idlers are mid-dispatch does not run until the next pass, so an
// idler that re-registers itself cannot spin the CPU within one pass.
//
// Safe to call from any goroutine, including from within callbacks.
func (l *Loop) AddIdler(fn IdlerFunc) (*Idler, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}

	idler := &Idler{fn: fn}

	l.mu.Lock()
	if l.state.IsTerminal() {
		l.mu.Unlock()
		return nil, ErrLoopTerminated
	}
	if l.idlerProcessing {
		idler.status.Store(uint32(idlerReadyOnNextPass))
	}
	l.idlers = append(l.idlers, idler)
	l.mu.Unlock()

	l.notify()
	return idler, nil
}

// CancelIdler cancels a registered idler. It is idempotent and returns
// false if the idler was already cancelled or removed. Mid-dispatch
// cancellation tombstones the entry and defers the removal to the sweep.
func (l *Loop) CancelIdler(idler *Idler) bool {
	if idler == nil || idlerStatus(idler.status.Load()) == idlerDeleted {
		return false
	}

	l.mu.Lock()
	if idlerStatus(idler.status.Load()) == idlerDeleted {
		l.mu.Unlock()
		return false
	}
	idler.status.Store(uint32(idlerDeleted))
	l.idlerPendingDel++
	if !l.idlerProcessing {
		l.idlerSweepLocked()
	}
	l.mu.Unlock()

	return true
}

// idlerSweepLocked physically removes tombstoned idlers from the
// accumulator. Must be called with the bookkeeping lock held, and never
// while a dispatch iteration is in flight.
func (l *Loop) idlerSweepLocked() {
	if l.idlerPendingDel == 0 {
		return
	}
	for i := len(l.idlers) - 1; i >= 0; i-- {
		if idlerStatus(l.idlers[i].status.Load()) != idlerDeleted {
			continue
		}
		l.idlers = append(l.idlers[:i], l.idlers[i+1:]...)
		l.idlerPendingDel--
		if l.idlerPendingDel == 0 {
			break
		}
	}
}

// idlerFirstLocked returns the first live idler, or nil.
func (l *Loop) idlerFirstLocked() *Idler {
	for _, idler := range l.idlers {
		if idlerStatus(idler.status.Load()) == idlerDeleted {
			continue
		}
		return idler
	}
	return nil
}

// idlerDispatch runs one full pass over the idler snapshot in
// registration order. Timeouts are re-processed after every single idler
// invocation so a long idle run cannot starve timers that became due.
// At the end of the pass every ready-on-next-pass entry, including ones
// registered during the pass, flips to ready.
func (l *Loop) idlerDispatch() {
	l.mu.Lock()
	l.idlerProc, l.idlers = l.idlers, l.idlerProc[:0]
	l.idlerProcessing = true
	l.mu.Unlock()

	ran := 0
	for _, idler := range l.idlerProc {
		if !l.loopCheck() {
			break
		}
		if idlerStatus(idler.status.Load()) != idlerReady {
			continue
		}

		ran++
		if !idler.fn() {
			l.mu.Lock()
			if idlerStatus(idler.status.Load()) != idlerDeleted {
				idler.status.Store(uint32(idlerDeleted))
				l.idlerPendingDel++
			}
			l.mu.Unlock()
		}

		l.timeoutDispatch()
	}

	l.mu.Lock()
	merged := append(l.idlerProc, l.idlers...)
	l.idlerProc = l.idlers[:0]
	l.idlers = merged
	for _, idler := range l.idlers {
		idler.status.CompareAndSwap(uint32(idlerReadyOnNextPass), uint32(idlerReady))
	}
	l.idlerSweepLocked()
	l.idlerProcessing = false
	l.mu.Unlock()

	if ran > 0 {
		l.stats.recordIdlers(ran)
	}
}
