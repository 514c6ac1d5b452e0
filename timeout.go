package mainloop

import (
	"sort"
	"sync/atomic"
	"time"
)

// TimeoutFunc is invoked when a timeout expires. Returning true re-arms
// the timeout for another period; returning false removes it.
type TimeoutFunc func() bool

// Timeout is the handle for a registered timeout. The handle stays valid
// until the timeout is cancelled or its callback returns false.
type Timeout struct {
	fn       TimeoutFunc
	period   time.Duration
	expire   time.Time
	removeMe atomic.Bool
}

// timeoutQueue is kept sorted ascending by absolute expiry.
type timeoutQueue []*Timeout

// search returns the insertion index for the given expiry, placing equal
// expiries after existing ones (stable FIFO among equals).
func (q timeoutQueue) search(expire time.Time) int {
	return sort.Search(len(q), func(i int) bool {
		return q[i].expire.After(expire)
	})
}

func (q timeoutQueue) insertSorted(t *Timeout) timeoutQueue {
	i := q.search(t.expire)
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = t
	return q
}

// updateSorted repositions the element at i after its expiry changed,
// shifting neighbors rather than re-sorting. Returns the new index.
func (q timeoutQueue) updateSorted(i int) int {
	t := q[i]
	for i+1 < len(q) && !q[i+1].expire.After(t.expire) {
		q[i] = q[i+1]
		i++
	}
	for i > 0 && q[i-1].expire.After(t.expire) {
		q[i] = q[i-1]
		i--
	}
	q[i] = t
	return i
}

// AddTimeout registers fn to run once period has elapsed, and again every
// period thereafter while fn keeps returning true. A zero period fires on
// every pass.
//
// Safe to call from any goroutine, including from within callbacks.
func (l *Loop) AddTimeout(period time.Duration, fn TimeoutFunc) (*Timeout, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if period < 0 {
		return nil, ErrNegativePeriod
	}

	t := &Timeout{
		fn:     fn,
		period: period,
		expire: time.Now().Add(period),
	}

	l.mu.Lock()
	if l.state.IsTerminal() {
		l.mu.Unlock()
		return nil, ErrLoopTerminated
	}
	l.timeouts = l.timeouts.insertSorted(t)
	l.mu.Unlock()

	l.notify()
	return t, nil
}

// CancelTimeout cancels a registered timeout. It is idempotent and
// returns false if the timeout was already cancelled or expired. When
// called while timeouts are mid-dispatch, the entry is tombstoned and
// swept at the end of the phase instead of being removed in place.
func (l *Loop) CancelTimeout(t *Timeout) bool {
	if t == nil || t.removeMe.Load() {
		return false
	}

	l.mu.Lock()
	if !t.removeMe.CompareAndSwap(false, true) {
		l.mu.Unlock()
		return false
	}
	l.timeoutPendingDel++
	if !l.timeoutProcessing {
		l.timeoutSweepLocked()
	}
	l.mu.Unlock()

	return true
}

// timeoutSweepLocked physically removes tombstoned timeouts from the
// accumulator. Must be called with the bookkeeping lock held, and never
// while a dispatch iteration is in flight.
func (l *Loop) timeoutSweepLocked() {
	if l.timeoutPendingDel == 0 {
		return
	}
	for i := len(l.timeouts) - 1; i >= 0; i-- {
		if !l.timeouts[i].removeMe.Load() {
			continue
		}
		l.timeouts = append(l.timeouts[:i], l.timeouts[i+1:]...)
		l.timeoutPendingDel--
		if l.timeoutPendingDel == 0 {
			break
		}
	}
}

// timeoutFirstLocked returns the earliest live timeout, or nil.
func (l *Loop) timeoutFirstLocked() *Timeout {
	for _, t := range l.timeouts {
		if t.removeMe.Load() {
			continue
		}
		return t
	}
	return nil
}

// timeoutDispatch runs every due timeout in expiry order against a
// loop-private snapshot. The snapshot is sorted, so the iteration stops
// at the first entry that is not yet due. Callbacks that return true are
// re-armed to now+period and repositioned within the snapshot.
func (l *Loop) timeoutDispatch() {
	l.mu.Lock()
	l.timeoutProc, l.timeouts = l.timeouts, l.timeoutProc[:0]
	l.timeoutProcessing = true
	l.mu.Unlock()

	fired := 0
	now := time.Now()
	for i := 0; i < len(l.timeoutProc); {
		t := l.timeoutProc[i]

		if !l.loopCheck() {
			break
		}
		if t.removeMe.Load() {
			i++
			continue
		}
		if t.expire.After(now) {
			break
		}

		fired++
		if !t.fn() {
			l.mu.Lock()
			if t.removeMe.CompareAndSwap(false, true) {
				l.timeoutPendingDel++
			}
			l.mu.Unlock()
			i++
			continue
		}

		t.expire = now.Add(t.period)
		if l.timeoutProc.updateSorted(i) == i {
			i++
		}
	}

	l.mu.Lock()
	for _, t := range l.timeoutProc {
		l.timeouts = l.timeouts.insertSorted(t)
	}
	l.timeoutProc = l.timeoutProc[:0]
	l.timeoutSweepLocked()
	l.timeoutProcessing = false
	l.mu.Unlock()

	if fired > 0 {
		l.stats.recordTimeouts(fired)
	}
}
