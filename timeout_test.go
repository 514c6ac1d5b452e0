package mainloop

import (
	"math/rand"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(WithPoller(NewChanPoller()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return l
}

// runOnePass drives a single deterministic, non-blocking pass.
func runOnePass(t *testing.T, l *Loop) {
	t.Helper()
	if err := l.Iterate(); err != nil {
		t.Fatalf("Iterate() failed: %v", err)
	}
}

func TestAddTimeoutValidation(t *testing.T) {
	l := newTestLoop(t)

	if _, err := l.AddTimeout(time.Second, nil); err != ErrNilCallback {
		t.Errorf("nil callback: got %v, want ErrNilCallback", err)
	}
	if _, err := l.AddTimeout(-time.Second, func() bool { return false }); err != ErrNegativePeriod {
		t.Errorf("negative period: got %v, want ErrNegativePeriod", err)
	}
}

func TestTimeoutFiresAndReArms(t *testing.T) {
	l := newTestLoop(t)

	fired := 0
	_, err := l.AddTimeout(0, func() bool {
		fired++
		return fired < 3
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		runOnePass(t, l)
	}

	if fired != 3 {
		t.Errorf("fired %d times, want 3", fired)
	}

	l.mu.Lock()
	remaining := len(l.timeouts)
	l.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d timeouts remain after stop, want 0", remaining)
	}
}

func TestTimeoutQueueSortedInvariant(t *testing.T) {
	l := newTestLoop(t)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		period := time.Duration(rng.Intn(1000)) * time.Millisecond
		if _, err := l.AddTimeout(period, func() bool { return true }); err != nil {
			t.Fatalf("AddTimeout failed: %v", err)
		}
	}

	assertSorted := func() {
		t.Helper()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i := 1; i < len(l.timeouts); i++ {
			if l.timeouts[i].expire.Before(l.timeouts[i-1].expire) {
				t.Fatalf("queue out of order at %d: %v before %v",
					i, l.timeouts[i].expire, l.timeouts[i-1].expire)
			}
		}
	}

	assertSorted()
	for i := 0; i < 3; i++ {
		runOnePass(t, l)
		assertSorted()
	}
}

func TestCancelTimeoutIdempotent(t *testing.T) {
	l := newTestLoop(t)

	handle, err := l.AddTimeout(time.Hour, func() bool { return true })
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	if !l.CancelTimeout(handle) {
		t.Error("first cancel returned false, want true")
	}
	if l.CancelTimeout(handle) {
		t.Error("second cancel returned true, want false")
	}
	if l.CancelTimeout(nil) {
		t.Error("nil cancel returned true, want false")
	}
}

// A timeout cancelled from within another timeout's callback in the
// same pass must never fire, even when both are due at the same time.
func TestCancelTimeoutFromSiblingCallback(t *testing.T) {
	l := newTestLoop(t)

	var second *Timeout
	secondFired := false

	_, err := l.AddTimeout(0, func() bool {
		l.CancelTimeout(second)
		return false
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	second, err = l.AddTimeout(0, func() bool {
		secondFired = true
		return false
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		runOnePass(t, l)
	}

	if secondFired {
		t.Error("cancelled timeout fired")
	}
}

func TestTimeoutRegisteredFromCallback(t *testing.T) {
	l := newTestLoop(t)

	nestedFired := false
	_, err := l.AddTimeout(0, func() bool {
		if _, err := l.AddTimeout(0, func() bool {
			nestedFired = true
			return false
		}); err != nil {
			t.Errorf("nested AddTimeout failed: %v", err)
		}
		return false
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	runOnePass(t, l)
	runOnePass(t, l)

	if !nestedFired {
		t.Error("timeout registered from a callback never fired")
	}
}

func TestWaitBoundClampsOverdue(t *testing.T) {
	l := newTestLoop(t)

	if _, err := l.AddTimeout(0, func() bool { return true }); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	if wait := l.waitBound(); wait != 0 {
		t.Errorf("waitBound = %v, want 0 for an overdue timeout", wait)
	}
}

func TestWaitBoundDefaultsToMaxWait(t *testing.T) {
	l := newTestLoop(t)

	if wait := l.waitBound(); wait != defaultMaxWait {
		t.Errorf("waitBound = %v, want %v with nothing pending", wait, defaultMaxWait)
	}
}

func TestUpdateSortedRepositions(t *testing.T) {
	mk := func(offsets ...int) timeoutQueue {
		var q timeoutQueue
		base := time.Unix(1000, 0)
		for _, off := range offsets {
			q = append(q, &Timeout{expire: base.Add(time.Duration(off) * time.Second)})
		}
		return q
	}

	q := mk(1, 2, 3, 4)
	q[0].expire = q[3].expire.Add(time.Second)
	if got := q.updateSorted(0); got != 3 {
		t.Errorf("updateSorted moved to %d, want 3", got)
	}
	for i := 1; i < len(q); i++ {
		if q[i].expire.Before(q[i-1].expire) {
			t.Fatalf("queue out of order after update")
		}
	}

	q = mk(1, 2, 3, 4)
	q[3].expire = q[0].expire.Add(-time.Second)
	if got := q.updateSorted(3); got != 0 {
		t.Errorf("updateSorted moved to %d, want 0", got)
	}
}
