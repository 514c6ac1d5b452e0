package mainloop

import (
	"testing"
	"time"
)

func TestAddIdlerValidation(t *testing.T) {
	l := newTestLoop(t)

	if _, err := l.AddIdler(nil); err != ErrNilCallback {
		t.Errorf("nil callback: got %v, want ErrNilCallback", err)
	}
}

func TestIdlerRunsUntilFalse(t *testing.T) {
	l := newTestLoop(t)

	runs := 0
	if _, err := l.AddIdler(func() bool {
		runs++
		return runs < 2
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		runOnePass(t, l)
	}

	if runs != 2 {
		t.Errorf("idler ran %d times, want 2", runs)
	}

	l.mu.Lock()
	remaining := len(l.idlers)
	l.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d idlers remain after stop, want 0", remaining)
	}
}

// An idler registered from within an idler callback must not run in the
// current pass, and must run in the very next one.
func TestIdlerRegisteredMidPassDefersOnePass(t *testing.T) {
	l := newTestLoop(t)

	innerRan := false
	if _, err := l.AddIdler(func() bool {
		if _, err := l.AddIdler(func() bool {
			innerRan = true
			return false
		}); err != nil {
			t.Errorf("nested AddIdler failed: %v", err)
		}
		return false
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	runOnePass(t, l)
	if innerRan {
		t.Fatal("idler registered mid-pass ran in the same pass")
	}

	runOnePass(t, l)
	if !innerRan {
		t.Error("idler registered mid-pass did not run in the next pass")
	}
}

func TestCancelIdlerIdempotent(t *testing.T) {
	l := newTestLoop(t)

	handle, err := l.AddIdler(func() bool { return true })
	if err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	if !l.CancelIdler(handle) {
		t.Error("first cancel returned false, want true")
	}
	if l.CancelIdler(handle) {
		t.Error("second cancel returned true, want false")
	}
	if l.CancelIdler(nil) {
		t.Error("nil cancel returned true, want false")
	}

	ran := false
	if _, err := l.AddIdler(func() bool { ran = true; return false }); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	cancelled, err := l.AddIdler(func() bool {
		t.Error("cancelled idler ran")
		return false
	})
	if err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	l.CancelIdler(cancelled)

	runOnePass(t, l)
	if !ran {
		t.Error("surviving idler did not run")
	}
}

// Timers must keep firing while an idler stays permanently ready.
func TestIdlerDoesNotStarveTimeouts(t *testing.T) {
	l := newTestLoop(t)

	idlerRuns := 0
	if _, err := l.AddIdler(func() bool {
		idlerRuns++
		return true
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	timerFires := 0
	if _, err := l.AddTimeout(0, func() bool {
		timerFires++
		return true
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		time.Sleep(time.Millisecond)
		runOnePass(t, l)
	}

	if idlerRuns == 0 {
		t.Error("idler never ran")
	}
	if timerFires == 0 {
		t.Error("timer starved by a permanently ready idler")
	}
}

// A timer registered from an idler body on the loop goroutine is picked
// up by the nested timer dispatch without waking the poller.
func TestIdlerRegistersTimeout(t *testing.T) {
	l := newTestLoop(t)

	fired := false
	if _, err := l.AddIdler(func() bool {
		if _, err := l.AddTimeout(0, func() bool {
			fired = true
			return false
		}); err != nil {
			t.Errorf("AddTimeout from idler failed: %v", err)
		}
		return false
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	runOnePass(t, l)
	runOnePass(t, l)

	if !fired {
		t.Error("timer registered from an idler never fired")
	}
}

func TestWaitBoundZeroWithReadyIdler(t *testing.T) {
	l := newTestLoop(t)

	if _, err := l.AddIdler(func() bool { return true }); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	if wait := l.waitBound(); wait != 0 {
		t.Errorf("waitBound = %v, want 0 with a ready idler", wait)
	}
}
