package mainloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the main loop.
//
// State Machine:
//
//	StateReady (0) → StateRunning (1)       [Run() / Iterate()]
//	StateRunning (1) → StateQuitting (2)    [Quit()]
//	StateQuitting (2) → StateReady (0)      [run loop exits]
//	StateReady (0) → StateTerminated (3)    [Shutdown()]
//	StateTerminated (3) → (terminal)
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for reversible states (Running, Quitting)
//   - StateTerminated is terminal; there is no transition out of it
type LoopState uint32

const (
	// StateReady indicates the loop is initialized and not running.
	StateReady LoopState = iota
	// StateRunning indicates the loop is executing passes.
	StateRunning
	// StateQuitting indicates a quit was requested; the current pass
	// completes cooperatively before the loop stops.
	StateQuitting
	// StateTerminated indicates the loop has been shut down.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateQuitting:
		return "Quitting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state machine using atomic CAS operations.
type loopState struct {
	v atomic.Uint32
}

func newLoopState() *loopState {
	return &loopState{}
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal returns true if the current state is terminal (Terminated).
func (s *loopState) IsTerminal() bool {
	return s.Load() == StateTerminated
}
