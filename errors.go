package mainloop

import (
	"errors"
)

// Standard errors.
var (
	// ErrLoopRunning is returned when Run() or Iterate() is called on a
	// loop that is already running.
	ErrLoopRunning = errors.New("mainloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a
	// loop that has been shut down.
	ErrLoopTerminated = errors.New("mainloop: loop has been shut down")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("mainloop: cannot call Run from within the loop")

	// ErrNilCallback is returned when a timeout or idler is registered
	// with a nil callback.
	ErrNilCallback = errors.New("mainloop: nil callback")

	// ErrNilHandler is returned when a source is registered with a nil handler.
	ErrNilHandler = errors.New("mainloop: nil source handler")

	// ErrNegativePeriod is returned when a timeout is registered with a
	// negative period.
	ErrNegativePeriod = errors.New("mainloop: negative timeout period")

	// ErrPollerClosed is returned by poller operations after Close.
	ErrPollerClosed = errors.New("mainloop: poller closed")
)
