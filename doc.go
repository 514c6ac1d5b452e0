// Package mainloop provides a single-threaded, run-to-completion event
// dispatch core for embedded and IoT runtimes, multiplexing periodic
// timeouts, idle callbacks, and foreign event sources into one coherent
// poll/dispatch cycle.
//
// # Architecture
//
// A [Loop] owns three collections: sorted timeouts ([Loop.AddTimeout]),
// idlers ([Loop.AddIdler]), and foreign sources ([Loop.AddSource]). Each
// pass of the loop runs a fixed phase order: source prepare, wait-bound
// computation, the platform poller's blocking wait, source check, timeout
// dispatch, idle dispatch, and source dispatch.
//
// Foreign sources fold a completely separate event loop into this one:
// the source exposes four lifecycle hooks (prepare, next-timeout, check,
// dispatch), and the host loop bounds its own blocking wait by the
// source's proposed timeout, so the foreign library's own wait call
// happens transparently inside the host's single poll.
//
// # Thread Safety
//
// All dispatch happens on the goroutine that called [Loop.Run] (or
// [Loop.Iterate]). Registration and cancellation methods are safe to
// call from any goroutine, including from within callbacks running on
// the loop goroutine: every collection keeps an externally visible
// accumulator, guarded by a single bookkeeping mutex, and a loop-private
// snapshot dispatched without the lock. Cancellation while a collection
// is mid-dispatch tombstones the entry and defers the physical removal
// to the sweep at the end of the phase.
//
// Callbacks run to completion; there is no per-callback timeout and no
// panic recovery. A callback's only communicated outcome is its boolean
// return value.
//
// # Usage
//
//	loop, err := mainloop.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	loop.AddTimeout(100*time.Millisecond, func() bool {
//		fmt.Println("tick")
//		loop.Quit(0)
//		return false
//	})
//
//	code, err := loop.Run(context.Background())
//	if err != nil {
//		log.Fatal(err)
//	}
//	loop.Shutdown(context.Background())
//	os.Exit(code)
//
// # Platform Support
//
// The default poller uses an eventfd on Linux and a self-pipe on Darwin
// for cross-goroutine wake-up; other platforms fall back to a portable
// channel-based poller. Embedders (RTOS-style tick-driven integrations)
// may supply their own [Poller] via [WithPoller] and drive single passes
// with [Loop.Iterate].
package mainloop
