//go:build !linux && !darwin

package mainloop

// newDefaultPoller falls back to the portable channel-based poller on
// platforms without a native wake-up descriptor.
func newDefaultPoller() (Poller, error) {
	return NewChanPoller(), nil
}
