//go:build linux || darwin

package mainloop

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// fdPoller is the default Poller on Unix platforms. It blocks in
// select(2) on a wake-up descriptor: an eventfd on Linux, a self-pipe
// on Darwin. Writes to the descriptor persist until drained, so a wake
// posted before Wait begins still terminates it immediately.
type fdPoller struct {
	readFd  int
	writeFd int
	buf     [8]byte
	closed  atomic.Bool
}

func newDefaultPoller() (Poller, error) {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &fdPoller{readFd: readFd, writeFd: writeFd}, nil
}

func (p *fdPoller) Wait(timeout time.Duration) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	var readFds unix.FdSet
	readFds.Zero()
	readFds.Set(p.readFd)

	n, err := unix.Select(p.readFd+1, &readFds, nil, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	if n > 0 && readFds.IsSet(p.readFd) {
		p.drain()
	}
	return nil
}

// drain consumes all pending wake-up tokens.
func (p *fdPoller) drain() {
	for {
		if _, err := unix.Read(p.readFd, p.buf[:]); err != nil {
			return
		}
	}
}

func (p *fdPoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(p.writeFd, one[:])
	return err
}

func (p *fdPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(p.readFd)
	if p.writeFd != p.readFd {
		if cerr := unix.Close(p.writeFd); err == nil {
			err = cerr
		}
	}
	return err
}
