//go:build linux
// +build linux

package backend

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Timerfd wraps one timerfd(2) object. Unlike the legacy single
// shared-timerfd design that coalesces every timer knote onto one minimum
// interval, this module allocates one Timerfd per EVFILT_TIMER knote, so
// each timer has an independent deadline and period.
type Timerfd struct {
	fd int
}

// NewTimerfd creates a non-blocking timerfd on CLOCK_MONOTONIC.
func NewTimerfd() (*Timerfd, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}
	return &Timerfd{fd: fd}, nil
}

// FD returns the underlying file descriptor.
func (t *Timerfd) FD() int { return t.fd }

// Set arms the timer to first fire after d, then (if period > 0) every
// period thereafter. period == 0 means one-shot.
func (t *Timerfd) Set(d, period time.Duration) error {
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(d.Nanoseconds()),
		Interval: unix.NsecToTimespec(period.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}
	return nil
}

// Drain reads and discards the expiration counter, returning the number of
// expirations since the last read.
func (t *Timerfd) Drain() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, os.NewSyscallError("read", err)
	}
	if n != 8 {
		return 0, nil
	}
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56, nil
}

// Close closes the timerfd.
func (t *Timerfd) Close() error {
	return os.NewSyscallError("close", unix.Close(t.fd))
}
