//go:build linux
// +build linux

package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// Eventfd wraps one eventfd(2) object, used as the EVFILT_USER transport in
// place of the original's socketpair-based filter_socketpair helper — an
// eventfd gives the same "write wakes a waiting reader" semantics with one
// fd instead of two.
type Eventfd struct {
	fd int
}

// NewEventfd creates a non-blocking eventfd with an initial counter of 0.
func NewEventfd() (*Eventfd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &Eventfd{fd: fd}, nil
}

// FD returns the underlying file descriptor.
func (e *Eventfd) FD() int { return e.fd }

// Raise increments the eventfd counter by 1, waking any epoll wait on it.
func (e *Eventfd) Raise() error {
	buf := [8]byte{1}
	if _, err := unix.Write(e.fd, buf[:]); err != nil {
		return os.NewSyscallError("write", err)
	}
	return nil
}

// Drain reads and resets the eventfd counter to 0.
func (e *Eventfd) Drain() error {
	var buf [8]byte
	if _, err := unix.Read(e.fd, buf[:]); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("read", err)
	}
	return nil
}

// Close closes the eventfd.
func (e *Eventfd) Close() error {
	return os.NewSyscallError("close", unix.Close(e.fd))
}
