//go:build linux
// +build linux

package backend

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sizeofSignalfdSiginfo = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))

// Signalfd wraps a signalfd(2) descriptor watching a fixed set of signals.
// Unlike the legacy libkqueue design which recreates the fd on every
// add/remove, this keeps one signalfd per EVFILT_SIGNAL filter instance and
// re-registers the full mask in place, following the same
// sigaddset/sigdelset-then-signalfd pattern.
type Signalfd struct {
	fd   int
	mask unix.Sigset_t
}

// NewSignalfd creates a non-blocking signalfd with an empty signal mask.
func NewSignalfd() (*Signalfd, error) {
	fd, err := unix.Signalfd(-1, &unix.Sigset_t{}, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("signalfd", err)
	}
	return &Signalfd{fd: fd}, nil
}

// FD returns the underlying file descriptor.
func (s *Signalfd) FD() int { return s.fd }

// Add starts watching sig, blocking its default disposition so it only
// arrives through the signalfd.
func (s *Signalfd) Add(sig unix.Signal) error {
	addSignal(&s.mask, sig)
	return s.apply()
}

// Remove stops watching sig.
func (s *Signalfd) Remove(sig unix.Signal) error {
	delSignal(&s.mask, sig)
	return s.apply()
}

func (s *Signalfd) apply() error {
	if err := unix.SigprocMask(unix.SIG_SETMASK, &s.mask, nil); err != nil {
		return os.NewSyscallError("sigprocmask", err)
	}
	if _, err := unix.Signalfd(s.fd, &s.mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC); err != nil {
		return os.NewSyscallError("signalfd", err)
	}
	return nil
}

// Read drains pending signalfd_siginfo records.
func (s *Signalfd) Read() ([]unix.SignalfdSiginfo, error) {
	var buf [64]unix.SignalfdSiginfo
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*sizeofSignalfdSiginfo)
	n, err := unix.Read(s.fd, raw)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, os.NewSyscallError("read", err)
	}
	count := n / sizeofSignalfdSiginfo
	return buf[:count], nil
}

// Close closes the signalfd.
func (s *Signalfd) Close() error {
	return os.NewSyscallError("close", unix.Close(s.fd))
}

func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	word, bit := sigWordBit(sig)
	set.Val[word] |= 1 << bit
}

func delSignal(set *unix.Sigset_t, sig unix.Signal) {
	word, bit := sigWordBit(sig)
	set.Val[word] &^= 1 << bit
}

func sigWordBit(sig unix.Signal) (word, bit uint) {
	s := uint(sig) - 1
	return uint(s / 64), s % 64
}
