//go:build linux
// +build linux

package procwait

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// procSiginfo overlays the Pid/Uid/Status fields the kernel actually
// writes into a SIGCHLD siginfo_t. unix.Siginfo exposes only Signo/Errno
// /Code plus 112 bytes of opaque padding, so reading the fields
// waitid(2) fills in for the _sifields._sigchld union requires
// reinterpreting that padding directly, matching the layout
// original_source/src/posix/proc.c relies on from <bits/siginfo.h>.
type procSiginfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	Uid    uint32
	Status int32
}

// unsafeSiginfo reinterprets a *unix.Siginfo as *procSiginfo. Both start
// with the same Signo/Errno/Code/pad header; procSiginfo simply names the
// union fields instead of leaving them as opaque bytes.
func unsafeSiginfo(info *unix.Siginfo) unsafe.Pointer {
	return unsafe.Pointer(info)
}

// siginfoBytes views a SignalfdSiginfo as a byte slice for a raw read(2)
// into the struct.
func siginfoBytes(s *unix.SignalfdSiginfo) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(s)), unsafe.Sizeof(*s))
}
