//go:build linux
// +build linux

package backend

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Inotify wraps one inotify(7) instance. One instance is shared by every
// EVFILT_VNODE knote in a kqueue, following os/linux/vnode.c's single
// inotify_init() per kqueue design; individual watches are distinguished
// by watch descriptor.
type Inotify struct {
	fd int
}

// NewInotify creates a non-blocking inotify instance.
func NewInotify() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("inotify_init1", err)
	}
	return &Inotify{fd: fd}, nil
}

// FD returns the underlying file descriptor.
func (in *Inotify) FD() int { return in.fd }

// AddWatch registers path for the events in mask, returning its watch
// descriptor.
func (in *Inotify) AddWatch(path string, mask uint32) (int, error) {
	wd, err := unix.InotifyAddWatch(in.fd, path, mask)
	if err != nil {
		return 0, os.NewSyscallError("inotify_add_watch", err)
	}
	return wd, nil
}

// RemoveWatch unregisters a previously added watch descriptor.
func (in *Inotify) RemoveWatch(wd int) error {
	if _, err := unix.InotifyRmWatch(in.fd, uint32(wd)); err != nil {
		// The kernel auto-removes watches whose target was deleted; EINVAL
		// here just means the caller raced that removal.
		if err == unix.EINVAL {
			return nil
		}
		return os.NewSyscallError("inotify_rm_watch", err)
	}
	return nil
}

// InotifyRecord is one decoded inotify_event, with its variable-length
// Name trimmed of NUL padding.
type InotifyRecord struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Name   string
}

// Read drains and decodes pending inotify events.
func (in *Inotify) Read() ([]InotifyRecord, error) {
	var buf [4096]byte
	n, err := unix.Read(in.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, os.NewSyscallError("read", err)
	}
	var out []InotifyRecord
	off := 0
	for off+unix.SizeofInotifyEvent <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		rec := InotifyRecord{Wd: raw.Wd, Mask: raw.Mask, Cookie: raw.Cookie}
		nameStart := off + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if raw.Len > 0 && nameEnd <= n {
			name := buf[nameStart:nameEnd]
			if idx := indexByte(name, 0); idx >= 0 {
				name = name[:idx]
			}
			rec.Name = string(name)
		}
		out = append(out, rec)
		off = nameEnd
	}
	return out, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Close closes the inotify instance.
func (in *Inotify) Close() error {
	return os.NewSyscallError("close", unix.Close(in.fd))
}
