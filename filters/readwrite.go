// Package filters implements the seven event classes (§4.3-§4.8) on top of
// internal/backend, internal/procwait and internal/notifypool.
package filters

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
	"github.com/mheily/go-kqueue/log"
)

// descKind classifies a descriptor the way knote_get_socket_type does in
// the original C implementation, to pick the right readiness strategy.
type descKind int

const (
	kindOther descKind = iota
	kindRegularFile
	kindStreamSocket
	kindListenSocket
)

func classify(fd int) (descKind, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return kindOther, os.NewSyscallError("fstat", err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return kindRegularFile, nil
	case unix.S_IFSOCK:
		if v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN); err == nil && v != 0 {
			return kindListenSocket, nil
		}
		return kindStreamSocket, nil
	default:
		return kindOther, nil
	}
}

// fdState multiplexes a READ and a WRITE knote registered on the same
// descriptor into one backend registration, since epoll forbids
// registering a descriptor twice (§4.3).
type fdState struct {
	fd         int
	kind       descKind
	desc       *backend.Desc
	efd        *backend.Eventfd // regular-file surrogate, nil otherwise
	read       *knote.Knote
	write      *knote.Knote
	registered bool // true once desc.FD has been added to epoll (EPOLL_CTL_ADD issued)
}

// rwShared is the per-kqueue table of fdState, shared by the read and
// write filter instances.
type rwShared struct {
	mu         sync.Mutex
	byFD       map[int]*fdState
	be         backend.Backend
	readStore  *knote.Store
	writeStore *knote.Store
	wake       func()
}

// NewReadWriteFilters builds the paired EVFILT_READ/EVFILT_WRITE filter
// instances. They are registered separately in the filter table but share
// one fd-state table and backend. wake is invoked after a knote is marked
// ready, to wake a Kevent call blocked waiting for readiness.
func NewReadWriteFilters(be backend.Backend, readStore, writeStore *knote.Store, wake func()) (filter.Filter, filter.Filter) {
	shared := &rwShared{byFD: make(map[int]*fdState), be: be, readStore: readStore, writeStore: writeStore, wake: wake}
	return &rwFilter{id: kevent.EVFILT_READ, shared: shared}, &rwFilter{id: kevent.EVFILT_WRITE, shared: shared}
}

type rwFilter struct {
	id     kevent.Filter
	shared *rwShared
}

func (f *rwFilter) ID() kevent.Filter { return f.id }
func (f *rwFilter) Init() error       { return nil }
func (f *rwFilter) Destroy() error    { return nil }

func (f *rwFilter) isRead() bool { return f.id == kevent.EVFILT_READ }

func (f *rwFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	s := f.shared
	fd := int(change.Ident)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byFD[fd]
	if !ok {
		kind, err := classify(fd)
		if err != nil {
			return err
		}
		desc := backend.NewDesc(s.be)
		desc.FD = fd
		st = &fdState{fd: fd, kind: kind, desc: desc}
		s.byFD[fd] = st
		desc.Data = st
		desc.OnRead = func(data interface{}) error { return s.onReadable(data.(*fdState)) }
		desc.OnWrite = func(data interface{}) error { return s.onWritable(data.(*fdState)) }
		desc.OnHup = func(data interface{}) { s.onHup(data.(*fdState)) }

		if kind == kindRegularFile {
			efd, err := backend.NewEventfd()
			if err != nil {
				return err
			}
			st.efd = efd
			desc.FD = efd.FD()
		}
	}

	if f.isRead() {
		st.read = k
	} else {
		st.write = k
	}
	k.Handle = st

	if st.kind == kindRegularFile {
		if st.efd != nil {
			_ = st.efd.Raise()
		}
	}
	return controlFDState(st)
}

func (f *rwFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	return f.KnoteCreate(k, change)
}

func (f *rwFilter) KnoteDelete(k *knote.Knote) error {
	s := f.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := k.Handle.(*fdState)
	if !ok {
		return nil // already detached: idempotent per §4.3
	}
	if f.isRead() {
		st.read = nil
	} else {
		st.write = nil
	}
	if st.read == nil && st.write == nil {
		delete(s.byFD, st.fd)
		if st.efd != nil {
			_ = st.efd.Close()
		}
		return st.desc.Close()
	}
	return controlFDState(st)
}

func (f *rwFilter) KnoteEnable(k *knote.Knote) error  { return nil }
func (f *rwFilter) KnoteDisable(k *knote.Knote) error { return nil }

// controlFDState (knote_create/modify/delete's common tail) recomputes the
// union interest mask for st's descriptor and applies it.
// The first successful Control on a descriptor issues EPOLL_CTL_ADD
// (Readable/Writable/ReadWriteable); every subsequent change to the same
// descriptor — a second direction registering, or one direction being
// deleted — must use EPOLL_CTL_MOD (ModReadable/ModWritable/
// ModReadWriteable) instead, or epoll_ctl returns EEXIST (§4.3, teacher's
// tcpconn.go distinguishes the two the same way).
func controlFDState(st *fdState) error {
	var want backend.Event
	switch {
	case st.read != nil && !st.read.Disabled && st.write != nil && !st.write.Disabled:
		want = backend.ReadWriteable
	case st.read != nil && !st.read.Disabled:
		want = backend.Readable
	case st.write != nil && !st.write.Disabled:
		want = backend.Writable
	default:
		return nil // both disabled: leave the primitive armed, swallow readiness (invariant 5)
	}
	if st.registered {
		switch want {
		case backend.Readable:
			want = backend.ModReadable
		case backend.Writable:
			want = backend.ModWritable
		case backend.ReadWriteable:
			want = backend.ModReadWriteable
		}
	}
	if err := st.desc.Control(want); err != nil {
		return errors.Wrap(err, "backend control")
	}
	st.registered = true
	return nil
}

func (s *rwShared) onReadable(st *fdState) error {
	if st.read == nil || st.read.Disabled {
		return nil
	}
	if st.kind == kindRegularFile {
		off, eof := regularFileRemaining(st.fd)
		st.read.Data = off
		if eof {
			st.read.Kev.Flags |= kevent.EV_EOF
		}
		if st.efd != nil {
			_ = st.efd.Drain()
		}
	} else if st.kind == kindListenSocket {
		st.read.Data = int64(1)
	} else {
		n, err := unix.IoctlGetInt(st.fd, unix.FIONREAD)
		if err != nil {
			n = 0
		}
		st.read.Data = int64(n)
	}
	s.readStore.MarkReady(st.read)
	s.wake()
	return nil
}

func (s *rwShared) onWritable(st *fdState) error {
	if st.write == nil || st.write.Disabled {
		return nil
	}
	sndbuf, err := unix.GetsockoptInt(st.fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		sndbuf = 1
	}
	st.write.Data = int64(sndbuf)
	s.writeStore.MarkReady(st.write)
	s.wake()
	return nil
}

func (s *rwShared) onHup(st *fdState) {
	log.Debugf("fd %d hung up", st.fd)
	if st.read != nil {
		st.read.Kev.Flags |= kevent.EV_EOF
		s.readStore.MarkReady(st.read)
	}
	if st.write != nil {
		st.write.Kev.Flags |= kevent.EV_EOF
		s.writeStore.MarkReady(st.write)
	}
	s.wake()
}

// regularFileRemaining computes the byte offset from the descriptor's
// current position to end-of-file, per §4.3's regular-file strategy.
func regularFileRemaining(fd int) (remaining int64, atEOF bool) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, true
	}
	cur, err := unix.Seek(fd, 0, unix.SEEK_CUR)
	if err != nil {
		return 0, true
	}
	remaining = st.Size - cur
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining == 0
}

// Copyout produces the public event for a ready knote on this filter.
func (f *rwFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	ev := k.Kev
	ev.Data, _ = k.Data.(int64)
	out[0] = ev
	return 1, nil
}
