package filters

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

// vnodeState is the knote's back-end handle, reachable through the
// knote's Handle field via Store.LookupByData — the secondary-key lookup
// §4.1 describes — since onReadable only has the watch descriptor to
// resolve a knote by, not its ident.
type vnodeState struct {
	wd   int32
	path string
}

type vnodeFilter struct {
	mu    sync.Mutex
	be    backend.Backend
	store *knote.Store
	in    *backend.Inotify
	desc  *backend.Desc
	wake  func()
}

// NewVnodeFilter builds the EVFILT_VNODE filter instance.
func NewVnodeFilter(be backend.Backend, store *knote.Store, wake func()) filter.Filter {
	return &vnodeFilter{be: be, store: store, wake: wake}
}

func (f *vnodeFilter) ID() kevent.Filter { return kevent.EVFILT_VNODE }

func (f *vnodeFilter) Init() error {
	in, err := backend.NewInotify()
	if err != nil {
		return err
	}
	f.in = in
	f.desc = backend.NewDesc(f.be)
	f.desc.FD = in.FD()
	f.desc.OnRead = func(interface{}) error { return f.onReadable() }
	return f.desc.Control(backend.Readable)
}

func (f *vnodeFilter) Destroy() error {
	if f.desc != nil {
		_ = f.desc.Close()
	}
	if f.in != nil {
		return f.in.Close()
	}
	return nil
}

// noteMaskToInotify translates the public fflags mask to IN_* bits.
func noteMaskToInotify(fflags uint32) uint32 {
	var mask uint32
	if fflags&kevent.NOTE_DELETE != 0 {
		mask |= unix.IN_DELETE_SELF
	}
	if fflags&kevent.NOTE_WRITE != 0 {
		mask |= unix.IN_MODIFY
	}
	if fflags&kevent.NOTE_EXTEND != 0 {
		mask |= unix.IN_MODIFY
	}
	if fflags&kevent.NOTE_ATTRIB != 0 {
		mask |= unix.IN_ATTRIB
	}
	if fflags&kevent.NOTE_LINK != 0 {
		mask |= unix.IN_ATTRIB
	}
	if fflags&kevent.NOTE_RENAME != 0 {
		mask |= unix.IN_MOVE_SELF
	}
	return mask
}

func inotifyMaskToNote(mask uint32) uint32 {
	var fflags uint32
	if mask&(unix.IN_DELETE_SELF|unix.IN_DELETE) != 0 {
		fflags |= kevent.NOTE_DELETE
	}
	if mask&unix.IN_MODIFY != 0 {
		fflags |= kevent.NOTE_WRITE | kevent.NOTE_EXTEND
	}
	if mask&unix.IN_ATTRIB != 0 {
		fflags |= kevent.NOTE_ATTRIB
	}
	if mask&(unix.IN_MOVE_SELF|unix.IN_MOVED_FROM) != 0 {
		fflags |= kevent.NOTE_RENAME
	}
	return fflags
}

func (f *vnodeFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", change.Ident))
	if err != nil {
		return err
	}
	mask := noteMaskToInotify(change.Fflags)
	wd, err := f.in.AddWatch(path, mask)
	if err != nil {
		return err
	}
	k.Handle = &vnodeState{wd: int32(wd), path: path}
	return nil
}

func (f *vnodeFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	st, ok := k.Handle.(*vnodeState)
	if !ok {
		return f.KnoteCreate(k, change)
	}
	mask := noteMaskToInotify(change.Fflags)
	wd, err := f.in.AddWatch(st.path, mask)
	if err != nil {
		return err
	}
	st.wd = int32(wd)
	return nil
}

func (f *vnodeFilter) KnoteDelete(k *knote.Knote) error {
	st, ok := k.Handle.(*vnodeState)
	if !ok {
		return nil
	}
	return f.in.RemoveWatch(int(st.wd))
}

func (f *vnodeFilter) KnoteEnable(k *knote.Knote) error  { return nil }
func (f *vnodeFilter) KnoteDisable(k *knote.Knote) error { return nil }

func (f *vnodeFilter) onReadable() error {
	records, err := f.in.Read()
	if err != nil {
		return err
	}
	for _, rec := range records {
		k, ok := f.store.LookupByData(func(v interface{}) bool {
			st, ok := v.(*vnodeState)
			return ok && st.wd == rec.Wd
		})
		if !ok {
			continue // knote deleted after the kernel queued this record
		}
		if !k.Disabled {
			fflags := inotifyMaskToNote(rec.Mask)
			if fflags&kevent.NOTE_ATTRIB != 0 && k.Kev.Fflags&kevent.NOTE_DELETE != 0 {
				fflags |= f.reconcileDelete(k)
			}
			k.Data = int64(fflags)
			f.store.MarkReady(k)
			f.wake()
		}
		k.Release()
	}
	return nil
}

// reconcileDelete distinguishes a true unlink from an attribute change
// when the application still holds the file open (§4.6 edge case): stat
// the link count, since some hosts report ATTRIB instead of DELETE in
// that situation.
func (f *vnodeFilter) reconcileDelete(k *knote.Knote) uint32 {
	st, ok := k.Handle.(*vnodeState)
	if !ok {
		return 0
	}
	var stat unix.Stat_t
	if err := unix.Stat(st.path, &stat); err != nil {
		return kevent.NOTE_DELETE
	}
	if stat.Nlink == 0 {
		return kevent.NOTE_DELETE
	}
	return 0
}

// Copyout produces one event reporting the mask of change classes
// actually observed.
func (f *vnodeFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	ev := k.Kev
	fflags, _ := k.Data.(int64)
	ev.Fflags = uint32(fflags)
	out[0] = ev
	return 1, nil
}
