package filters

import (
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
	"github.com/mheily/go-kqueue/internal/notifypool"
	"github.com/mheily/go-kqueue/internal/procwait"
)

// procFilter implements EVFILT_PROC on top of internal/procwait, the
// SIGCHLD-watcher-thread strategy described in §4.8, rather than any host
// readiness primitive — there is no fd to hand the epoll backend.
type procFilter struct {
	store *knote.Store
	wake  func()
}

// NewProcFilter builds the EVFILT_PROC filter instance.
func NewProcFilter(store *knote.Store, wake func()) filter.Filter {
	return &procFilter{store: store, wake: wake}
}

func (f *procFilter) ID() kevent.Filter { return kevent.EVFILT_PROC }
func (f *procFilter) Init() error       { return nil }
func (f *procFilter) Destroy() error    { return nil }

// KnoteCreate forces ONESHOT|CLEAR: a proc knote only ever reports the
// single exit event it was created to observe (§4.8).
func (f *procFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	k.Kev.Flags |= kevent.EV_ONESHOT | kevent.EV_CLEAR
	w := &procwait.Waiter{
		Pid: int(change.Ident),
		Notify: func(status int64) {
			_ = notifypool.Submit(func() { f.onExit(k, status) })
		},
	}
	k.Handle = w
	return procwait.Shared.Watch(w)
}

// KnoteModify only exists to satisfy the Filter interface; a proc knote
// carries no mutable fflags once created (NOTE_EXIT is implied).
func (f *procFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	return nil
}

func (f *procFilter) KnoteDelete(k *knote.Knote) error {
	w, ok := k.Handle.(*procwait.Waiter)
	if !ok {
		return nil
	}
	procwait.Shared.Unwatch(w)
	return nil
}

func (f *procFilter) KnoteEnable(k *knote.Knote) error  { return nil }
func (f *procFilter) KnoteDisable(k *knote.Knote) error { return nil }

// onExit runs on a notifypool goroutine, off the SIGCHLD watcher thread.
func (f *procFilter) onExit(k *knote.Knote, status int64) {
	if k.Disabled {
		return
	}
	k.Data = status
	f.store.MarkReady(k)
	f.wake()
}

// Copyout reports the waitpid-encoded exit status and NOTE_EXIT; fork and
// exec tracking are out of reach on this backend strategy (§4.8 exit-only
// limitation, recorded as a supplemented-feature gap in SPEC_FULL.md).
func (f *procFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	ev := k.Kev
	ev.Fflags = kevent.NOTE_EXIT
	ev.Data, _ = k.Data.(int64)
	out[0] = ev
	return 1, nil
}
