package filters

import (
	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

// userState is the knote's back-end handle: a counter-style eventfd that
// Trigger raises and copy-out lowers, per §4.7.
type userState struct {
	efd  *backend.Eventfd
	desc *backend.Desc
}

type userFilter struct {
	be    backend.Backend
	store *knote.Store
	wake  func()
}

// NewUserFilter builds the EVFILT_USER filter instance.
func NewUserFilter(be backend.Backend, store *knote.Store, wake func()) filter.Filter {
	return &userFilter{be: be, store: store, wake: wake}
}

func (f *userFilter) ID() kevent.Filter { return kevent.EVFILT_USER }
func (f *userFilter) Init() error       { return nil }
func (f *userFilter) Destroy() error    { return nil }

// mergeFflags applies the fflags merge protocol: the top two bits of
// change select no-op/and/or/copy, applied to stored using the low 24
// bits of change (§4.7).
func mergeFflags(stored, change uint32) uint32 {
	ctrl := change & kevent.NOTE_FFCTRLMASK
	val := change & kevent.NOTE_FFLAGSMASK
	switch ctrl {
	case kevent.NOTE_FFAND:
		return stored & val
	case kevent.NOTE_FFOR:
		return stored | val
	case kevent.NOTE_FFCOPY:
		return val
	default: // NOTE_FFNOP
		return stored
	}
}

func (f *userFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	efd, err := backend.NewEventfd()
	if err != nil {
		return err
	}
	desc := backend.NewDesc(f.be)
	desc.FD = efd.FD()
	desc.Data = k
	desc.OnRead = func(data interface{}) error { return f.onTrigger(data.(*knote.Knote)) }
	k.Handle = &userState{efd: efd, desc: desc}
	k.Kev.Fflags = mergeFflags(0, change.Fflags) & kevent.NOTE_FFLAGSMASK
	if err := desc.Control(backend.Readable); err != nil {
		return err
	}
	if change.Fflags&kevent.NOTE_TRIGGER != 0 {
		return efd.Raise()
	}
	return nil
}

func (f *userFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	st, ok := k.Handle.(*userState)
	if !ok {
		return f.KnoteCreate(k, change)
	}
	k.Kev.Fflags = mergeFflags(k.Kev.Fflags, change.Fflags) & kevent.NOTE_FFLAGSMASK
	if change.Fflags&kevent.NOTE_TRIGGER != 0 {
		return st.efd.Raise()
	}
	return nil
}

func (f *userFilter) KnoteDelete(k *knote.Knote) error {
	st, ok := k.Handle.(*userState)
	if !ok {
		return nil
	}
	_ = st.desc.Close()
	return st.efd.Close()
}

func (f *userFilter) KnoteEnable(k *knote.Knote) error  { return nil }
func (f *userFilter) KnoteDisable(k *knote.Knote) error { return nil }

func (f *userFilter) onTrigger(k *knote.Knote) error {
	if k.Disabled {
		return nil
	}
	f.store.MarkReady(k)
	f.wake()
	return nil
}

// Copyout returns the knote's stored fflags verbatim (the trigger bit
// itself is never stored, per §4.7) and lowers the eventfd counter when
// CLEAR/DISPATCH/ONESHOT semantics call for it.
func (f *userFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	if st, ok := k.Handle.(*userState); ok {
		if k.Kev.Flags&(kevent.EV_CLEAR|kevent.EV_DISPATCH|kevent.EV_ONESHOT) != 0 {
			_ = st.efd.Drain()
		}
	}
	out[0] = k.Kev
	return 1, nil
}
