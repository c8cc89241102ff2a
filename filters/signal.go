package filters

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

// signalFilter implements EVFILT_SIGNAL via one shared signalfd per
// kqueue (§4.4 strategy A): the mask holds the signal number of every
// registered signal knote. Create and enable add the signal and delete
// removes it; disable leaves the mask unchanged and readiness is swallowed
// instead.
type signalFilter struct {
	mu    sync.Mutex
	be    backend.Backend
	store *knote.Store
	sigfd *backend.Signalfd
	desc  *backend.Desc
	wake  func()
}

// NewSignalFilter builds the EVFILT_SIGNAL filter instance.
func NewSignalFilter(be backend.Backend, store *knote.Store, wake func()) filter.Filter {
	return &signalFilter{be: be, store: store, wake: wake}
}

func (f *signalFilter) ID() kevent.Filter { return kevent.EVFILT_SIGNAL }

func (f *signalFilter) Init() error {
	sigfd, err := backend.NewSignalfd()
	if err != nil {
		return err
	}
	f.sigfd = sigfd
	f.desc = backend.NewDesc(f.be)
	f.desc.FD = sigfd.FD()
	f.desc.Data = f
	f.desc.OnRead = func(interface{}) error { return f.onReadable() }
	return f.desc.Control(backend.Readable)
}

func (f *signalFilter) Destroy() error {
	if f.desc != nil {
		_ = f.desc.Close()
	}
	if f.sigfd != nil {
		return f.sigfd.Close()
	}
	return nil
}

func (f *signalFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	// §4.4: every signal knote is forced CLEAR (deliveries are edge events).
	k.Kev.Flags |= kevent.EV_CLEAR
	return f.sigfd.Add(unix.Signal(change.Ident))
}

func (f *signalFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	return nil
}

func (f *signalFilter) KnoteDelete(k *knote.Knote) error {
	// (filter, ident) is unique (invariant 2), so no other knote in this
	// kqueue can still want this signal number.
	return f.sigfd.Remove(unix.Signal(k.Kev.Ident))
}

func (f *signalFilter) KnoteEnable(k *knote.Knote) error {
	return f.sigfd.Add(unix.Signal(k.Kev.Ident))
}

func (f *signalFilter) KnoteDisable(k *knote.Knote) error {
	return nil // keep the mask armed (invariant 5: swallow readiness, don't unlatch)
}

func (f *signalFilter) onReadable() error {
	records, err := f.sigfd.Read()
	if err != nil {
		return err
	}
	for _, rec := range records {
		k, ok := f.store.Lookup(uint64(rec.Signo))
		if !ok {
			continue // knote deleted after delivery but before drain: discard
		}
		if !k.Disabled {
			n, _ := k.Data.(int64)
			k.Data = n + 1
			f.store.MarkReady(k)
			f.wake()
		}
		k.Release()
	}
	return nil
}

// Copyout produces one event per ready signal knote, reporting the number
// of deliveries observed since the last drain.
func (f *signalFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	ev := k.Kev
	ev.Data, _ = k.Data.(int64)
	if ev.Data == 0 {
		ev.Data = 1
	}
	out[0] = ev
	k.Data = int64(0)
	return 1, nil
}
