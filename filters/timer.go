package filters

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

// timerState is the per-knote back-end handle for EVFILT_TIMER: one
// timerfd, unlike the legacy single shared-timerfd design, so that each
// timer's interval and one-shot/periodic behavior is independent (§4.5).
type timerState struct {
	fd       *backend.Timerfd
	desc     *backend.Desc
	interval time.Duration
	oneshot  bool
}

type timerFilter struct {
	be    backend.Backend
	store *knote.Store
	wake  func()
}

// NewTimerFilter builds the EVFILT_TIMER filter instance.
func NewTimerFilter(be backend.Backend, store *knote.Store, wake func()) filter.Filter {
	return &timerFilter{be: be, store: store, wake: wake}
}

func (f *timerFilter) ID() kevent.Filter { return kevent.EVFILT_TIMER }
func (f *timerFilter) Init() error       { return nil }
func (f *timerFilter) Destroy() error    { return nil }

// toDuration converts the input's data+fflags unit selector into a
// time.Duration, handling the absolute-clock-target case by subtracting
// the current monotonic time (Open Question decision: stays on
// CLOCK_MONOTONIC, §9) — the timerfd itself is CLOCK_MONOTONIC
// (internal/backend/timerfd_linux.go), so the subtraction must read the
// same clock, not wall-clock realtime.
func toDuration(change kevent.Kevent) time.Duration {
	v := change.Data
	var d time.Duration
	switch {
	case change.Fflags&kevent.NOTE_SECONDS != 0:
		d = time.Duration(v) * time.Second
	case change.Fflags&kevent.NOTE_USECONDS != 0:
		d = time.Duration(v) * time.Microsecond
	case change.Fflags&kevent.NOTE_NSECONDS != 0:
		d = time.Duration(v)
	default:
		d = time.Duration(v) * time.Millisecond // default unit per §4.5
	}
	if change.Fflags&kevent.NOTE_ABSOLUTE != 0 {
		var ts unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err == nil {
			d -= time.Duration(ts.Nano())
		}
		if d < 0 {
			d = 0
		}
	}
	return d
}

func (f *timerFilter) KnoteCreate(k *knote.Knote, change kevent.Kevent) error {
	fd, err := backend.NewTimerfd()
	if err != nil {
		return err
	}
	st := &timerState{fd: fd, interval: toDuration(change), oneshot: change.Flags&kevent.EV_ONESHOT != 0}
	desc := backend.NewDesc(f.be)
	desc.FD = fd.FD()
	desc.Data = k
	desc.OnRead = func(data interface{}) error { return f.onExpire(data.(*knote.Knote)) }
	st.desc = desc
	k.Handle = st

	period := st.interval
	if st.oneshot {
		period = 0
	}
	if err := fd.Set(st.interval, period); err != nil {
		return err
	}
	return desc.Control(backend.Readable)
}

func (f *timerFilter) KnoteModify(k *knote.Knote, change kevent.Kevent) error {
	st, ok := k.Handle.(*timerState)
	if !ok {
		return f.KnoteCreate(k, change)
	}
	st.interval = toDuration(change)
	st.oneshot = change.Flags&kevent.EV_ONESHOT != 0
	period := st.interval
	if st.oneshot {
		period = 0
	}
	return st.fd.Set(st.interval, period)
}

func (f *timerFilter) KnoteDelete(k *knote.Knote) error {
	st, ok := k.Handle.(*timerState)
	if !ok {
		return nil
	}
	_ = st.desc.Close()
	return st.fd.Close()
}

func (f *timerFilter) KnoteEnable(k *knote.Knote) error {
	st, ok := k.Handle.(*timerState)
	if !ok {
		return nil
	}
	period := st.interval
	if st.oneshot {
		period = 0
	}
	return st.fd.Set(st.interval, period)
}

func (f *timerFilter) KnoteDisable(k *knote.Knote) error {
	st, ok := k.Handle.(*timerState)
	if !ok {
		return nil
	}
	// Rewrite expiry to zero without destroying the timer object (§4.5).
	return st.fd.Set(0, 0)
}

func (f *timerFilter) onExpire(k *knote.Knote) error {
	st, ok := k.Handle.(*timerState)
	if !ok {
		return nil
	}
	n, err := st.fd.Drain()
	if err != nil {
		return err
	}
	if k.Disabled {
		return nil
	}
	cur, _ := k.Data.(int64)
	k.Data = cur + int64(n)
	f.store.MarkReady(k)
	f.wake()
	return nil
}

// Copyout reports the number of expirations observed since the last
// drain.
func (f *timerFilter) Copyout(out []kevent.Kevent, k *knote.Knote) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	ev := k.Kev
	ev.Data, _ = k.Data.(int64)
	out[0] = ev
	k.Data = int64(0)
	return 1, nil
}
