package kqueue

import (
	"github.com/mheily/go-kqueue/filters"
	"github.com/mheily/go-kqueue/internal/backend"
	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
	"github.com/mheily/go-kqueue/internal/locker"
	"github.com/mheily/go-kqueue/internal/safejob"
	"github.com/mheily/go-kqueue/log"
)

// object is the internal kqueue: its filter table, the seven per-filter
// knote stores (§3 "a kqueue object owns exactly seven filters"), the
// backend readiness context, and the mutex/ready-signal pair the entry
// point in entry.go uses to implement spec §4.9 step 5's wait loop.
//
// The backend (internal/backend.Backend) runs its own continuous poll
// loop on a dedicated goroutine and invokes filter callbacks directly
// from it, rather than blocking inside a single Kevent call the way a
// native kqueue() syscall would. ready is how those callbacks wake a
// blocked Kevent call: every filter is constructed with a wake closure
// that does a non-blocking send on ready after marking a knote ready.
type object struct {
	id     int
	mu     locker.Locker
	table  *filter.Table
	be     backend.Backend
	stores [kevent.EVFILT_SYSCOUNT]*knote.Store

	ready    chan struct{}
	closedCh chan struct{}
	closed   safejob.OnceJob

	opts options
}

func newObject(opts options) (*object, error) {
	be, err := backend.New(opts.ignoreFilterErrors)
	if err != nil {
		return nil, err
	}
	o := &object{
		table:    filter.NewTable(),
		be:       be,
		ready:    make(chan struct{}, 1),
		closedCh: make(chan struct{}),
		opts:     opts,
	}
	o.registerFilters()
	if err := o.table.InitAll(); err != nil {
		_ = be.Close()
		return nil, err
	}
	go func() {
		if err := be.Wait(); err != nil {
			log.Debugf("kqueue: backend wait exited: %v", err)
		}
	}()
	return o, nil
}

// wake is handed to every filter as their notification callback; it wakes
// a Kevent call blocked in the select inside waitAndCopyout.
func (o *object) wake() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *object) registerFilters() {
	readStore, writeStore := knote.New(), knote.New()
	o.stores[kevent.EVFILT_READ.Index()] = readStore
	o.stores[kevent.EVFILT_WRITE.Index()] = writeStore
	rf, wf := filters.NewReadWriteFilters(o.be, readStore, writeStore, o.wake)
	o.table.Register(rf)
	o.table.Register(wf)

	sigStore := knote.New()
	o.stores[kevent.EVFILT_SIGNAL.Index()] = sigStore
	o.table.Register(filters.NewSignalFilter(o.be, sigStore, o.wake))

	timerStore := knote.New()
	o.stores[kevent.EVFILT_TIMER.Index()] = timerStore
	o.table.Register(filters.NewTimerFilter(o.be, timerStore, o.wake))

	vnodeStore := knote.New()
	o.stores[kevent.EVFILT_VNODE.Index()] = vnodeStore
	o.table.Register(filters.NewVnodeFilter(o.be, vnodeStore, o.wake))

	userStore := knote.New()
	o.stores[kevent.EVFILT_USER.Index()] = userStore
	o.table.Register(filters.NewUserFilter(o.be, userStore, o.wake))

	procStore := knote.New()
	o.stores[kevent.EVFILT_PROC.Index()] = procStore
	o.table.Register(filters.NewProcFilter(procStore, o.wake))
}

// storeFor returns the knote store backing filter id, or nil if id is out
// of range (an unregistered id, e.g. AIO/NETDEV/FS/LIO, still resolves to
// a nil store; callers only reach here after table.Lookup succeeded).
func (o *object) storeFor(id kevent.Filter) *knote.Store {
	idx := id.Index()
	if idx < 0 || idx >= len(o.stores) {
		return nil
	}
	return o.stores[idx]
}

// Close tears the kqueue down: every filter's Destroy releases its
// back-end handles, then the backend context itself is closed, which
// wakes the poll-loop goroutine and any Kevent call blocked in
// waitAndCopyout's select (it is also listening on closedCh directly).
// Taking mu first waits out any change-application or copy-out in
// progress, approximating spec §4.9's refcounted deferred-free with the
// mutex this implementation already serializes filter access under.
func (o *object) Close() error {
	if !o.closed.Begin() {
		return kevent.EBADF
	}
	close(o.closedCh)
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	if e := o.table.DestroyAll(); e != nil {
		err = e
	}
	if e := o.be.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
