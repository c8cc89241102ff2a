package kqueue

import (
	"sync"

	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/registry"
)

// registryCapacity sizes the process-wide id -> kqueue map (spec §4.10).
// A real implementation would size this to the host's descriptor limit;
// this fixed capacity is large enough for any realistic process and keeps
// Alloc's linear slot scan bounded.
const registryCapacity = 65536

var (
	regOnce sync.Once
	reg     *registry.Registry[object]
)

// registryRef returns the process-wide registry, performing the one-time
// library initialization spec §4.10 describes on first use. Go has no
// atexit hook to register teardown on, so the "register any library-level
// atexit-equivalent teardown" step has no analog here.
func registryRef() *registry.Registry[object] {
	regOnce.Do(func() {
		reg = registry.New[object](registryCapacity)
	})
	return reg
}

// Kqueue creates a new kqueue and returns its public id, the only handle
// callers need to pass to Kevent and Close.
func Kqueue(opts ...Option) (int, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	obj, err := newObject(o)
	if err != nil {
		return -1, err
	}
	id, err := registryRef().Alloc(obj)
	if err != nil {
		_ = obj.Close()
		return -1, kevent.ENOMEM
	}
	obj.id = id
	return id, nil
}

// Close releases the kqueue identified by id: its knotes, filters, and
// backend context. A concurrent Kevent call that already resolved id
// before the race completes either observes the closed state via obj's
// mutex/closedCh (see object.Close) or, if it had not yet resolved id,
// finds the slot already cleared and gets EINVAL.
func Close(id int) error {
	obj, ok := registryRef().Lookup(id)
	if !ok {
		return kevent.EINVAL
	}
	if !registryRef().Remove(id, obj) {
		return kevent.EINVAL // lost the race: another Close already removed this slot
	}
	return obj.Close()
}
