// Package knote implements the per-filter knote store: an unordered map
// keyed by ident for lookup, paired with a ready list for copy-out,
// exactly the two containers spec'd for each filter's registry.
package knote

import (
	"sync/atomic"

	"github.com/mheily/go-kqueue/internal/kevent"
)

// Knote is the registry entry behind one (filter, ident) key. It exists
// from a successful ADD until DELETE, ONESHOT-consumption, or kqueue
// teardown.
type Knote struct {
	Kev      kevent.Kevent // stored event record; Flags gains EV_EOF on hang-up, enable/disable state is kept in Disabled
	Disabled bool
	Data     interface{} // per-wakeup output payload: byte count, signal deliveries, timer expirations, exit status, observed vnode fflags
	Handle   interface{} // owned back-end handle: timerfd, eventfd, watch descriptor, fd-state entry

	refs  int32
	ready bool   // true while linked into the filter's ready list
	next  *Knote // ready-list linkage
}

// Ident returns the knote's key.
func (k *Knote) Ident() uint64 { return k.Kev.Ident }

// Retain increments the knote's reference count. Called by Store.Lookup.
func (k *Knote) retain() { atomic.AddInt32(&k.refs, 1) }

// Release decrements the reference count. It must be called exactly once
// for every successful Lookup.
func (k *Knote) Release() { atomic.AddInt32(&k.refs, -1) }

// refcount reports the current reference count (tests only).
func (k *Knote) refcount() int32 { return atomic.LoadInt32(&k.refs) }
