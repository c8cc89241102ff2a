// Package filter defines the Filter interface each event class implements
// and the fixed dispatch table indexed by filter id, mirroring
// src/common/filter.c's filter_register/filter_lookup design.
package filter

import (
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

// Filter implements one event class's back-end wiring and knote lifecycle.
type Filter interface {
	// ID returns the filter's id, e.g. kevent.EVFILT_READ.
	ID() kevent.Filter

	// Init allocates per-filter back-end state (the signalfd, the inotify
	// instance). Filters whose back-end handles are per knote have nothing
	// to allocate here.
	Init() error

	// Destroy symmetrically tears down Init's state.
	Destroy() error

	// KnoteCreate populates a freshly allocated knote from a change record
	// with EV_ADD set, registering any back-end handle it needs.
	KnoteCreate(k *knote.Knote, change kevent.Kevent) error

	// KnoteModify updates an existing knote from a subsequent change
	// record for the same (filter, ident).
	KnoteModify(k *knote.Knote, change kevent.Kevent) error

	// KnoteDelete releases a knote's back-end handle. Idempotent for a
	// disabled knote.
	KnoteDelete(k *knote.Knote) error

	// KnoteEnable and KnoteDisable toggle whether a ready knote produces
	// output, per spec invariant 5; the back-end handle need not be
	// destroyed on Disable.
	KnoteEnable(k *knote.Knote) error
	KnoteDisable(k *knote.Knote) error

	// Copyout writes up to len(out) public event records for k, which the
	// filter's own ready-list drain determined was ready. It returns how
	// many records were written; 0 means the event was dropped by policy.
	// Disabled knotes and records for stale vnode watch descriptors are
	// filtered out before Copyout is called.
	Copyout(out []kevent.Kevent, k *knote.Knote) (int, error)
}

// Table is the fixed dispatch table indexed by a filter's Index(). Filters
// absent on this host (AIO, NETDEV, FS, LIO) are left as nil, and Lookup
// reports ENOSYS for them.
type Table struct {
	filters [kevent.EVFILT_SYSCOUNT]Filter
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{}
}

// Register installs f at its own filter id's slot.
func (t *Table) Register(f Filter) {
	t.filters[f.ID().Index()] = f
}

// Lookup resolves id to its Filter, or ENOSYS if unimplemented on this
// host.
func (t *Table) Lookup(id kevent.Filter) (Filter, error) {
	idx := id.Index()
	if idx < 0 || idx >= len(t.filters) {
		return nil, kevent.EINVAL
	}
	f := t.filters[idx]
	if f == nil {
		return nil, kevent.ENOSYS
	}
	return f, nil
}

// InitAll calls Init on every registered filter, unwinding (calling
// Destroy on the filters already initialized) if one fails.
func (t *Table) InitAll() error {
	for i, f := range t.filters {
		if f == nil {
			continue
		}
		if err := f.Init(); err != nil {
			for j := 0; j < i; j++ {
				if t.filters[j] != nil {
					_ = t.filters[j].Destroy()
				}
			}
			return err
		}
	}
	return nil
}

// DestroyAll calls Destroy on every registered filter.
func (t *Table) DestroyAll() error {
	var first error
	for _, f := range t.filters {
		if f == nil {
			continue
		}
		if err := f.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// iterationOrder is the fixed order in which All walks the filters when
// more than one is ready in the same drain (SPEC_FULL.md's Open Question
// decision #1: READ, WRITE, SIGNAL, VNODE, PROC, TIMER, USER — the
// original's filter_register_all registration order, not the ABI's
// id-ascending order, which would yield READ, WRITE, VNODE, PROC, SIGNAL,
// TIMER, USER instead).
var iterationOrder = [...]kevent.Filter{
	kevent.EVFILT_READ,
	kevent.EVFILT_WRITE,
	kevent.EVFILT_SIGNAL,
	kevent.EVFILT_VNODE,
	kevent.EVFILT_PROC,
	kevent.EVFILT_TIMER,
	kevent.EVFILT_USER,
}

// All returns every registered, non-nil filter in iterationOrder.
func (t *Table) All() []Filter {
	out := make([]Filter, 0, len(iterationOrder))
	for _, id := range iterationOrder {
		if f := t.filters[id.Index()]; f != nil {
			out = append(out, f)
		}
	}
	return out
}
