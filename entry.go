package kqueue

import (
	"errors"
	"time"

	"github.com/mheily/go-kqueue/internal/filter"
	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
	"github.com/mheily/go-kqueue/log"
	"github.com/mheily/go-kqueue/metrics"
)

// Kevent is the single composite entry point (spec §4.9): it applies
// changes in order, then waits up to timeout for ready events, writing as
// many as fit in events. timeout == nil blocks indefinitely; a timeout of
// 0 returns immediately without blocking. It returns the number of events
// written, or -1 with an Errno describing the failure.
func Kevent(id int, changes []Kevent, events []Kevent, timeout *time.Duration) (int, error) {
	obj, ok := registryRef().Lookup(id)
	if !ok {
		return -1, kevent.EINVAL
	}

	obj.mu.Lock()
	if obj.closed.Closed() {
		obj.mu.Unlock()
		return -1, kevent.EBADF
	}
	written, cerr := applyChanges(obj, changes, events)
	obj.mu.Unlock()
	if cerr != nil {
		return -1, cerr
	}

	// §4.9 step 3: zero event-list capacity returns immediately, even
	// with a non-empty change list that was just applied above.
	if len(events) == 0 {
		return 0, nil
	}
	if written >= len(events) {
		return written, nil
	}

	remaining := events[written:]
	evCap := obj.opts.eventCap
	if evCap <= 0 {
		evCap = defaultEventCap
	}
	if len(remaining) > evCap {
		remaining = remaining[:evCap]
	}

	n, werr := waitAndCopyout(obj, remaining, timeout)
	if werr != nil {
		return -1, werr
	}
	return written + n, nil
}

// applyChanges implements §4.9 step 2: resolve each change's filter and
// knote, invoke the filter's knote lifecycle hooks, and echo a receipt
// into events wherever the change requested one or failed. It returns how
// many receipts it wrote, and a non-nil error only when a failing change
// had no room left to report its receipt (§7: "when no event-list room
// remains, the whole call fails with the first error").
func applyChanges(obj *object, changes []Kevent, events []Kevent) (int, error) {
	written := 0
	for _, change := range changes {
		aerr := applyOne(obj, change)
		if aerr == nil && change.Flags&kevent.EV_RECEIPT == 0 {
			continue
		}
		if written >= len(events) {
			if aerr != nil {
				return written, aerr
			}
			continue
		}
		ev := change
		ev.Flags |= kevent.EV_ERROR
		if aerr != nil {
			ev.Data = errnoCode(aerr)
		} else {
			ev.Data = 0
		}
		events[written] = ev
		written++
	}
	return written, nil
}

// applyOne resolves and applies a single change record, per §4.9 steps
// 2a-2d.
func applyOne(obj *object, change Kevent) error {
	f, ferr := obj.table.Lookup(change.Filter)
	if ferr != nil {
		return ferr
	}
	store := obj.storeFor(change.Filter)

	k, found := store.Lookup(change.Ident)
	if found {
		defer k.Release()
	}

	adding := change.Flags&kevent.EV_ADD != 0

	if !found {
		switch {
		case adding:
			nk := &knote.Knote{Kev: change}
			if err := f.KnoteCreate(nk, change); err != nil {
				return toErrno(err)
			}
			if change.Flags&kevent.EV_DISABLE != 0 {
				nk.Disabled = true
				_ = f.KnoteDisable(nk)
			}
			store.Insert(nk)
		case change.Flags&(kevent.EV_ENABLE|kevent.EV_DISABLE|kevent.EV_DELETE) != 0:
			return kevent.ENOENT
		case change.Filter == kevent.EVFILT_USER && change.Fflags&kevent.NOTE_TRIGGER != 0:
			return nil // supplemented feature: trigger on an unregistered ident is silently ignored
		default:
			return kevent.EINVAL
		}
		return nil
	}

	if err := f.KnoteModify(k, change); err != nil {
		return toErrno(err)
	}
	if change.Flags&kevent.EV_ENABLE != 0 {
		k.Disabled = false
		if err := f.KnoteEnable(k); err != nil {
			return toErrno(err)
		}
	}
	if change.Flags&kevent.EV_DISABLE != 0 {
		k.Disabled = true
		if err := f.KnoteDisable(k); err != nil {
			return toErrno(err)
		}
	}
	if change.Flags&kevent.EV_DELETE != 0 {
		if err := f.KnoteDelete(k); err != nil {
			return toErrno(err)
		}
		store.Remove(k)
	}
	return nil
}

// waitAndCopyout implements §4.9 step 5: loop waiting for readiness (or
// the timeout, or the kqueue being closed) and draining ready knotes into
// out, until at least one event survives filtering or the timeout fires.
func waitAndCopyout(obj *object, out []Kevent, timeout *time.Duration) (int, error) {
	drain := func() (int, bool) {
		obj.mu.Lock()
		defer obj.mu.Unlock()
		if obj.closed.Closed() {
			return 0, true
		}
		return drainReady(obj, out), false
	}

	// §8 boundary: a zero timeout returns immediately without blocking,
	// even if nothing was ready.
	if timeout != nil && *timeout == 0 {
		n, closed := drain()
		if closed {
			return 0, kevent.EBADF
		}
		return n, nil
	}

	var timerC <-chan time.Time
	if timeout != nil {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		timerC = t.C
	}

	for {
		n, closed := drain()
		if closed {
			return 0, kevent.EBADF
		}
		if n > 0 {
			return n, nil
		}
		select {
		case <-obj.ready:
			// woken by a filter; loop back and drain without resetting
			// the timeout (§4.9 step 5's "loop again without resetting
			// the user timeout" when nothing survived filtering applies
			// equally here since timerC is created once, outside the
			// loop).
		case <-timerC:
			return 0, nil
		case <-obj.closedCh:
			return 0, kevent.EBADF
		}
	}
}

// drainReady walks every filter in table order (Open Question #1's fixed
// iteration order), draining each filter's ready list and copying out
// events until out is full.
func drainReady(obj *object, out []Kevent) int {
	written := 0
	for _, f := range obj.table.All() {
		if written >= len(out) {
			break
		}
		store := obj.storeFor(f.ID())
		if store == nil {
			continue
		}
		ready := store.DrainReady()
		for _, k := range ready {
			if written >= len(out) {
				store.MarkReady(k) // couldn't copy it out this round: keep it ready for next time
				continue
			}
			if k.Disabled {
				continue // invariant 5: swallow readiness while disabled
			}
			n, err := f.Copyout(out[written:written+1], k)
			if err != nil {
				log.Debugf("%s copyout: %v", f.ID(), err)
				continue
			}
			if n == 0 {
				continue // filter dropped the event by policy
			}
			written += n
			metrics.Add(filterEventsMetric(f.ID()), uint64(n))
			applyPostActions(f, store, k)
		}
	}
	return written
}

// applyPostActions implements §4.9 step 5's post-copy-out transitions:
// DISPATCH disables the knote, ONESHOT deletes it (invariant 6).
func applyPostActions(f filter.Filter, store *knote.Store, k *knote.Knote) {
	if k.Kev.Flags&kevent.EV_DISPATCH != 0 {
		k.Disabled = true
		_ = f.KnoteDisable(k)
	}
	if k.Kev.Flags&kevent.EV_ONESHOT != 0 {
		_ = f.KnoteDelete(k)
		store.Remove(k)
	}
}

func filterEventsMetric(id kevent.Filter) int {
	switch id {
	case kevent.EVFILT_READ:
		return metrics.ReadEvents
	case kevent.EVFILT_WRITE:
		return metrics.WriteEvents
	case kevent.EVFILT_SIGNAL:
		return metrics.SignalEvents
	case kevent.EVFILT_TIMER:
		return metrics.TimerEvents
	case kevent.EVFILT_VNODE:
		return metrics.VnodeEvents
	case kevent.EVFILT_PROC:
		return metrics.ProcEvents
	case kevent.EVFILT_USER:
		return metrics.UserEvents
	default:
		return metrics.Max
	}
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	var e kevent.Errno
	if errors.As(err, &e) {
		return e
	}
	return kevent.EIO
}

func errnoCode(err error) int64 {
	var e kevent.Errno
	if errors.As(err, &e) {
		return int64(e)
	}
	return int64(kevent.EIO)
}
