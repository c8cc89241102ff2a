// Package kqueue implements a portable, user-space emulation of the BSD
// kqueue/kevent event-multiplexing facility on hosts whose native
// readiness mechanism differs (epoll/signalfd/timerfd/inotify/eventfd on
// Linux). Applications register interest in descriptor readiness,
// signals, timers, filesystem changes, process exit, and user-triggered
// events through one kqueue, and retrieve a unified batch of
// notifications through the single Kevent entry point.
package kqueue

import "github.com/mheily/go-kqueue/internal/kevent"

// Kevent is the public event record: an input change request or an
// output notification. Ident's meaning is filter-dependent (descriptor,
// signal number, timer id, pid, or an opaque application id). Filter
// selects the event class. Flags carries the action bits (Add/Delete/
// Enable/Disable) and modifier bits (Oneshot/Clear/Dispatch/Receipt/EOF/
// Error). Fflags and Data are filter-specific payloads, Udata is
// returned verbatim.
type Kevent = kevent.Kevent

// Filter selects which event class a Kevent belongs to.
type Filter = kevent.Filter

// Filter ids, matching <sys/event.h>.
const (
	EVFILT_READ   = kevent.EVFILT_READ
	EVFILT_WRITE  = kevent.EVFILT_WRITE
	EVFILT_AIO    = kevent.EVFILT_AIO
	EVFILT_VNODE  = kevent.EVFILT_VNODE
	EVFILT_PROC   = kevent.EVFILT_PROC
	EVFILT_SIGNAL = kevent.EVFILT_SIGNAL
	EVFILT_TIMER  = kevent.EVFILT_TIMER
	EVFILT_NETDEV = kevent.EVFILT_NETDEV
	EVFILT_FS     = kevent.EVFILT_FS
	EVFILT_LIO    = kevent.EVFILT_LIO
	EVFILT_USER   = kevent.EVFILT_USER
)

// Action and modifier bits for Kevent.Flags.
const (
	EV_ADD      = kevent.EV_ADD
	EV_DELETE   = kevent.EV_DELETE
	EV_ENABLE   = kevent.EV_ENABLE
	EV_DISABLE  = kevent.EV_DISABLE
	EV_ONESHOT  = kevent.EV_ONESHOT
	EV_CLEAR    = kevent.EV_CLEAR
	EV_RECEIPT  = kevent.EV_RECEIPT
	EV_DISPATCH = kevent.EV_DISPATCH
	EV_EOF      = kevent.EV_EOF
	EV_ERROR    = kevent.EV_ERROR
)

// NOTE_* bits for EVFILT_USER.
const (
	NOTE_FFNOP      = kevent.NOTE_FFNOP
	NOTE_FFAND      = kevent.NOTE_FFAND
	NOTE_FFOR       = kevent.NOTE_FFOR
	NOTE_FFCOPY     = kevent.NOTE_FFCOPY
	NOTE_FFCTRLMASK = kevent.NOTE_FFCTRLMASK
	NOTE_FFLAGSMASK = kevent.NOTE_FFLAGSMASK
	NOTE_TRIGGER    = kevent.NOTE_TRIGGER
)

// NOTE_* bits for EVFILT_VNODE.
const (
	NOTE_DELETE = kevent.NOTE_DELETE
	NOTE_WRITE  = kevent.NOTE_WRITE
	NOTE_EXTEND = kevent.NOTE_EXTEND
	NOTE_ATTRIB = kevent.NOTE_ATTRIB
	NOTE_LINK   = kevent.NOTE_LINK
	NOTE_RENAME = kevent.NOTE_RENAME
)

// NOTE_* bits for EVFILT_PROC.
const (
	NOTE_EXIT      = kevent.NOTE_EXIT
	NOTE_FORK      = kevent.NOTE_FORK
	NOTE_EXEC      = kevent.NOTE_EXEC
	NOTE_PCTRLMASK = kevent.NOTE_PCTRLMASK
	NOTE_PDATAMASK = kevent.NOTE_PDATAMASK
)

// NOTE_* bits for EVFILT_TIMER.
const (
	NOTE_SECONDS  = kevent.NOTE_SECONDS
	NOTE_USECONDS = kevent.NOTE_USECONDS
	NOTE_NSECONDS = kevent.NOTE_NSECONDS
	NOTE_ABSOLUTE = kevent.NOTE_ABSOLUTE
)
