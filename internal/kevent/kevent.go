// Package kevent defines the wire-level event record, filter ids, and flag
// constants shared by the public kqueue package and every internal
// package that needs them (internal/knote, internal/filter, filters/*).
// It has no dependency on the root package, so both directions can import
// it without an import cycle; the root package re-exports its names as the
// public ABI surface.
package kevent

import "fmt"

// Filter selects which event class a Kevent belongs to. Filter ids are
// small negative integers, matching the BSD kqueue ABI.
type Filter int16

// Filter ids, matching <sys/event.h>.
const (
	EVFILT_READ     Filter = -1
	EVFILT_WRITE    Filter = -2
	EVFILT_AIO      Filter = -3 // not implemented: cannot be reconstructed in user space
	EVFILT_VNODE    Filter = -4
	EVFILT_PROC     Filter = -5
	EVFILT_SIGNAL   Filter = -6
	EVFILT_TIMER    Filter = -7
	EVFILT_NETDEV   Filter = -8 // not implemented: no portable equivalent
	EVFILT_FS       Filter = -9 // not implemented: no portable equivalent
	EVFILT_LIO      Filter = -10
	EVFILT_USER     Filter = -11
	EVFILT_SYSCOUNT        = 11
)

// String implements fmt.Stringer.
func (f Filter) String() string {
	switch f {
	case EVFILT_READ:
		return "EVFILT_READ"
	case EVFILT_WRITE:
		return "EVFILT_WRITE"
	case EVFILT_AIO:
		return "EVFILT_AIO"
	case EVFILT_VNODE:
		return "EVFILT_VNODE"
	case EVFILT_PROC:
		return "EVFILT_PROC"
	case EVFILT_SIGNAL:
		return "EVFILT_SIGNAL"
	case EVFILT_TIMER:
		return "EVFILT_TIMER"
	case EVFILT_NETDEV:
		return "EVFILT_NETDEV"
	case EVFILT_FS:
		return "EVFILT_FS"
	case EVFILT_LIO:
		return "EVFILT_LIO"
	case EVFILT_USER:
		return "EVFILT_USER"
	default:
		return fmt.Sprintf("EVFILT(%d)", f)
	}
}

// Index returns the filter's position in a fixed dispatch table of size
// EVFILT_SYSCOUNT, mirroring the original's `(-1*filter)-1` convention.
func (f Filter) Index() int { return int(-1*f) - 1 }

// Action and modifier bits for Kevent.Flags.
const (
	EV_ADD      uint16 = 0x0001
	EV_DELETE   uint16 = 0x0002
	EV_ENABLE   uint16 = 0x0004
	EV_DISABLE  uint16 = 0x0008
	EV_ONESHOT  uint16 = 0x0010
	EV_CLEAR    uint16 = 0x0020
	EV_RECEIPT  uint16 = 0x0040
	EV_DISPATCH uint16 = 0x0080
	EV_SYSFLAGS uint16 = 0xF000
	EV_FLAG1    uint16 = 0x2000
	EV_EOF      uint16 = 0x8000
	EV_ERROR    uint16 = 0x4000
)

// NOTE_* bits for EVFILT_USER.
const (
	NOTE_FFNOP      uint32 = 0x00000000
	NOTE_FFAND      uint32 = 0x40000000
	NOTE_FFOR       uint32 = 0x80000000
	NOTE_FFCOPY     uint32 = 0xc0000000
	NOTE_FFCTRLMASK uint32 = 0xc0000000
	NOTE_FFLAGSMASK uint32 = 0x00ffffff
	NOTE_TRIGGER    uint32 = 0x01000000
)

// NOTE_* bits for EVFILT_VNODE.
const (
	NOTE_DELETE uint32 = 0x0001
	NOTE_WRITE  uint32 = 0x0002
	NOTE_EXTEND uint32 = 0x0004
	NOTE_ATTRIB uint32 = 0x0008
	NOTE_LINK   uint32 = 0x0010
	NOTE_RENAME uint32 = 0x0020
)

// NOTE_* bits for EVFILT_PROC.
const (
	NOTE_EXIT      uint32 = 0x80000000
	NOTE_FORK      uint32 = 0x40000000
	NOTE_EXEC      uint32 = 0x20000000
	NOTE_PCTRLMASK uint32 = 0xf0000000
	NOTE_PDATAMASK uint32 = 0x000fffff
)

// NOTE_* bits for EVFILT_TIMER.
const (
	NOTE_SECONDS  uint32 = 0x0001
	NOTE_USECONDS uint32 = 0x0002
	NOTE_NSECONDS uint32 = 0x0004
	NOTE_ABSOLUTE uint32 = 0x0008
)

// Kevent is the public event record: an input change or an output
// notification, matching struct kevent's layout in spirit.
type Kevent struct {
	Ident  uint64
	Filter Filter
	Flags  uint16
	Fflags uint32
	Data   int64
	Udata  uintptr
}

// String renders a Kevent for debug logging.
func (k Kevent) String() string {
	return fmt.Sprintf("{ident=%d filter=%s flags=0x%x fflags=0x%x data=%d udata=0x%x}",
		k.Ident, k.Filter, k.Flags, k.Fflags, k.Data, k.Udata)
}
