package kqueue

import "github.com/mheily/go-kqueue/internal/kevent"

// Errno is the error taxonomy returned by Kevent, matching spec §7: a
// thread-local-style error code in the BSD kevent() tradition, wrapped as
// an ordinary Go error so errors.Is(err, kqueue.EBADF) works.
type Errno = kevent.Errno

// Error kinds returned by Kevent and Kqueue.
const (
	EINVAL = kevent.EINVAL // invalid argument: unknown kqueue id, unknown filter, bad change record
	EBADF  = kevent.EBADF  // bad descriptor: kqueue was closed
	ENOSYS = kevent.ENOSYS // not supported: filter absent on this host
	ENOMEM = kevent.ENOMEM // out of memory: knote or registry allocation failed
	EINTR  = kevent.EINTR  // interrupted: reserved for callers that want to report signal-interrupted waits
	EIO    = kevent.EIO    // back-end error: host primitive reported failure
	ENOENT = kevent.ENOENT // not found: ENABLE/DISABLE/DELETE on an unregistered (filter, ident)
)
