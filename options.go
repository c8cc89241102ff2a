package kqueue

import "github.com/mheily/go-kqueue/log"

// defaultEventCap bounds how many events a single Kevent call drains from
// the ready lists, matching spec §4.9 step 4's "cap the requested event
// count at an implementation maximum". Callers asking for fewer still get
// fewer; this only clamps an oversized request.
const defaultEventCap = 256

type options struct {
	eventCap           int
	ignoreFilterErrors bool
	logger             log.Logger
}

func defaultOptions() options {
	return options{eventCap: defaultEventCap, logger: log.Default}
}

// Option configures a Kqueue at creation time, following the teacher's
// functional-option idiom (tnet's Option func(*options)).
type Option func(*options)

// WithEventCap overrides the per-call event cap of defaultEventCap.
func WithEventCap(n int) Option {
	return func(o *options) { o.eventCap = n }
}

// WithIgnoreFilterErrors keeps a descriptor registered with the backend
// after its readiness callback returns an error, instead of detaching it.
func WithIgnoreFilterErrors(v bool) Option {
	return func(o *options) { o.ignoreFilterErrors = v }
}

// WithLogger stores l in the kqueue's options. The library's own log
// output always goes through the package-level log.Default; the stored
// logger is not consulted.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}
