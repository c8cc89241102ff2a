// Package notifypool runs notification callbacks off the goroutine that
// discovered the event (its one caller is the proc filter, whose exit
// notifications leave the SIGCHLD watcher this way), the same ants-backed
// fan-out shape the teacher used for its
// connection read/write callbacks (taskpool.go), generalized from a
// two-case type switch over connection kinds to a single func() task.
package notifypool

import (
	"github.com/panjf2000/ants/v2"

	"github.com/mheily/go-kqueue/metrics"
)

var maxRoutines = 0 // meaning INT32_MAX, matching the teacher's unbounded pool.

var pool, _ = ants.NewPool(maxRoutines)

// Submit runs task on a pooled goroutine so a slow or blocking notify
// callback never stalls the poll loop that discovered the event.
func Submit(task func()) error {
	metrics.Add(metrics.TaskAssigned, 1)
	return pool.Submit(task)
}

// Release waits for running tasks to finish and tears the pool down.
// Nothing in this module calls it; the pool otherwise lives for the
// process lifetime.
func Release() {
	pool.Release()
}
