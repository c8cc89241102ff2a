// Package procwait implements the proc filter's host-primitive-free
// strategy (spec §4.8): a lazily-started, lazily-stopped process-wide
// SIGCHLD watcher thread and a pid -> waiters map, grounded directly on
// original_source/src/posix/proc.c's wait_thread/waiter_siginfo_to_status.
// It never reaps a child: status is observed with WNOWAIT so the
// application's own Wait4/waitpid still succeeds.
//
//go:build linux
// +build linux

package procwait

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/log"
	"github.com/mheily/go-kqueue/metrics"
)

// Waiter is notified once when its Pid terminates. Status is encoded in
// the waitpid-equivalent convention (spec §4.8): high byte is exit code
// when the process exited normally, low 7 bits are the fatal signal
// otherwise, with the top bit of the low byte set if a core was produced.
type Waiter struct {
	Pid    int
	Notify func(status int64)
}

// Tracker is the process-wide pid -> waiters map plus its watcher thread.
// One Tracker is shared by every kqueue's proc filter in the process,
// matching spec §4.8's "process-wide map" and §5's "one process-wide
// mutex guards the proc filter's pid->waiters map".
type Tracker struct {
	mu      sync.Mutex
	waiters map[int][]*Waiter
	sigfd   int // blocking signalfd dedicated to this tracker's thread
	running bool
}

// Shared is the process-wide Tracker instance. Filters call Watch/Unwatch
// on it; Watch lazily starts the thread on the first registration and
// Unwatch lazily stops it when the last waiter for the last pid is
// removed.
var Shared = &Tracker{waiters: make(map[int][]*Waiter)}

// Watch registers w to be notified when w.Pid terminates.
func (t *Tracker) Watch(w *Waiter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		if err := t.startLocked(); err != nil {
			return err
		}
	}
	t.waiters[w.Pid] = append(t.waiters[w.Pid], w)
	return nil
}

// Unwatch removes w. If it was the last waiter for any pid, and the last
// waiter overall, the watcher thread is stopped.
func (t *Tracker) Unwatch(w *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.waiters[w.Pid]
	for i, cand := range list {
		if cand == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.waiters, w.Pid)
	} else {
		t.waiters[w.Pid] = list
	}
	if len(t.waiters) == 0 && t.running {
		t.stopLocked()
	}
}

func (t *Tracker) startLocked() error {
	mask := unix.Sigset_t{}
	word, bit := uint(unix.SIGCHLD)-1, uint(0)
	word, bit = word/64, word%64
	mask.Val[word] |= 1 << bit
	if err := unix.SigprocMask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return os.NewSyscallError("sigprocmask", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC)
	if err != nil {
		return os.NewSyscallError("signalfd", err)
	}
	t.sigfd = fd
	t.running = true
	go t.run(fd)
	return nil
}

func (t *Tracker) stopLocked() {
	t.running = false
	// Closing the blocking signalfd wakes the dedicated read in run() with
	// an error, ending the goroutine.
	unix.Close(t.sigfd)
	t.sigfd = 0
}

func (t *Tracker) run(fd int) {
	var buf unix.SignalfdSiginfo
	raw := siginfoBytes(&buf)
	for {
		n, err := unix.Read(fd, raw)
		if err != nil || n <= 0 {
			return // fd closed by stopLocked, or genuine error: exit quietly
		}
		t.scan()
	}
}

// scan is proc.c's wait_thread body: for every tracked pid, ask the
// kernel whether it has terminated without reaping it.
func (t *Tracker) scan() {
	t.mu.Lock()
	pids := make([]int, 0, len(t.waiters))
	for pid := range t.waiters {
		pids = append(pids, pid)
	}
	t.mu.Unlock()

	for _, pid := range pids {
		status, exited, err := waitNoReap(pid)
		metrics.Add(metrics.WaitidCalls, 1)
		if err != nil {
			log.Debugf("procwait: waitid(%d): %v", pid, err)
			continue
		}
		if !exited {
			continue
		}
		t.mu.Lock()
		list := t.waiters[pid]
		delete(t.waiters, pid)
		t.mu.Unlock()
		for _, w := range list {
			w.Notify(status)
		}
	}
}

// waitNoReap calls waitid(P_PID, pid, WEXITED|WNOWAIT|WNOHANG), returning
// the encoded status without consuming the child's zombie state. WNOHANG
// is required: without it, waitid blocks until pid itself changes state,
// so scan would hang on the first tracked pid that hasn't exited yet
// instead of polling every tracked pid in turn.
func waitNoReap(pid int) (status int64, exited bool, err error) {
	var info unix.Siginfo
	err = unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT|unix.WNOHANG, nil)
	if err != nil {
		if err == unix.ECHILD {
			return 0, false, nil // no such tracked child (already reaped elsewhere, or bad pid)
		}
		if err == unix.EINTR {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "waitid")
	}
	pi := (*procSiginfo)(unsafeSiginfo(&info))
	if pi.Signo == 0 {
		return 0, false, nil // spurious: pid has not changed state
	}
	return waiterSiginfoToStatus(pi), true, nil
}

// CLD_* values for Siginfo.Code on SIGCHLD, from <bits/waitflags.h>.
const (
	cldExited    = 1
	cldKilled    = 2
	cldDumped    = 3
	cldTrapped   = 4
	cldStopped   = 5
	cldContinued = 6
)

func waiterSiginfoToStatus(pi *procSiginfo) int64 {
	switch pi.Code {
	case cldExited:
		return int64(pi.Status) << 8
	case cldKilled:
		return int64(pi.Status) & 0x7f
	case cldDumped:
		return 0x80 | (int64(pi.Status) & 0x7f)
	default:
		return 0
	}
}
