package filters

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

func TestProcFilterForcesOneshotClear(t *testing.T) {
	store := knote.New()
	f := NewProcFilter(store, func() {})

	k := &knote.Knote{Kev: kevent.Kevent{Ident: 1, Filter: kevent.EVFILT_PROC, Flags: kevent.EV_ADD}}
	change := k.Kev

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	change.Ident = uint64(cmd.Process.Pid)
	k.Kev.Ident = change.Ident

	require.NoError(t, f.KnoteCreate(k, change))
	assert.NotZero(t, k.Kev.Flags&kevent.EV_ONESHOT)
	assert.NotZero(t, k.Kev.Flags&kevent.EV_CLEAR)

	require.NoError(t, f.KnoteDelete(k))
	assert.NoError(t, cmd.Wait())
}

func TestProcFilterOnExit(t *testing.T) {
	store := knote.New()
	woke := make(chan struct{}, 1)
	f := NewProcFilter(store, func() { woke <- struct{}{} })

	k := &knote.Knote{Kev: kevent.Kevent{Ident: 1, Filter: kevent.EVFILT_PROC}}
	pf := f.(*procFilter)
	pf.onExit(k, 0x0200) // encodes exit code 2 in the waitpid convention

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("wake was not called")
	}

	out := make([]kevent.Kevent, 1)
	n, err := f.Copyout(out, k)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, kevent.NOTE_EXIT, out[0].Fflags)
	assert.Equal(t, int64(0x0200), out[0].Data)
}

func TestProcFilterOnExitSwallowedWhenDisabled(t *testing.T) {
	store := knote.New()
	f := NewProcFilter(store, func() { t.Fatal("wake must not be called for a disabled knote") })

	k := &knote.Knote{Kev: kevent.Kevent{Ident: 1, Filter: kevent.EVFILT_PROC}, Disabled: true}
	pf := f.(*procFilter)
	pf.onExit(k, 0)
}
