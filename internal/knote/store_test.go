package knote_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mheily/go-kqueue/internal/kevent"
	"github.com/mheily/go-kqueue/internal/knote"
)

func newKnote(ident uint64) *knote.Knote {
	return &knote.Knote{Kev: kevent.Kevent{Ident: ident, Filter: kevent.EVFILT_READ}}
}

func TestStoreInsertLookupRemove(t *testing.T) {
	s := knote.New()
	k := newKnote(1)
	s.Insert(k)

	got, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Same(t, k, got)
	got.Release()

	_, ok = s.Lookup(2)
	assert.False(t, ok)

	s.Remove(k)
	_, ok = s.Lookup(1)
	assert.False(t, ok)
}

func TestStoreLookupByData(t *testing.T) {
	s := knote.New()
	k := newKnote(1)
	k.Handle = 42
	s.Insert(k)

	got, ok := s.LookupByData(func(v interface{}) bool { return v == 42 })
	require.True(t, ok)
	assert.Same(t, k, got)
	got.Release()

	_, ok = s.LookupByData(func(v interface{}) bool { return v == 7 })
	assert.False(t, ok)
}

func TestDeleteRacesReadyList(t *testing.T) {
	s := knote.New()
	k := newKnote(1)
	s.Insert(k)
	s.MarkReady(k)

	// Remove must unlink from both containers under one lock acquisition, so
	// a drain issued concurrently never observes a half-deleted knote: it
	// either sees the knote in the ready list (and must still find it via
	// Lookup) or it does not see it at all.
	s.Remove(k)

	ready := s.DrainReady()
	assert.Empty(t, ready, "a deleted knote must not be copied out")
}

func TestMarkReadyIdempotent(t *testing.T) {
	s := knote.New()
	k := newKnote(1)
	s.Insert(k)
	s.MarkReady(k)
	s.MarkReady(k)

	ready := s.DrainReady()
	assert.Len(t, ready, 1, "a knote is in at most one ready list at a time")
}

func TestDrainReadyResetsList(t *testing.T) {
	s := knote.New()
	k1, k2 := newKnote(1), newKnote(2)
	s.Insert(k1)
	s.Insert(k2)
	s.MarkReady(k1)
	s.MarkReady(k2)

	first := s.DrainReady()
	assert.Len(t, first, 2)

	second := s.DrainReady()
	assert.Empty(t, second)
}
