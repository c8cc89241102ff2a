package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mheily/go-kqueue/internal/registry"
)

func TestAllocLookupRemove(t *testing.T) {
	r := registry.New[int](4)
	v := 42
	id, err := r.Alloc(&v)
	require.NoError(t, err)

	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 42, *got)

	assert.True(t, r.Remove(id, &v))
	_, ok = r.Lookup(id)
	assert.False(t, ok)
}

func TestAllocFull(t *testing.T) {
	r := registry.New[int](2)
	a, b := 1, 2
	_, err := r.Alloc(&a)
	require.NoError(t, err)
	_, err = r.Alloc(&b)
	require.NoError(t, err)

	c := 3
	_, err = r.Alloc(&c)
	assert.ErrorIs(t, err, registry.ErrFull)
}

func TestRemoveRequiresMatchingPointer(t *testing.T) {
	r := registry.New[int](2)
	a, b := 1, 2
	id, err := r.Alloc(&a)
	require.NoError(t, err)

	// A racing close that observed a stale pointer must not clear a slot
	// that has since been reused.
	assert.False(t, r.Remove(id, &b))
	_, ok := r.Lookup(id)
	assert.True(t, ok)
}

func TestLookupOutOfRange(t *testing.T) {
	r := registry.New[int](2)
	_, ok := r.Lookup(-1)
	assert.False(t, ok)
	_, ok = r.Lookup(99)
	assert.False(t, ok)
}
