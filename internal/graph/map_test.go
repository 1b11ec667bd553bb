package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rulecache/internal/arena"
)

func TestMap_InsertLookup(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 4, MapScalarValues)
	require.NoError(t, err)

	require.NoError(t, m.Insert("a", 1))
	require.NoError(t, m.Insert("b", 2))

	v, ok, err := m.Lookup("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)

	_, ok, err = m.Lookup("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMap_Shadowing(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 4, MapScalarValues)
	require.NoError(t, err)

	require.NoError(t, m.Insert("x", 1))
	require.NoError(t, m.Insert("x", 2))

	v, _, err := m.Lookup("x")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	require.NoError(t, m.Delete("x"))
	v, ok, err := m.Lookup("x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)

	require.NoError(t, m.Delete("x"))
	_, ok, err = m.Lookup("x")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, m.Delete("x"), ErrNotFound)
}

func TestMap_Update(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 4, MapScalarValues)
	require.NoError(t, err)

	require.NoError(t, m.Update("k", 1))
	require.NoError(t, m.Update("k", 5))

	v, _, err := m.Lookup("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
	n, _ := m.Len()
	assert.Equal(t, 1, n)
}

func TestMap_ResizePreservesShadowing(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 2, MapGrowable|MapScalarValues)
	require.NoError(t, err)

	for i := range 40 {
		require.NoError(t, m.Insert(fmt.Sprintf("k%d", i), uint64(i)))
	}
	// Shadow every even key.
	for i := 0; i < 40; i += 2 {
		require.NoError(t, m.Insert(fmt.Sprintf("k%d", i), uint64(1000+i)))
	}

	rec, err := LoadAs(r, m.Ptr(), TagMap)
	require.NoError(t, err)
	buckets, err := LoadAs(r, rec.PtrAt(mapBuckets), TagBuckets)
	require.NoError(t, err)
	assert.Greater(t, buckets.Count(), 2)
	assert.False(t, r.Arena().Owns(arena.Ref(buckets.Ptr())), "grown bucket array lives in the sub-arena")
	assert.True(t, r.Owns(buckets.Ptr()))
	assert.Len(t, r.Arena().Children(), 1)

	for i := range 40 {
		v, ok, err := m.Lookup(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		want := uint64(i)
		if i%2 == 0 {
			want = uint64(1000 + i)
		}
		assert.Equal(t, want, v, "k%d", i)
	}

	// Deleting the shadowing bindings exposes the originals again.
	for i := 0; i < 40; i += 2 {
		require.NoError(t, m.Delete(fmt.Sprintf("k%d", i)))
		v, _, err := m.Lookup(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), v)
	}
}

func TestMap_Range(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 8, MapScalarValues)
	require.NoError(t, err)

	require.NoError(t, m.Insert("a", 1))
	require.NoError(t, m.Insert("b", 2))
	require.NoError(t, m.Insert("a", 3))

	got := map[string]uint64{}
	require.NoError(t, m.Range(func(k string, v uint64) bool {
		got[k] = v
		return true
	}))
	assert.Equal(t, map[string]uint64{"a": 3, "b": 2}, got)

	calls := 0
	require.NoError(t, m.Range(func(string, uint64) bool {
		calls++
		return false
	}))
	assert.Equal(t, 1, calls)
}

func TestMap_PointerValues(t *testing.T) {
	r := newRegion(t)
	m, err := NewMap(r, 4, 0)
	require.NoError(t, err)

	ty, err := NewPrimType(r, CtorInt)
	require.NoError(t, err)
	require.NoError(t, m.Insert("x", uint64(ty)))

	v, ok, err := MapLookup(r, m.Ptr(), "x")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := LoadType(r, Ptr(v))
	require.NoError(t, err)
	assert.Equal(t, CtorInt, got.Ctor())

	opened, err := OpenMap(r, m.Ptr())
	require.NoError(t, err)
	flags, err := opened.Flags()
	require.NoError(t, err)
	assert.Zero(t, flags)

	_, err = OpenMap(r, ty)
	assert.ErrorIs(t, err, ErrWrongTag)
}
