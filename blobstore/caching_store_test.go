package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rulecache/internal/cache"
)

type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	reads int
}

type countingBlob struct {
	Blob
	s *countingStore
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.s.mu.Lock()
	b.s.reads++
	b.s.mu.Unlock()
	return b.Blob.ReadAt(ctx, p, off)
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, s: s}, nil
}

func (s *countingStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	data := bytes.Repeat([]byte("0123456789"), 10)
	require.NoError(t, inner.Put(ctx, "snapshot-1.bin", data))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(inner, c, 16)

	blob, err := store.Open(ctx, "snapshot-1.bin")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 20)
	n, err := blob.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[10:30], buf)
	assert.Equal(t, 1, inner.Reads())

	// Same range again is served from the cache.
	n, err = blob.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 1, inner.Reads())

	all, err := ReadAll(ctx, blob, 0)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	// Read past the end.
	tail := make([]byte, 10)
	n, err = blob.ReadAt(ctx, tail, 95)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, data[95:], tail[:5])

	rc, err := blob.ReadRange(ctx, 50, 30)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data[50:80], got)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "blob", []byte("old content")))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(inner, c, 4)

	got, err := Get(ctx, store, "blob", 0)
	require.NoError(t, err)
	assert.Equal(t, "old content", string(got))

	require.NoError(t, store.Put(ctx, "blob", []byte("new content!")))
	got, err = Get(ctx, store, "blob", 0)
	require.NoError(t, err)
	assert.Equal(t, "new content!", string(got))
}

func TestCachingStore_CurrentBypassesCache(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(inner, c, 4)

	// Written behind the caching store's back, as a remote publisher would.
	require.NoError(t, inner.Put(ctx, CurrentName, []byte("gen-1")))
	got, err := Get(ctx, store, CurrentName, 0)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", string(got))

	require.NoError(t, inner.Put(ctx, CurrentName, []byte("gen-2")))
	got, err = Get(ctx, store, CurrentName, 0)
	require.NoError(t, err)
	assert.Equal(t, "gen-2", string(got))

	hits, misses := c.Stats()
	assert.Zero(t, hits+misses)
}
