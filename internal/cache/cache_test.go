package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rulecache/internal/resource"
)

func TestLRUBlockCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10, nil)

	c.Set(ctx, Key{Blob: "a"}, make([]byte, 4))
	c.Set(ctx, Key{Blob: "b"}, make([]byte, 4))
	_, ok := c.Get(ctx, Key{Blob: "a"}) // a is now most recent
	require.True(t, ok)

	c.Set(ctx, Key{Blob: "c"}, make([]byte, 4))
	_, ok = c.Get(ctx, Key{Blob: "b"})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Blob: "a"})
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Size())

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)

	c.Set(ctx, Key{Blob: "huge"}, make([]byte, 11))
	_, ok = c.Get(ctx, Key{Blob: "huge"})
	assert.False(t, ok)
}

func TestLRUBlockCache_Update(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(100, nil)
	k := Key{Blob: "a", Block: 1}

	c.Set(ctx, k, []byte("one"))
	c.Set(ctx, k, []byte("three"))
	v, ok := c.Get(ctx, k)
	require.True(t, ok)
	assert.Equal(t, "three", string(v))
	assert.Equal(t, int64(5), c.Size())
}

func TestLRUBlockCache_ResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 8})
	c := NewLRUBlockCache(100, rc)

	c.Set(ctx, Key{Blob: "a"}, make([]byte, 6))
	assert.Equal(t, int64(6), rc.MemoryUsage())

	// Budget refuses the block; it is not cached.
	c.Set(ctx, Key{Blob: "b"}, make([]byte, 6))
	_, ok := c.Get(ctx, Key{Blob: "b"})
	assert.False(t, ok)

	InvalidateBlob(c, "a")
	assert.Equal(t, int64(0), rc.MemoryUsage())
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUBlockCache_InvalidateBlob(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1<<10, nil)
	for i := range uint64(4) {
		c.Set(ctx, Key{Blob: "snap-1", Block: i}, []byte{byte(i)})
		c.Set(ctx, Key{Blob: "snap-2", Block: i}, []byte{byte(i)})
	}

	InvalidateBlob(c, "snap-1")
	_, ok := c.Get(ctx, Key{Blob: "snap-1", Block: 0})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Blob: "snap-2", Block: 3})
	assert.True(t, ok)
	assert.Equal(t, int64(4), c.Size())
}

func TestShardedLRUBlockCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewShardedLRUBlockCache(1<<20, nil)
	defer func() { require.NoError(t, c.Close()) }()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range uint64(100) {
				k := Key{Blob: fmt.Sprintf("blob-%d", w), Block: i}
				c.Set(ctx, k, []byte{byte(i)})
				v, ok := c.Get(ctx, k)
				if assert.True(t, ok) {
					assert.Equal(t, byte(i), v[0])
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), c.Size())
	hits, _ := c.Stats()
	assert.Equal(t, int64(800), hits)

	c.Invalidate(func(k Key) bool { return k.Blob == "blob-0" })
	assert.Equal(t, int64(700), c.Size())
}
