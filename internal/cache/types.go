package cache

import "context"

// Key identifies one block of one blob.
type Key struct {
	// Blob is the store-relative blob name.
	Blob string
	// Block is the block index inside the blob.
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The cache retains b; callers must not modify it.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	Close() error
	// Stats returns hit and miss counts.
	Stats() (hits, misses int64)
}

// InvalidateBlob removes every block of blob.
func InvalidateBlob(c BlockCache, blob string) {
	c.Invalidate(func(k Key) bool { return k.Blob == blob })
}
