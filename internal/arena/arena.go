package arena

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/mmap"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	// The in-progress build has to be abandoned.
	ErrOutOfMemory = errors.New("arena: out of memory")
	// ErrStaleRef is returned when a handle outlives its arena.
	ErrStaleRef = errors.New("arena: stale reference")
	// ErrInvalidRef is returned for nil or out-of-range handles.
	ErrInvalidRef = errors.New("arena: invalid reference")
	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("arena: invalid allocation size")
	// ErrDestroyed is returned when allocating from a destroyed arena.
	ErrDestroyed = errors.New("arena: destroyed")
)

const (
	// DefaultChunkSize is the default size of a chunk (1MB).
	DefaultChunkSize = 1024 * 1024
	// DefaultAlignment is the memory alignment of every allocation.
	DefaultAlignment = 8
)

// Stats tracks arena memory usage metrics.
//
// Note on semantics:
//   - BytesReserved: total memory mapped for chunks
//   - BytesUsed: actual bytes requested by allocations (before alignment)
//   - BytesWasted: padding added for alignment and abandoned chunk tails
//   - ActiveChunks: number of chunks currently held
//   - TotalAllocs: cumulative allocation count
type Stats struct {
	ChunksAllocated uint64
	BytesReserved   uint64
	BytesUsed       uint64
	BytesWasted     uint64
	ActiveChunks    uint64
	TotalAllocs     uint64
}

type chunk struct {
	data    []byte
	mapping *mmap.Mapping
	used    int
}

// Arena is a bump allocator over off-heap chunks.
type Arena struct {
	id        uint32
	reg       *Registry
	chunkSize int
	chunks    []*chunk
	acquirer  MemoryAcquirer

	parent   *Arena
	children []*Arena

	transients []any
	stats      Stats
	destroyed  bool
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithMemoryAcquirer charges every chunk against acquirer.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Arena) {
		a.acquirer = acquirer
	}
}

// WithChunkSize sets the size of chunks linked on overflow.
func WithChunkSize(size int) Option {
	return func(a *Arena) {
		if size > 0 {
			a.chunkSize = min(size, MaxChunkSize)
		}
	}
}

func newArena(reg *Registry, id uint32, initialCapacity int, opts ...Option) (*Arena, error) {
	a := &Arena{
		id:        id,
		reg:       reg,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.acquirer == nil {
		a.acquirer = noopAcquirer{}
	}
	if initialCapacity <= 0 {
		initialCapacity = a.chunkSize
	}
	if err := a.linkChunk(initialCapacity); err != nil {
		return nil, err
	}
	return a, nil
}

// ID returns the arena id encoded in its handles.
func (a *Arena) ID() uint32 { return a.id }

// Registry returns the registry the arena belongs to.
func (a *Arena) Registry() *Registry { return a.reg }

func (a *Arena) linkChunk(size int) error {
	if len(a.chunks) >= MaxChunks {
		return fmt.Errorf("%w: chunk limit %d reached", ErrOutOfMemory, MaxChunks)
	}
	size = alignUp(size)
	if size > MaxChunkSize {
		return fmt.Errorf("%w: allocation of %d bytes exceeds chunk limit", ErrOutOfMemory, size)
	}

	if err := a.acquirer.AcquireMemory(int64(size)); err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		a.acquirer.ReleaseMemory(int64(size))
		return fmt.Errorf("%w: map chunk: %w", ErrOutOfMemory, err)
	}

	if n := len(a.chunks); n > 0 {
		last := a.chunks[n-1]
		a.stats.BytesWasted += uint64(len(last.data) - last.used) //nolint:gosec // used <= len
	}

	a.chunks = append(a.chunks, &chunk{data: mapping.Bytes(), mapping: mapping})
	a.stats.ChunksAllocated++
	a.stats.ActiveChunks++
	a.stats.BytesReserved += uint64(size) //nolint:gosec // positive
	return nil
}

// Alloc returns a zeroed, aligned block of size bytes and its handle.
// On overflow a new chunk of max(chunk size, size) is linked.
func (a *Arena) Alloc(size int) (Ref, []byte, error) {
	if a.destroyed {
		return 0, nil, ErrDestroyed
	}
	if size <= 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	aligned := alignUp(size)

	cur := a.chunks[len(a.chunks)-1]
	if cur.used+aligned > len(cur.data) {
		if err := a.linkChunk(max(a.chunkSize, aligned)); err != nil {
			return 0, nil, err
		}
		cur = a.chunks[len(a.chunks)-1]
	}

	off := cur.used
	cur.used += aligned

	a.stats.BytesUsed += uint64(size)           //nolint:gosec // positive
	a.stats.BytesWasted += uint64(aligned - size) //nolint:gosec // positive
	a.stats.TotalAllocs++

	return makeRef(a.id, len(a.chunks)-1, off), cur.data[off : off+aligned : off+aligned], nil
}

// Owns reports whether ref was allocated by this arena and is still live.
func (a *Arena) Owns(ref Ref) bool {
	if a.destroyed || ref.IsNil() || ref.ArenaID() != a.id {
		return false
	}
	c := ref.Chunk()
	if c >= len(a.chunks) {
		return false
	}
	return ref.Offset() < a.chunks[c].used
}

// Contains reports whether ref belongs to this arena or one of its sub-arenas.
func (a *Arena) Contains(ref Ref) bool {
	if a.Owns(ref) {
		return true
	}
	for _, child := range a.children {
		if child.Contains(ref) {
			return true
		}
	}
	return false
}

// Resolve returns the bytes from ref to the end of the allocated part of
// its chunk. Foreign handles are resolved through the registry.
func (a *Arena) Resolve(ref Ref) ([]byte, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if ref.ArenaID() != a.id {
		return a.reg.Resolve(ref)
	}
	return a.resolveLocal(ref)
}

func (a *Arena) resolveLocal(ref Ref) ([]byte, error) {
	if a.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrStaleRef, ref)
	}
	c := ref.Chunk()
	if c >= len(a.chunks) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	ch := a.chunks[c]
	off := ref.Offset()
	if off >= ch.used {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	return ch.data[off:ch.used:ch.used], nil
}

// NewChild creates a sub-arena that is destroyed together with a.
func (a *Arena) NewChild() (*Arena, error) {
	if a.destroyed {
		return nil, ErrDestroyed
	}
	child, err := a.reg.NewArena(a.chunkSize, WithChunkSize(a.chunkSize), WithMemoryAcquirer(a.acquirer))
	if err != nil {
		return nil, err
	}
	child.parent = a
	a.children = append(a.children, child)
	return child, nil
}

// Children returns the live sub-arenas.
func (a *Arena) Children() []*Arena { return a.children }

// PutTransient stores v in the arena's transient table and returns a
// non-zero handle. Transient handles are meaningful only inside this arena.
func (a *Arena) PutTransient(v any) uint64 {
	a.transients = append(a.transients, v)
	return uint64(len(a.transients))
}

// Transient returns the value stored under h.
func (a *Arena) Transient(h uint64) (any, bool) {
	if h == 0 || h > uint64(len(a.transients)) {
		return nil, false
	}
	return a.transients[h-1], true
}

// Reset clears all allocations, keeping only the first chunk. Sub-arenas
// and transients are dropped. Handles issued before Reset must not be used.
func (a *Arena) Reset() {
	if a.destroyed {
		return
	}
	for _, child := range a.children {
		child.destroy(false)
	}
	a.children = nil
	a.transients = nil

	first := a.chunks[0]
	clear(first.data[:first.used])
	first.used = 0

	for _, c := range a.chunks[1:] {
		a.acquirer.ReleaseMemory(int64(len(c.data)))
		_ = c.mapping.Close()
	}
	a.chunks = a.chunks[:1]

	a.stats.ActiveChunks = 1
	a.stats.BytesReserved = uint64(len(first.data))
	a.stats.BytesUsed = 0
	a.stats.BytesWasted = 0
}

// Destroy releases every chunk and sub-arena and returns the memory budget.
// Afterwards all handles of the arena resolve to ErrStaleRef.
func (a *Arena) Destroy() {
	a.destroy(true)
}

func (a *Arena) destroy(detach bool) {
	if a.destroyed {
		return
	}
	for _, child := range a.children {
		child.destroy(false)
	}
	a.children = nil

	for _, c := range a.chunks {
		a.acquirer.ReleaseMemory(int64(len(c.data)))
		_ = c.mapping.Close()
	}
	a.chunks = nil
	a.transients = nil
	a.destroyed = true

	a.stats.ActiveChunks = 0
	a.stats.BytesReserved = 0
	a.stats.BytesUsed = 0
	a.stats.BytesWasted = 0

	a.reg.unregister(a.id)
	if detach && a.parent != nil {
		a.parent.removeChild(a)
	}
}

func (a *Arena) removeChild(child *Arena) {
	for i, c := range a.children {
		if c == child {
			a.children = append(a.children[:i], a.children[i+1:]...)
			return
		}
	}
}

// Destroyed reports whether Destroy has been called.
func (a *Arena) Destroyed() bool { return a.destroyed }

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	return a.stats
}

// Usage returns the memory usage percentage.
func (a *Arena) Usage() float64 {
	if a.stats.BytesReserved == 0 {
		return 0
	}
	return float64(a.stats.BytesUsed) / float64(a.stats.BytesReserved) * 100
}

func (a *Arena) String() string {
	return fmt.Sprintf(
		"Arena{id: %d, chunks: %d, reserved: %.2f MB, used: %.2f MB, wasted: %.2f KB, usage: %.1f%%, allocs: %d}",
		a.id,
		a.stats.ActiveChunks,
		float64(a.stats.BytesReserved)/(1024*1024),
		float64(a.stats.BytesUsed)/(1024*1024),
		float64(a.stats.BytesWasted)/1024,
		a.Usage(),
		a.stats.TotalAllocs,
	)
}

type noopAcquirer struct{}

func (noopAcquirer) AcquireMemory(int64) error { return nil }
func (noopAcquirer) ReleaseMemory(int64)       {}

func alignUp(n int) int {
	const mask = DefaultAlignment - 1
	return (n + mask) &^ mask
}
