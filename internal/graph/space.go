package graph

import (
	"github.com/hupe1980/rulecache/internal/arena"
)

// Ptr references a record inside a Space. Zero is nil.
type Ptr uint64

// IsNil reports whether p is nil.
func (p Ptr) IsNil() bool { return p == 0 }

// Space resolves pointers to record bytes.
type Space interface {
	// Bytes returns the bytes from p to the end of the valid region containing it.
	Bytes(p Ptr) ([]byte, error)
}

// Heap is a Space that records can be allocated in.
type Heap interface {
	Space
	// Alloc returns a zeroed, 8-byte aligned block.
	Alloc(size int) (Ptr, []byte, error)
	// Owns reports whether p was allocated by this heap or one of its sub-heaps.
	Owns(p Ptr) bool
	// Sub creates a heap whose lifetime is bound to this one.
	Sub() (Heap, error)
	// PutTransient stores a value that is only meaningful inside this heap.
	PutTransient(v any) uint64
	// Transient returns a value stored by PutTransient.
	Transient(h uint64) (any, bool)
}

// Region is the Heap backed by an arena.
type Region struct {
	a *arena.Arena
}

// NewRegion wraps a.
func NewRegion(a *arena.Arena) *Region {
	return &Region{a: a}
}

// Arena returns the underlying arena.
func (r *Region) Arena() *arena.Arena { return r.a }

// Bytes implements Space. Pointers of other live arenas resolve through the registry.
func (r *Region) Bytes(p Ptr) ([]byte, error) {
	return r.a.Resolve(arena.Ref(p))
}

// Alloc implements Heap.
func (r *Region) Alloc(size int) (Ptr, []byte, error) {
	ref, b, err := r.a.Alloc(size)
	return Ptr(ref), b, err
}

// Owns implements Heap.
func (r *Region) Owns(p Ptr) bool {
	return r.a.Contains(arena.Ref(p))
}

// Sub implements Heap.
func (r *Region) Sub() (Heap, error) {
	child, err := r.a.NewChild()
	if err != nil {
		return nil, err
	}
	return NewRegion(child), nil
}

// PutTransient implements Heap.
func (r *Region) PutTransient(v any) uint64 { return r.a.PutTransient(v) }

// Transient implements Heap.
func (r *Region) Transient(h uint64) (any, bool) { return r.a.Transient(h) }
