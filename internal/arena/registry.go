package arena

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryClosed is returned when creating arenas after Close.
var ErrRegistryClosed = errors.New("arena: registry closed")

// Registry is the process context that owns every arena. It creates arenas
// with monotonically increasing ids, resolves handles to bytes, and tears
// all live arenas down on Close.
type Registry struct {
	mu     sync.Mutex
	nextID uint32
	arenas map[uint32]*Arena
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{arenas: make(map[uint32]*Arena)}
}

// NewArena creates and registers an arena whose first chunk holds
// initialCapacity bytes (the chunk size if zero).
func (r *Registry) NewArena(initialCapacity int, opts ...Option) (*Arena, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r.nextID >= MaxArenas {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: arena ids exhausted", ErrOutOfMemory)
	}
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	a, err := newArena(r, id, initialCapacity, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		a.destroyed = true
		for _, c := range a.chunks {
			a.acquirer.ReleaseMemory(int64(len(c.data)))
			_ = c.mapping.Close()
		}
		return nil, ErrRegistryClosed
	}
	r.arenas[id] = a
	return a, nil
}

// Lookup returns the live arena with the given id.
func (r *Registry) Lookup(id uint32) (*Arena, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.arenas[id]
	return a, ok
}

// Resolve returns the bytes behind ref, whichever arena it belongs to.
func (r *Registry) Resolve(ref Ref) ([]byte, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	a, ok := r.Lookup(ref.ArenaID())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleRef, ref)
	}
	return a.resolveLocal(ref)
}

// Live returns the number of live arenas.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.arenas)
}

// WithArena runs fn with a fresh arena and destroys it when fn returns.
func (r *Registry) WithArena(initialCapacity int, fn func(*Arena) error, opts ...Option) error {
	a, err := r.NewArena(initialCapacity, opts...)
	if err != nil {
		return err
	}
	defer a.Destroy()
	return fn(a)
}

// Close destroys every live arena. It is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	roots := make([]*Arena, 0, len(r.arenas))
	for _, a := range r.arenas {
		if a.parent == nil {
			roots = append(roots, a)
		}
	}
	r.mu.Unlock()

	for _, a := range roots {
		a.Destroy()
	}

	r.mu.Lock()
	clear(r.arenas)
	r.mu.Unlock()
	return nil
}

func (r *Registry) unregister(id uint32) {
	r.mu.Lock()
	delete(r.arenas, id)
	r.mu.Unlock()
}
