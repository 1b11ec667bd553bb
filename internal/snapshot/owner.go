package snapshot

import (
	"runtime"
	"sync"
	"unsafe"
)

// owners tracks which buffers back live attached caches, keyed by the
// address of the buffer's first byte. A buffer may back several caches as
// long as they share one base.
var owners = struct {
	sync.Mutex
	m map[uintptr]*owner
}{m: make(map[uintptr]*owner)}

type owner struct {
	base uint64
	refs int
}

// ownerRef is one cache's claim on a buffer.
type ownerRef struct {
	key     uintptr
	owner   *owner
	dropped bool
}

func bufferKey(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

// conflictLocked returns the base a live cache other than c relocated buf
// to, if that differs from base. An entry whose buffer no longer carries
// the recorded base belongs to memory that has since been reused.
func (c *Cache) conflictLocked(buf []byte, h Header, base uint64) (uint64, bool) {
	key := bufferKey(buf)
	o, ok := owners.m[key]
	if !ok || o.base == base || h.OriginalBase != o.base {
		return 0, false
	}
	refs := o.refs
	if c.view != nil && !c.view.dropped && c.view.key == key {
		refs--
	}
	return o.base, refs > 0
}

// claimLocked records that c is attached to buf at base, dropping any
// claim c held on another buffer.
func (c *Cache) claimLocked(buf []byte, base uint64) {
	key := bufferKey(buf)
	if c.view != nil && !c.view.dropped && c.view.key == key {
		c.view.owner.base = base
		return
	}
	if c.view != nil {
		c.view.dropLocked()
	}
	o, ok := owners.m[key]
	if !ok || o.base != base {
		// Live conflicts were rejected before, so a differing entry is stale.
		o = &owner{base: base}
		owners.m[key] = o
	}
	o.refs++
	ref := &ownerRef{key: key, owner: o}
	c.view = ref
	runtime.AddCleanup(c, func(r *ownerRef) { r.drop() }, ref)
}

func (r *ownerRef) drop() {
	owners.Lock()
	defer owners.Unlock()
	r.dropLocked()
}

func (r *ownerRef) dropLocked() {
	if r.dropped {
		return
	}
	r.dropped = true
	r.owner.refs--
	if r.owner.refs <= 0 && owners.m[r.key] == r.owner {
		delete(owners.m, r.key)
	}
}
