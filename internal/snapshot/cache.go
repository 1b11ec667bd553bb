package snapshot

import (
	"fmt"
	"unsafe"

	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/hash"
	"github.com/hupe1980/rulecache/internal/traverse"
)

// Cache is a snapshot in exactly one of two forms: live (a root inside an
// arena region) or attached (a relocated buffer).
type Cache struct {
	space    graph.Space
	root     graph.Ptr
	attached bool
	buf      []byte
	stamp    uint64
	release  func() error
	released bool
	view     *ownerRef
}

// Build returns the live cache of the graph at root.
func Build(region graph.Space, root graph.Ptr) (*Cache, error) {
	rec, err := graph.Load(region, root)
	if err != nil {
		return nil, err
	}
	c := &Cache{space: region, root: root}
	if rec.Tag() == graph.TagSnapshot {
		c.stamp = rec.Word(graph.SnapshotGenerationOffset)
	}
	return c, nil
}

// Root returns the root pointer, valid in Space.
func (c *Cache) Root() graph.Ptr { return c.root }

// Space returns the space root and every pointer reachable from it resolve in.
func (c *Cache) Space() graph.Space { return c.space }

// IsAttached reports whether the cache is the attached form.
func (c *Cache) IsAttached() bool { return c.attached }

// Generation returns the stamp recorded when the cache was built or attached.
func (c *Cache) Generation() uint64 { return c.stamp }

// Buffer returns the attached buffer, nil for live caches.
func (c *Cache) Buffer() []byte { return c.buf }

// Heap returns the heap of a live cache whose space is one.
func (c *Cache) Heap() (graph.Heap, error) {
	if c.attached {
		return nil, ErrReadOnly
	}
	h, ok := c.space.(graph.Heap)
	if !ok {
		return nil, ErrReadOnly
	}
	return h, nil
}

// Snapshot returns the root as a Snapshot record.
func (c *Cache) Snapshot() (graph.Snapshot, error) {
	if c.released {
		return graph.Snapshot{}, ErrReleased
	}
	return graph.LoadSnapshot(c.space, c.root)
}

// RuleSet returns the rule set at the root, or the rules of a Snapshot root.
func (c *Cache) RuleSet() (graph.RuleSet, error) {
	if c.released {
		return graph.RuleSet{}, ErrReleased
	}
	rec, err := graph.Load(c.space, c.root)
	if err != nil {
		return graph.RuleSet{}, err
	}
	if rec.Tag() == graph.TagSnapshot {
		return graph.LoadRuleSet(c.space, graph.Snapshot{Record: rec}.Rules())
	}
	return graph.LoadRuleSet(c.space, c.root)
}

// Release runs the release hook of an attached cache, e.g. unmapping its
// buffer. The cache must not be used afterwards.
func (c *Cache) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	if c.view != nil {
		c.view.drop()
	}
	if c.release != nil {
		return c.release()
	}
	return nil
}

type serializeOptions struct {
	base     uint64
	interned bool
}

// SerializeOption configures Serialize.
type SerializeOption func(*serializeOptions)

// WithOriginalBase records base as the buffer's original base address.
func WithOriginalBase(base uint64) SerializeOption {
	return func(o *serializeOptions) { o.base = base }
}

// WithInterning merges equal texts and type terms in the payload.
func WithInterning() SerializeOption {
	return func(o *serializeOptions) { o.interned = true }
}

// Serialize writes the graph reachable from the cache root into a new buffer.
func Serialize(c *Cache, opts ...SerializeOption) ([]byte, error) {
	if c.released {
		return nil, ErrReleased
	}
	var o serializeOptions
	for _, opt := range opts {
		opt(&o)
	}
	topts := []traverse.SerializeOption{traverse.WithBase(o.base)}
	if o.interned {
		topts = append(topts, traverse.WithInterning())
	}

	flat, err := traverse.Serialize(c.space, c.root, topts...)
	if err != nil {
		return nil, err
	}
	locs := flat.Locations()

	h := Header{
		Version:      FormatVersion,
		OriginalBase: o.base,
		Root:         o.base + flat.Root,
		PayloadSize:  uint64(len(flat.Payload)),
		PointerCount: uint64(len(locs)),
	}
	buf := make([]byte, h.Size())
	putHeader(buf, h)
	for i, loc := range locs {
		le.PutUint64(buf[HeaderSize+i*8:], loc)
	}
	copy(buf[h.PayloadStart():], flat.Payload)
	return buf, nil
}

type attachOptions struct {
	base    *uint64
	release func() error
}

// AttachOption configures Attach.
type AttachOption func(*attachOptions)

// WithBase relocates to base instead of the payload's real address.
// Used to simulate another process's mapping.
func WithBase(base uint64) AttachOption {
	return func(o *attachOptions) { o.base = &base }
}

// WithRelease sets a hook run by Cache.Release.
func WithRelease(fn func() error) AttachOption {
	return func(o *attachOptions) { o.release = fn }
}

// Attach validates buf, relocates it in place and returns a read-only view.
// No payload bytes are copied or decoded beyond the root record.
//
// buf backs the returned cache until it is released. Attaching buf again at
// the same base shares it; another base fails with ErrBufferInUse while a
// cache attached to buf is live.
func Attach(buf []byte, opts ...AttachOption) (*Cache, error) {
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache{release: o.release}
	if err := c.attach(buf, o.base); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) attach(buf []byte, base *uint64) error {
	h, err := ParseHeader(buf)
	if err != nil {
		return err
	}
	locs, payload := split(buf, h)

	newBase := payloadAddr(payload)
	if base != nil {
		newBase = *base
	}

	stamp, err := stampOf(h, locs, payload)
	if err != nil {
		return err
	}
	owners.Lock()
	defer owners.Unlock()
	if at, ok := c.conflictLocked(buf, h, newBase); ok {
		return fmt.Errorf("%w: relocated to %#x by a live cache", ErrBufferInUse, at)
	}
	root, err := traverse.Relocate(payload, locs, h.Root, h.OriginalBase, newBase)
	if err != nil {
		return err
	}
	h.OriginalBase = newBase
	h.Root = root
	putHeader(buf, h)

	view := NewView(newBase, payload)
	if _, err := graph.Load(view, graph.Ptr(root)); err != nil {
		return fmt.Errorf("%w: root: %w", ErrCorruptBuffer, err)
	}

	c.space = view
	c.root = graph.Ptr(root)
	c.attached = true
	c.buf = buf
	c.stamp = stamp
	c.released = false
	c.claimLocked(buf, newBase)
	return nil
}

// RefreshIfStale compares the stamp of buf with the one recorded when c was
// attached. If they differ, buf is attached in place of c's view and true is
// returned. buf is only read when the stamps match.
func RefreshIfStale(buf []byte, c *Cache, opts ...AttachOption) (bool, error) {
	stamp, err := Stamp(buf)
	if err != nil {
		return false, err
	}
	if c.attached && !c.released && stamp == c.stamp {
		return false, nil
	}
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}
	old := c.release
	if err := c.attach(buf, o.base); err != nil {
		return false, err
	}
	c.release = o.release
	if old != nil {
		_ = old()
	}
	return true, nil
}

// Stamp returns the generation stamp of buf without attaching it: the
// generation of a Snapshot root, or a CRC32C of the payload with pointer
// words normalized to offsets for any other root.
func Stamp(buf []byte) (uint64, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return 0, err
	}
	locs, payload := split(buf, h)
	return stampOf(h, locs, payload)
}

func stampOf(h Header, locs []uint64, payload []byte) (uint64, error) {
	off := h.RootOffset()
	if h.Root < h.OriginalBase || off < 8 || off >= uint64(len(payload)) {
		return 0, fmt.Errorf("%w: root %#x outside payload", ErrCorruptBuffer, h.Root)
	}
	rec, err := graph.Decode(graph.Ptr(h.Root), payload[off:])
	if err != nil {
		return 0, fmt.Errorf("%w: root: %w", ErrCorruptBuffer, err)
	}
	if rec.Tag() == graph.TagSnapshot {
		return rec.Word(graph.SnapshotGenerationOffset), nil
	}
	return fingerprint(h.OriginalBase, locs, payload), nil
}

func fingerprint(base uint64, locs []uint64, payload []byte) uint64 {
	crc := hash.NewCRC32C()
	var word [8]byte
	prev := uint64(0)
	for _, loc := range locs {
		if loc < prev || loc+8 > uint64(len(payload)) {
			break
		}
		_, _ = crc.Write(payload[prev:loc])
		le.PutUint64(word[:], le.Uint64(payload[loc:])-base)
		_, _ = crc.Write(word[:])
		prev = loc + 8
	}
	_, _ = crc.Write(payload[prev:])
	return uint64(crc.Sum32())
}

func payloadAddr(payload []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&payload[0]))) //nolint:gosec // address is used as a relocation base only
}
