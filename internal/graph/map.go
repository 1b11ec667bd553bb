package graph

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/conv"
	"github.com/hupe1980/rulecache/internal/hash"
)

// MapFlags is stored in a Map's sub field.
type MapFlags uint16

const (
	// MapGrowable enables rehashing once the load factor exceeds 3/4.
	MapGrowable MapFlags = 1 << iota
	// MapScalarValues stores raw words instead of record pointers as values.
	MapScalarValues
)

const (
	mapSize    = 8
	mapBuckets = 16
	mapSub     = 24
	mapFixed   = 32

	bucketKey   = 8
	bucketValue = 16
	bucketNext  = 24
	bucketFixed = 32

	// DefaultMapSize is the bucket count used when none is given.
	DefaultMapSize = 8
)

// ErrNotFound is returned by Delete for absent keys.
var ErrNotFound = errors.New("graph: key not found")

// Map is a mutable handle to a Map record in a Heap.
type Map struct {
	h Heap
	p Ptr
}

// NewMap allocates an empty map with initialSize buckets.
func NewMap(h Heap, initialSize int, flags MapFlags) (*Map, error) {
	if initialSize <= 0 {
		initialSize = DefaultMapSize
	}
	buckets, err := New(h, TagBuckets, 0, initialSize)
	if err != nil {
		return nil, err
	}
	r, err := New(h, TagMap, uint16(flags), 0)
	if err != nil {
		return nil, err
	}
	r.SetWord(mapBuckets, uint64(buckets.Ptr()))
	return &Map{h: h, p: r.Ptr()}, nil
}

// OpenMap returns a mutable handle to the Map record at p.
func OpenMap(h Heap, p Ptr) (*Map, error) {
	if _, err := LoadAs(h, p, TagMap); err != nil {
		return nil, err
	}
	return &Map{h: h, p: p}, nil
}

// Ptr returns the Map record's address.
func (m *Map) Ptr() Ptr { return m.p }

// Heap returns the heap the map allocates in.
func (m *Map) Heap() Heap { return m.h }

func (m *Map) record() (Record, error) { return LoadAs(m.h, m.p, TagMap) }

// Flags returns the map flags.
func (m *Map) Flags() (MapFlags, error) {
	r, err := m.record()
	if err != nil {
		return 0, err
	}
	return MapFlags(r.Sub()), nil
}

// Len returns the number of entries, shadowed ones included.
func (m *Map) Len() (int, error) {
	r, err := m.record()
	if err != nil {
		return 0, err
	}
	return conv.Uint64ToInt(r.Word(mapSize))
}

// Insert binds key to v. Within the map, the newest binding of a key
// shadows older ones.
func (m *Map) Insert(key string, v uint64) error {
	r, err := m.record()
	if err != nil {
		return err
	}
	buckets, err := LoadAs(m.h, r.PtrAt(mapBuckets), TagBuckets)
	if err != nil {
		return err
	}

	k, err := NewText(m.h, key)
	if err != nil {
		return err
	}
	b, err := New(m.h, TagBucket, 0, 0)
	if err != nil {
		return err
	}

	idx := slot(key, buckets.Count())
	head, _ := buckets.TailPtr(idx)
	b.SetWord(bucketKey, uint64(k))
	b.SetWord(bucketValue, v)
	b.SetWord(bucketNext, uint64(head))
	if err := buckets.SetTailPtr(idx, b.Ptr()); err != nil {
		return err
	}

	size := r.Word(mapSize) + 1
	r.SetWord(mapSize, size)

	if MapFlags(r.Sub())&MapGrowable != 0 && size*4 > uint64(buckets.Count())*3 {
		return m.Resize()
	}
	return nil
}

// Lookup returns the innermost binding of key.
func (m *Map) Lookup(key string) (uint64, bool, error) {
	return MapLookup(m.h, m.p, key)
}

// Update replaces the innermost binding of key, inserting it if absent.
func (m *Map) Update(key string, v uint64) error {
	b, err := findBucket(m.h, m.p, key)
	if err != nil {
		return err
	}
	if b.ptr.IsNil() {
		return m.Insert(key, v)
	}
	b.SetWord(bucketValue, v)
	return nil
}

// Delete removes the innermost binding of key, exposing the one it shadowed.
func (m *Map) Delete(key string) error {
	r, err := m.record()
	if err != nil {
		return err
	}
	buckets, err := LoadAs(m.h, r.PtrAt(mapBuckets), TagBuckets)
	if err != nil {
		return err
	}
	idx := slot(key, buckets.Count())

	var prev Record
	cur, _ := buckets.TailPtr(idx)
	for !cur.IsNil() {
		b, err := LoadAs(m.h, cur, TagBucket)
		if err != nil {
			return err
		}
		ok, err := textEquals(m.h, b.PtrAt(bucketKey), key)
		if err != nil {
			return err
		}
		if ok {
			next := b.PtrAt(bucketNext)
			if prev.b == nil {
				_ = buckets.SetTailPtr(idx, next)
			} else {
				prev.SetWord(bucketNext, uint64(next))
			}
			r.SetWord(mapSize, r.Word(mapSize)-1)
			return nil
		}
		prev = b
		cur = b.PtrAt(bucketNext)
	}
	return fmt.Errorf("%w: %q", ErrNotFound, key)
}

// Range calls fn for every visible binding until fn returns false.
func (m *Map) Range(fn func(key string, v uint64) bool) error {
	return MapRange(m.h, m.p, fn)
}

// Resize doubles the bucket array. The new array is carved from the map's
// sub-heap; the relative order of bindings per key is preserved.
func (m *Map) Resize() error {
	r, err := m.record()
	if err != nil {
		return err
	}
	old, err := LoadAs(m.h, r.PtrAt(mapBuckets), TagBuckets)
	if err != nil {
		return err
	}

	sub, err := m.subHeap(r)
	if err != nil {
		return err
	}
	grown, err := New(sub, TagBuckets, 0, old.Count()*2)
	if err != nil {
		return err
	}

	var chain []Record
	for i := range old.Count() {
		chain = chain[:0]
		cur, _ := old.TailPtr(i)
		for !cur.IsNil() {
			b, err := LoadAs(m.h, cur, TagBucket)
			if err != nil {
				return err
			}
			chain = append(chain, b)
			cur = b.PtrAt(bucketNext)
		}
		// Oldest first, so prepending leaves the newest binding in front.
		for j := len(chain) - 1; j >= 0; j-- {
			b := chain[j]
			key, err := TextBytes(m.h, b.PtrAt(bucketKey))
			if err != nil {
				return err
			}
			idx := slotBytes(key, grown.Count())
			head, _ := grown.TailPtr(idx)
			b.SetWord(bucketNext, uint64(head))
			_ = grown.SetTailPtr(idx, b.ptr)
		}
	}

	r.SetWord(mapBuckets, uint64(grown.Ptr()))
	return nil
}

func (m *Map) subHeap(r Record) (Heap, error) {
	if v, ok := m.h.Transient(r.Word(mapSub)); ok {
		if h, ok := v.(Heap); ok {
			return h, nil
		}
	}
	sub, err := m.h.Sub()
	if err != nil {
		return nil, err
	}
	r.SetWord(mapSub, m.h.PutTransient(sub))
	return sub, nil
}

// MapLookup returns the innermost binding of key in the Map record at p.
func MapLookup(sp Space, p Ptr, key string) (uint64, bool, error) {
	b, err := findBucket(sp, p, key)
	if err != nil || b.ptr.IsNil() {
		return 0, false, err
	}
	return b.Word(bucketValue), true, nil
}

// MapRange calls fn for every visible binding of the Map record at p.
func MapRange(sp Space, p Ptr, fn func(key string, v uint64) bool) error {
	r, err := LoadAs(sp, p, TagMap)
	if err != nil {
		return err
	}
	buckets, err := LoadAs(sp, r.PtrAt(mapBuckets), TagBuckets)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for i := range buckets.Count() {
		clear(seen)
		cur, _ := buckets.TailPtr(i)
		for !cur.IsNil() {
			b, err := LoadAs(sp, cur, TagBucket)
			if err != nil {
				return err
			}
			key, err := TextString(sp, b.PtrAt(bucketKey))
			if err != nil {
				return err
			}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				if !fn(key, b.Word(bucketValue)) {
					return nil
				}
			}
			cur = b.PtrAt(bucketNext)
		}
	}
	return nil
}

// MapLen returns the entry count of the Map record at p.
func MapLen(sp Space, p Ptr) (int, error) {
	r, err := LoadAs(sp, p, TagMap)
	if err != nil {
		return 0, err
	}
	return conv.Uint64ToInt(r.Word(mapSize))
}

func findBucket(sp Space, p Ptr, key string) (Record, error) {
	r, err := LoadAs(sp, p, TagMap)
	if err != nil {
		return Record{}, err
	}
	buckets, err := LoadAs(sp, r.PtrAt(mapBuckets), TagBuckets)
	if err != nil {
		return Record{}, err
	}
	if buckets.Count() == 0 {
		return Record{}, nil
	}
	cur, _ := buckets.TailPtr(slot(key, buckets.Count()))
	for !cur.IsNil() {
		b, err := LoadAs(sp, cur, TagBucket)
		if err != nil {
			return Record{}, err
		}
		ok, err := textEquals(sp, b.PtrAt(bucketKey), key)
		if err != nil {
			return Record{}, err
		}
		if ok {
			return b, nil
		}
		cur = b.PtrAt(bucketNext)
	}
	return Record{}, nil
}

func slot(key string, n int) int {
	return int(hash.String(key) % uint64(n)) //nolint:gosec // n > 0
}

func slotBytes(key []byte, n int) int {
	return int(hash.Bytes(key) % uint64(n)) //nolint:gosec // n > 0
}
