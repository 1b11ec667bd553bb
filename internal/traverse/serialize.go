package traverse

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/rulecache/internal/conv"
	"github.com/hupe1980/rulecache/internal/graph"
)

var le = binary.LittleEndian

// Flat is a serialized graph. Every non-nil pointer in Payload holds
// Base + the payload offset of its target, and its location is recorded in
// Pointers as a word index. Payload offset 0 is a reserved null word.
type Flat struct {
	Base     uint64
	Root     uint64 // payload offset of the root record
	Payload  []byte
	Pointers *roaring.Bitmap

	records int
}

// Locations returns the byte offsets of all pointer words in ascending order.
func (f *Flat) Locations() []uint64 {
	out := make([]uint64, 0, f.Pointers.GetCardinality())
	it := f.Pointers.Iterator()
	for it.HasNext() {
		out = append(out, uint64(it.Next())*graph.WordSize)
	}
	return out
}

// Records returns the number of distinct records written.
func (f *Flat) Records() int { return f.records }

type serializeOptions struct {
	base     uint64
	interned bool
}

// SerializeOption configures Serialize.
type SerializeOption func(*serializeOptions)

// WithBase sets the base address pointers are expressed against.
func WithBase(base uint64) SerializeOption {
	return func(o *serializeOptions) { o.base = base }
}

// WithInterning merges records with equal semantic keys (texts and types).
func WithInterning() SerializeOption {
	return func(o *serializeOptions) { o.interned = true }
}

// Serialize writes the graph reachable from root into a flat payload.
func Serialize(src graph.Space, root graph.Ptr, opts ...SerializeOption) (*Flat, error) {
	var o serializeOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := serializer{
		src:  src,
		base: o.base,
		buf:  make([]byte, graph.WordSize, 4096),
		objs: make(map[graph.Ptr]uint64),
		locs: roaring.New(),
	}
	if o.interned {
		s.intern = make(map[string]uint64)
	}

	off, err := s.place(root, 0)
	if err != nil {
		return nil, err
	}
	if uint64(len(s.buf)) > math.MaxUint32*graph.WordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(s.buf))
	}
	s.locs.RunOptimize()
	return &Flat{Base: o.base, Root: off, Payload: s.buf, Pointers: s.locs, records: s.records}, nil
}

type serializer struct {
	src     graph.Space
	base    uint64
	buf     []byte
	objs    map[graph.Ptr]uint64
	intern  map[string]uint64
	locs    *roaring.Bitmap
	records int
}

func (s *serializer) place(p graph.Ptr, aux uint16) (uint64, error) {
	if p.IsNil() {
		return 0, nil
	}
	if off, ok := s.objs[p]; ok {
		return off, nil
	}

	rec, err := graph.Load(s.src, p)
	if err != nil {
		return 0, err
	}

	var key string
	if s.intern != nil {
		if key, err = semanticKey(s.src, rec, 0); err != nil {
			return 0, err
		}
		if key != "" {
			if off, ok := s.intern[key]; ok {
				s.objs[p] = off
				return off, nil
			}
		}
	}

	off := uint64(len(s.buf))
	s.buf = append(s.buf, rec.Bytes()...)
	s.objs[p] = off
	if key != "" {
		s.intern[key] = off
	}
	s.records++

	l := rec.Layout()
	inner := aux
	if l.Container {
		inner = rec.Sub()
	}

	for _, f := range l.Fields {
		switch f.Kind {
		case graph.FieldScalar, graph.FieldFixedArray:
		case graph.FieldTransient:
			le.PutUint64(s.buf[off+uint64(f.Offset):], 0)
		case graph.FieldOwned:
			if err := s.pointer(rec, off, f.Offset, inner); err != nil {
				return 0, err
			}
		case graph.FieldOwnedAux:
			if graph.AuxIsPointer(aux) {
				if err := s.pointer(rec, off, f.Offset, inner); err != nil {
					return 0, err
				}
			}
		default:
			return 0, unknownField(rec.Tag(), f)
		}
	}

	if l.Tail != nil && l.Tail.Elem == graph.ElemPtr {
		for i := range rec.Count() {
			if err := s.pointer(rec, off, l.Tail.Offset+i*graph.WordSize, inner); err != nil {
				return 0, err
			}
		}
	}
	return off, nil
}

// pointer places the target of the field at fieldOff of rec and rewrites
// the copy at recOff. s.buf may have grown while placing the target.
func (s *serializer) pointer(rec graph.Record, recOff uint64, fieldOff int, aux uint16) error {
	target, err := s.place(rec.PtrAt(fieldOff), aux)
	if err != nil {
		return err
	}
	at := recOff + uint64(fieldOff) //nolint:gosec // field offsets are small
	if target == 0 {
		le.PutUint64(s.buf[at:], 0)
		return nil
	}
	le.PutUint64(s.buf[at:], s.base+target)
	idx, err := conv.Uint64ToUint32(at / graph.WordSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	s.locs.Add(idx)
	return nil
}
