package graph

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/conv"
)

var (
	// ErrUnknownTag is returned for records whose tag has no layout.
	ErrUnknownTag = errors.New("graph: unknown record tag")
	// ErrWrongTag is returned when a record is not of the expected type.
	ErrWrongTag = errors.New("graph: unexpected record tag")
	// ErrTruncated is returned when a record extends past its region.
	ErrTruncated = errors.New("graph: truncated record")
	// ErrNilPtr is returned when a required pointer is nil.
	ErrNilPtr = errors.New("graph: nil pointer")
	// ErrIndex is returned for out-of-range tail indices.
	ErrIndex = errors.New("graph: index out of range")
)

var le = binary.LittleEndian

// Record is a bounds-checked view of one record's bytes.
type Record struct {
	ptr Ptr
	b   []byte
}

// Load reads the record at p.
func Load(sp Space, p Ptr) (Record, error) {
	if p.IsNil() {
		return Record{}, ErrNilPtr
	}
	b, err := sp.Bytes(p)
	if err != nil {
		return Record{}, err
	}
	return decode(p, b)
}

// LoadAs reads the record at p and checks its tag.
func LoadAs(sp Space, p Ptr, want Tag) (Record, error) {
	r, err := Load(sp, p)
	if err != nil {
		return Record{}, err
	}
	if r.Tag() != want {
		return Record{}, fmt.Errorf("%w: want %s, got %s", ErrWrongTag, want, r.Tag())
	}
	return r, nil
}

// Decode interprets b as the record at p. b may extend past the record.
func Decode(p Ptr, b []byte) (Record, error) {
	return decode(p, b)
}

func decode(p Ptr, b []byte) (Record, error) {
	if len(b) < HeaderSize {
		return Record{}, fmt.Errorf("%w: header at %#x", ErrTruncated, uint64(p))
	}
	tag := Tag(le.Uint16(b[0:]))
	l, err := LayoutOf(tag)
	if err != nil {
		return Record{}, err
	}
	size := l.Size(int(le.Uint32(b[4:])))
	if size > len(b) {
		return Record{}, fmt.Errorf("%w: %s at %#x needs %d bytes, have %d", ErrTruncated, tag, uint64(p), size, len(b))
	}
	return Record{ptr: p, b: b[:size:size]}, nil
}

// Ptr returns the record's address.
func (r Record) Ptr() Ptr { return r.ptr }

// Bytes returns the record's bytes.
func (r Record) Bytes() []byte { return r.b }

// Tag returns the record tag.
func (r Record) Tag() Tag { return Tag(le.Uint16(r.b[0:])) }

// Sub returns the tag-specific sub field (kind, constructor or flags).
func (r Record) Sub() uint16 { return le.Uint16(r.b[2:]) }

// Count returns the tail length.
func (r Record) Count() int { return int(le.Uint32(r.b[4:])) }

// Size returns the record size in bytes.
func (r Record) Size() int { return len(r.b) }

// Layout returns the record's layout.
func (r Record) Layout() *Layout { return layouts[r.Tag()] }

// Word reads the word at byte offset off.
func (r Record) Word(off int) uint64 { return le.Uint64(r.b[off:]) }

// PtrAt reads the pointer at byte offset off.
func (r Record) PtrAt(off int) Ptr { return Ptr(le.Uint64(r.b[off:])) }

// SetWord writes the word at byte offset off.
func (r Record) SetWord(off int, v uint64) { le.PutUint64(r.b[off:], v) }

// TailPtr returns the i-th pointer of the tail.
func (r Record) TailPtr(i int) (Ptr, error) {
	if i < 0 || i >= r.Count() {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndex, i, r.Count())
	}
	return r.PtrAt(r.Layout().Fixed + i*WordSize), nil
}

// SetTailPtr writes the i-th pointer of the tail.
func (r Record) SetTailPtr(i int, p Ptr) error {
	if i < 0 || i >= r.Count() {
		return fmt.Errorf("%w: %d of %d", ErrIndex, i, r.Count())
	}
	r.SetWord(r.Layout().Fixed+i*WordSize, uint64(p))
	return nil
}

// TailBytes returns the byte tail.
func (r Record) TailBytes() []byte {
	off := r.Layout().Fixed
	return r.b[off : off+r.Count()]
}

// New allocates a record of tag t with a tail of count elements.
func New(h Heap, t Tag, sub uint16, count int) (Record, error) {
	l, err := LayoutOf(t)
	if err != nil {
		return Record{}, err
	}
	n, err := conv.IntToUint32(count)
	if err != nil || (l.Tail == nil && count != 0) {
		return Record{}, fmt.Errorf("%w: count %d for %s", ErrIndex, count, t)
	}
	p, b, err := h.Alloc(l.Size(count))
	if err != nil {
		return Record{}, err
	}
	PutHeader(b, t, sub, n)
	return Record{ptr: p, b: b[:l.Size(count)]}, nil
}

// PutHeader writes a record header into b.
func PutHeader(b []byte, t Tag, sub uint16, count uint32) {
	le.PutUint16(b[0:], uint16(t))
	le.PutUint16(b[2:], sub)
	le.PutUint32(b[4:], count)
}
