package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/conv"
	"github.com/hupe1980/rulecache/internal/traverse"
)

// FormatVersion is the buffer format this build reads and writes.
const FormatVersion uint32 = 1

// HeaderSize is the size of the fixed header fields.
const HeaderSize = 4 + 8 + 8 + 8 + 8

const (
	offVersion  = 0
	offBase     = 4
	offRoot     = 12
	offPayload  = 20
	offPointers = 28
)

var (
	// ErrIncompatibleFormat is returned when a buffer's version differs from
	// FormatVersion. The cache must be rebuilt, not attached.
	ErrIncompatibleFormat = errors.New("snapshot: incompatible cache format")
	// ErrCorruptBuffer is returned for buffers whose header, pointer table or
	// pointers do not fit the buffer.
	ErrCorruptBuffer = traverse.ErrCorruptBuffer
	// ErrReadOnly is returned when mutating an attached cache.
	ErrReadOnly = errors.New("snapshot: attached cache is read-only")
	// ErrBufferInUse is returned when attaching a buffer at a base other
	// than the one a live cache relocated it to.
	ErrBufferInUse = errors.New("snapshot: buffer backs a live cache at another base")
	// ErrReleased is returned when using a released cache.
	ErrReleased = errors.New("snapshot: cache released")
)

var le = binary.LittleEndian

// Header is the decoded fixed header of a buffer.
type Header struct {
	Version      uint32
	OriginalBase uint64
	Root         uint64
	PayloadSize  uint64
	PointerCount uint64
}

// RootOffset returns the payload offset of the root record.
func (h Header) RootOffset() uint64 { return h.Root - h.OriginalBase }

// PayloadStart returns the buffer offset of the payload.
func (h Header) PayloadStart() uint64 { return HeaderSize + h.PointerCount*8 }

// Size returns the total buffer size the header describes.
func (h Header) Size() uint64 { return h.PayloadStart() + h.PayloadSize }

// ParseHeader decodes and validates the header of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptBuffer, len(buf))
	}
	h := Header{
		Version:      le.Uint32(buf[offVersion:]),
		OriginalBase: le.Uint64(buf[offBase:]),
		Root:         le.Uint64(buf[offRoot:]),
		PayloadSize:  le.Uint64(buf[offPayload:]),
		PointerCount: le.Uint64(buf[offPointers:]),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: version %d, want %d", ErrIncompatibleFormat, h.Version, FormatVersion)
	}
	size := uint64(len(buf))
	table, err := conv.CheckedMul(h.PointerCount, 8)
	if err != nil || table > size-HeaderSize {
		return Header{}, fmt.Errorf("%w: %d pointer offsets exceed buffer of %d bytes", ErrCorruptBuffer, h.PointerCount, size)
	}
	total, err := conv.CheckedAdd(HeaderSize+table, h.PayloadSize)
	if err != nil || total != size {
		return Header{}, fmt.Errorf("%w: payload of %d bytes does not fit buffer of %d bytes", ErrCorruptBuffer, h.PayloadSize, size)
	}
	if h.PayloadSize < 8 {
		return Header{}, fmt.Errorf("%w: empty payload", ErrCorruptBuffer)
	}
	return h, nil
}

func putHeader(buf []byte, h Header) {
	le.PutUint32(buf[offVersion:], h.Version)
	le.PutUint64(buf[offBase:], h.OriginalBase)
	le.PutUint64(buf[offRoot:], h.Root)
	le.PutUint64(buf[offPayload:], h.PayloadSize)
	le.PutUint64(buf[offPointers:], h.PointerCount)
}

// split returns the pointer offsets and the payload of a parsed buffer.
func split(buf []byte, h Header) ([]uint64, []byte) {
	locs := make([]uint64, h.PointerCount)
	for i := range locs {
		locs[i] = le.Uint64(buf[HeaderSize+i*8:])
	}
	return locs, buf[h.PayloadStart():h.Size()]
}
