// Package compress wraps published snapshot buffers in an optional LZ4 or
// ZSTD envelope.
//
// Envelope format: [uncompressed_size u64][compressed_size u64][data...].
// A compressed size of zero means data is stored as is.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type is a compression algorithm.
type Type uint8

const (
	// None stores buffers without an envelope.
	None Type = 0
	// LZ4 uses LZ4 block compression.
	LZ4 Type = 1
	// ZSTD uses ZSTD at the default level.
	ZSTD Type = 2
)

// HeaderSize is the size of the envelope header.
const HeaderSize = 16

// ErrCorrupt is returned for envelopes that do not decode.
var ErrCorrupt = errors.New("compress: corrupt envelope")

// ErrUnknownType is returned for unknown algorithm names or values.
var ErrUnknownType = errors.New("compress: unknown compression type")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd". The empty string is None.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Compress returns data in an envelope for t. None returns data unchanged.
// When compression saves less than a tenth, data is stored uncompressed
// inside the envelope.
func Compress(data []byte, t Type) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)
	switch t {
	case None:
		return data, nil
	case LZ4:
		compressed, err = compressLZ4(data)
	case ZSTD:
		compressed, err = compressZSTD(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint64(out[0:], uint64(len(data)))
		copy(out[HeaderSize:], data)
		return out, nil
	}
	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint64(out[0:], uint64(len(data)))
	binary.LittleEndian.PutUint64(out[8:], uint64(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func compressZSTD(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

// Decompress unwraps an envelope produced by Compress with the same t.
// limit bounds the decompressed size; zero means no limit. The result never
// aliases data unless t is None.
func Decompress(data []byte, t Type, limit uint64) ([]byte, error) {
	if t == None {
		return data, nil
	}
	if t != LZ4 && t != ZSTD {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	size := binary.LittleEndian.Uint64(data[0:])
	csize := binary.LittleEndian.Uint64(data[8:])
	body := data[HeaderSize:]
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: decompressed size %d exceeds limit %d", ErrCorrupt, size, limit)
	}

	if csize == 0 {
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: stored size %d, have %d", ErrCorrupt, size, len(body))
		}
		out := make([]byte, size)
		copy(out, body)
		return out, nil
	}
	if uint64(len(body)) != csize {
		return nil, fmt.Errorf("%w: compressed size %d, have %d", ErrCorrupt, csize, len(body))
	}

	out := make([]byte, size)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, n, size)
		}
		return out, nil
	default:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint64(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, len(decoded), size)
		}
		return decoded, nil
	}
}
