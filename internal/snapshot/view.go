package snapshot

import (
	"fmt"

	"github.com/hupe1980/rulecache/internal/graph"
)

// View is the Space of an attached payload.
type View struct {
	base    uint64
	payload []byte
}

// NewView returns a view of payload whose pointers are relative to base.
func NewView(base uint64, payload []byte) View {
	return View{base: base, payload: payload}
}

// Base returns the address pointers are relative to.
func (v View) Base() uint64 { return v.base }

// Len returns the payload size.
func (v View) Len() int { return len(v.payload) }

// Bytes implements graph.Space.
func (v View) Bytes(p graph.Ptr) ([]byte, error) {
	off := uint64(p) - v.base
	if uint64(p) < v.base || off < 8 || off >= uint64(len(v.payload)) {
		return nil, fmt.Errorf("%w: pointer %#x outside payload", ErrCorruptBuffer, uint64(p))
	}
	return v.payload[off:], nil
}
