package traverse

import (
	"fmt"

	"github.com/hupe1980/rulecache/internal/graph"
)

// Relocate rebases a payload serialized against oldBase to newBase and
// returns the relocated root. locs are the byte offsets of pointer words,
// strictly ascending. Every location, pointer value and the root are
// validated before the first word is written; on error payload is unchanged.
func Relocate(payload []byte, locs []uint64, root, oldBase, newBase uint64) (uint64, error) {
	if err := checkTarget(root, oldBase, len(payload)); err != nil {
		return 0, fmt.Errorf("root: %w", err)
	}

	size := uint64(len(payload))
	var prev uint64
	for i, loc := range locs {
		switch {
		case loc%graph.WordSize != 0:
			return 0, fmt.Errorf("%w: pointer location %d at %#x is unaligned", ErrCorruptBuffer, i, loc)
		case loc < graph.WordSize || loc > size-graph.WordSize:
			return 0, fmt.Errorf("%w: pointer location %d at %#x outside payload of %d bytes", ErrCorruptBuffer, i, loc, size)
		case i > 0 && loc <= prev:
			return 0, fmt.Errorf("%w: pointer locations not ascending at %d", ErrCorruptBuffer, i)
		}
		if err := checkTarget(le.Uint64(payload[loc:]), oldBase, len(payload)); err != nil {
			return 0, fmt.Errorf("pointer at %#x: %w", loc, err)
		}
		prev = loc
	}

	if oldBase == newBase {
		return root, nil
	}
	diff := newBase - oldBase
	for _, loc := range locs {
		le.PutUint64(payload[loc:], le.Uint64(payload[loc:])+diff)
	}
	return root + diff, nil
}

func checkTarget(v, base uint64, size int) error {
	off := v - base
	if v < base || off < graph.WordSize || off >= uint64(size) || off%graph.WordSize != 0 { //nolint:gosec // size >= 0
		return fmt.Errorf("%w: target %#x outside payload [%#x, %#x)", ErrCorruptBuffer, v, base, base+uint64(size)) //nolint:gosec // size >= 0
	}
	return nil
}
