package arena

import "fmt"

const (
	idBits     = 24
	chunkBits  = 12
	offsetBits = 28

	// MaxArenas is the number of arena ids a Registry can hand out.
	MaxArenas = 1<<idBits - 1
	// MaxChunks is the number of chunks a single arena can link.
	MaxChunks = 1 << chunkBits
	// MaxChunkSize is the largest chunk (and thus allocation) addressable by a Ref.
	MaxChunkSize = 1 << offsetBits
)

// Ref is a typed handle to an arena allocation. The zero Ref is nil.
type Ref uint64

func makeRef(id uint32, chunk, offset int) Ref {
	return Ref(uint64(id)<<(chunkBits+offsetBits) | uint64(chunk)<<offsetBits | uint64(offset)) //nolint:gosec // bounded by the bit widths
}

// ArenaID returns the id of the arena the handle belongs to.
func (r Ref) ArenaID() uint32 {
	return uint32(r >> (chunkBits + offsetBits)) //nolint:gosec // 24 bits
}

// Chunk returns the chunk index within the arena.
func (r Ref) Chunk() int {
	return int(r>>offsetBits) & (MaxChunks - 1)
}

// Offset returns the byte offset within the chunk.
func (r Ref) Offset() int {
	return int(r & (MaxChunkSize - 1))
}

// IsNil reports whether r is the nil handle.
func (r Ref) IsNil() bool { return r == 0 }

func (r Ref) String() string {
	if r == 0 {
		return "nil"
	}
	return fmt.Sprintf("%d:%d+%d", r.ArenaID(), r.Chunk(), r.Offset())
}
