// Package snapshot builds, serializes and attaches shareable caches of a
// compiled rule base.
//
// # Buffer Layout
//
// All fields are little-endian:
//
//	[format_version u32][original_base u64][root u64][payload_size u64]
//	[pointer_count u64][pointer_offsets u64 × pointer_count][payload]
//
// root and every pointer word in the payload hold original_base plus a
// payload offset. pointer_offsets are payload offsets of those words,
// strictly ascending. Payload offset 0 is a null word, so 0 stays nil.
//
// Attach relocates a buffer in place to the address it is mapped at and
// stores that address as the new original_base, so attaching the same
// buffer again is a no-op. The buffer must therefore be the caller's
// private copy (a copy-on-write mapping or a decompressed blob), and while
// a cache attached to it is live it cannot be attached at another base.
package snapshot
