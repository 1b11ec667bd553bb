// Package arena provides the bump allocator every rule graph lives in.
//
// An Arena is an ordered list of off-heap chunks and a cursor into the
// current one. Memory is zeroed, 8-byte aligned, and freed only as a whole.
// Allocations are addressed by Ref handles rather than addresses:
//
//	[arena id:24][chunk:12][offset:28]
//
// Handles are plain values, so identity maps and ownership checks are
// integer comparisons. Every arena is registered with a Registry, the
// process context that resolves handles across arenas. Once an arena is
// destroyed its handles resolve to ErrStaleRef instead of freed memory.
//
// # Concurrency Model
//
// An Arena belongs to one worker and does no locking. The Registry is safe
// for concurrent use; independent workers may own independent arenas.
package arena
