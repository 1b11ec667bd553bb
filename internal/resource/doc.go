// Package resource governs the memory and IO budgets shared by rule compilation and
// cache publication.
//
//   - Memory: arenas charge every chunk they map; a denied charge surfaces as
//     arena OutOfMemory (non-blocking, fail-fast).
//   - Units: bounds how many compilation units run at once.
//   - IO: rate-limits blob uploads and downloads so a republish does not starve
//     the readers sharing the same store.
//
// # Memory Management
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//
//	if err := rc.AcquireMemory(1 << 20); err != nil {
//	    // ErrMemoryLimitExceeded: abandon the in-progress build
//	}
//	defer rc.ReleaseMemory(1 << 20)
//
// # IO Rate Limiting
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//	r := resource.NewRateLimitedReader(ctx, body, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
