// Package mmap provides the memory mappings behind arenas and attached caches.
//
// # Mappings
//
//   - MapAnon: read-write anonymous memory outside the Go heap. Arena chunks
//     live here; records stored in them contain no Go pointers.
//   - Open: read-only shared mapping of a published cache file.
//   - OpenPrivate: copy-on-write mapping of a published cache file. Attaching
//     relocates pointer words in place, so every attaching process gets its
//     own private pages and the shared file is never written.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) / madvise(2) via golang.org/x/sys/unix
//   - Windows: VirtualAlloc and CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Close is idempotent. Callers must ensure no goroutine touches Bytes()
// after Close returns.
package mmap
