// Package conv provides checked integer conversions.
//
// Buffers handed to Attach come from other processes and must be treated as
// untrusted: every count, size and offset read from a header goes through
// one of these helpers before it is used to index a slice.
package conv
