// Package hash provides the deterministic hash functions shared by every
// process that reads a published rule cache.
//
// Bucket placement in serialized maps must be identical in the authoring and
// the attaching process, so String uses FNV-1a rather than a seeded hash.
// CRC32C is used for buffer integrity and for relocation-invariant
// fingerprints.
package hash
