// Package blobstore is the transport for published rule caches.
//
// A BlobStore holds immutable snapshot blobs ("snapshot-<generation>.bin")
// and one mutable pointer blob, "CURRENT", holding the manifest of the
// published snapshot. Put must be atomic: readers see either the old or the
// new content of a blob, never a mix.
//
// # Built-in Implementations
//
//   - LocalStore: local directory; temp file plus rename for atomic Put,
//     private copy-on-write mappings for Open
//   - MemoryStore: in-process, for tests
//   - CachingStore: block cache in front of a remote store
//   - minio.Store: MinIO and S3-compatible servers
//   - s3.Store and s3.DDBCommitStore: Amazon S3, optionally with a
//     DynamoDB conditional write guarding CURRENT
//
// A Blob that also implements Mappable exposes its bytes without copying.
// The slice returned by a LocalStore blob is a private mapping: writes to
// it, such as in-place relocation, never reach the file.
package blobstore
