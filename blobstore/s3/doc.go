// Package s3 stores published rule caches in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("rules/"), s3.WithRegion("eu-central-1"))
//
// S3 PUTs are atomic per object, which covers the immutable snapshot blobs.
// Concurrent publishers additionally need compare-and-swap on CURRENT; wrap
// the store in a DDBCommitStore for that.
package s3
