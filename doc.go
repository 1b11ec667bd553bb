// Package rulecache compiles rule bases into position-independent
// snapshots and shares them between processes.
//
// A Manager compiles rule units, each parsed and type-checked in its own
// arena, into one snapshot arena. Publish serializes the snapshot into a
// flat buffer and stores it in a blob store. Other processes Load or
// Refresh the published snapshot: the buffer is relocated to the address
// it is mapped at and read in place.
//
// # Quick Start
//
//	store, _ := blobstore.NewLocalStore("./cache")
//	m := rulecache.New(store,
//	    rulecache.WithBuiltins(builtins),
//	    rulecache.WithCompression(compress.ZSTD),
//	)
//	defer m.Close()
//
//	compiled, err := m.Compile(ctx, "core", units)
//	if err != nil {
//	    return err // joined *UnitError values for type errors
//	}
//	defer compiled.Close()
//	if _, err := m.Publish(ctx, compiled.Cache()); err != nil {
//	    return err
//	}
//
// In a reader process:
//
//	if _, err := m.Refresh(ctx); err != nil {
//	    return err
//	}
//	rules, _ := m.Current().RuleSet()
//
// # Stores
//
// Any blobstore.BlobStore works as transport: blobstore.LocalStore for a
// shared file system, blobstore/minio and blobstore/s3 for object storage,
// and s3.DDBCommitStore when CURRENT must be committed atomically with
// DynamoDB. Snapshot blobs are write-once where the store supports
// conditional writes.
//
// # Errors
//
// Errors of the internal packages are re-exported, so errors.Is works
// against the variables of this package:
//
//	if errors.Is(err, rulecache.ErrIncompatibleFormat) {
//	    // recompile and publish
//	}
package rulecache
