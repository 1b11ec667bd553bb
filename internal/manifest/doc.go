// Package manifest describes published snapshots and commits them to a blob
// store.
//
// A publication is two writes: the immutable snapshot blob, then the
// CURRENT pointer blob holding the JSON manifest. Readers that see a
// manifest always find its blob, since the blob was written first, and a
// manifest's CRC32C lets them reject a blob that does not match.
//
//	{
//	  "version": 1,
//	  "generation": 7,
//	  "publication_id": "01890f6e-...",
//	  "blob": "snapshot-00000000000000000007.bin",
//	  "size": 4096,
//	  "compression": "zstd",
//	  "crc32c": 2840914526,
//	  ...
//	}
package manifest
