package rulecache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/compress"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/manifest"
	"github.com/hupe1980/rulecache/internal/snapshot"
	"github.com/hupe1980/rulecache/internal/types"
)

var (
	// ErrOutOfMemory is returned when an arena allocation fails. The
	// in-progress compilation is abandoned.
	ErrOutOfMemory = arena.ErrOutOfMemory
	// ErrStaleRef is returned when a handle outlives its arena.
	ErrStaleRef = arena.ErrStaleRef
	// ErrUnknownTag is returned for records without a layout.
	ErrUnknownTag = graph.ErrUnknownTag
	// ErrIncompatibleFormat is returned when a published buffer has another
	// format version. The snapshot has to be recompiled.
	ErrIncompatibleFormat = snapshot.ErrIncompatibleFormat
	// ErrCorruptBuffer is returned for buffers that fail validation.
	ErrCorruptBuffer = snapshot.ErrCorruptBuffer
	// ErrReadOnly is returned when mutating an attached cache.
	ErrReadOnly = snapshot.ErrReadOnly
	// ErrInfiniteType is matched by every InfiniteTypeError.
	ErrInfiniteType = types.ErrInfiniteType
	// ErrTypeMismatch is matched by every TypeMismatchError.
	ErrTypeMismatch = types.ErrTypeMismatch

	// ErrNotPublished is returned by Load when the store holds no snapshot.
	ErrNotPublished = errors.New("rulecache: nothing published")
	// ErrChecksumMismatch is returned when a stored blob does not match its
	// manifest.
	ErrChecksumMismatch = manifest.ErrChecksumMismatch
	// ErrGenerationExists is returned by Publish when the generation's blob
	// is already stored.
	ErrGenerationExists = errors.New("rulecache: generation already published")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rulecache: manager closed")
	// ErrNotSnapshot is returned when publishing a cache without a Snapshot root.
	ErrNotSnapshot = errors.New("rulecache: cache root is not a snapshot")
)

// InfiniteTypeError reports a variable that would occur in its own binding.
type InfiniteTypeError = types.InfiniteTypeError

// TypeMismatchError reports two types that do not unify.
type TypeMismatchError = types.TypeMismatchError

// UnitError reports the failure of one compilation unit.
//
// The original underlying error can be accessed via errors.Unwrap.
type UnitError struct {
	Unit  string
	cause error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %q: %v", e.Unit, e.cause)
}

func (e *UnitError) Unwrap() error { return e.cause }

// GenerationMismatchError reports a blob whose snapshot generation differs
// from the manifest that named it.
type GenerationMismatchError struct {
	Manifest uint64
	Snapshot uint64
}

func (e *GenerationMismatchError) Error() string {
	return fmt.Sprintf("generation mismatch: manifest %d, snapshot %d", e.Manifest, e.Snapshot)
}

func (e *GenerationMismatchError) Unwrap() error { return ErrCorruptBuffer }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, manifest.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotPublished, err)
	}
	if errors.Is(err, compress.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptBuffer, err)
	}
	if errors.Is(err, manifest.ErrIncompatibleVersion) {
		return fmt.Errorf("%w: %w", ErrIncompatibleFormat, err)
	}

	return err
}
