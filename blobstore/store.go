package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
// It is os.ErrNotExist, so both errors.Is checks succeed.
var ErrNotFound = os.ErrNotExist

// ErrTooLarge is returned by ReadAll for blobs above the caller's limit.
var ErrTooLarge = errors.New("blobstore: blob too large")

// ErrExists is returned by conditional writes when the blob already exists.
var ErrExists = errors.New("blobstore: blob already exists")

// CurrentName is the name of the pointer blob holding the published manifest.
const CurrentName = "CURRENT"

// BlobStore stores immutable named blobs.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible
	// when the returned writer is closed.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer
	io.Closer
	Sync() error
}

// Mappable is implemented by blobs whose content is addressable memory.
type Mappable interface {
	// Bytes returns the blob content. The slice is valid until the blob is
	// closed.
	Bytes() ([]byte, error)
}

// ReadAll reads the whole blob into a new private buffer. limit bounds the
// size; zero means no limit.
func ReadAll(ctx context.Context, b Blob, limit int64) ([]byte, error) {
	size := b.Size()
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, limit)
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, err
	}
	if int64(n) != size {
		return nil, fmt.Errorf("blobstore: short read: %d of %d bytes", n, size)
	}
	return buf, nil
}

// Get opens name and reads it whole.
func Get(ctx context.Context, s BlobStore, name string, limit int64) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return ReadAll(ctx, b, limit)
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

// NopReadCloser returns r with a no-op Close.
func NopReadCloser(r io.Reader) io.ReadCloser { return nopReadCloser{r} }

// bytesRange returns the sub-slice [off, off+length) clipped to data.
func bytesRange(data []byte, off, length int64) []byte {
	if off < 0 || off >= int64(len(data)) || length <= 0 {
		return nil
	}
	return data[off:min(off+length, int64(len(data)))]
}

// readAtBytes implements Blob.ReadAt over an in-memory slice.
func readAtBytes(data, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
