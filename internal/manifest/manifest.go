package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/rulecache/blobstore"
	"github.com/hupe1980/rulecache/internal/hash"
)

// CurrentVersion is the manifest format version.
const CurrentVersion = 1

// maxManifestSize bounds the CURRENT blob.
const maxManifestSize = 1 << 20

// Manifest describes one published snapshot.
type Manifest struct {
	Version       int       `json:"version"`
	Generation    uint64    `json:"generation"`
	PublicationID string    `json:"publication_id"`
	Blob          string    `json:"blob"`
	Size          int64     `json:"size"`
	RawSize       int64     `json:"raw_size"`
	Compression   string    `json:"compression"`
	CRC32C        uint32    `json:"crc32c"`
	RuleBase      string    `json:"rule_base,omitempty"`
	Digest        string    `json:"digest,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
}

// New returns a manifest for generation with a fresh time-ordered
// publication id.
func New(generation uint64) (*Manifest, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Version:       CurrentVersion,
		Generation:    generation,
		PublicationID: id.String(),
		Blob:          BlobName(generation),
		PublishedAt:   time.Now().UTC(),
	}, nil
}

// BlobName returns the snapshot blob name of a generation. Names sort in
// generation order.
func BlobName(generation uint64) string {
	return fmt.Sprintf("snapshot-%020d.bin", generation)
}

// Verify checks data, the stored blob, against the manifest's size and
// checksum.
func (m *Manifest) Verify(data []byte) error {
	if int64(len(data)) != m.Size {
		return fmt.Errorf("%w: %s is %d bytes, manifest says %d", ErrChecksumMismatch, m.Blob, len(data), m.Size)
	}
	if sum := hash.CRC32C(data); sum != m.CRC32C {
		return fmt.Errorf("%w: %s has crc32c %08x, manifest says %08x", ErrChecksumMismatch, m.Blob, sum, m.CRC32C)
	}
	return nil
}

// Decode parses a CURRENT blob.
func Decode(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, m.Version)
	}
	if m.Blob == "" {
		return nil, errors.New("manifest: missing blob name")
	}
	return &m, nil
}

// Store reads and commits manifests in a blob store.
type Store struct {
	store blobstore.BlobStore
}

// NewStore creates a manifest store over store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load reads the current manifest. It returns ErrNotFound if nothing has
// been published.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	b, err := blobstore.Get(ctx, s.store, blobstore.CurrentName, maxManifestSize)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Decode(b)
}

// Commit publishes m as the current manifest. The blob it names must be
// stored already.
func (s *Store) Commit(ctx context.Context, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return s.store.Put(ctx, blobstore.CurrentName, b)
}

// History returns the stored snapshot blob names, oldest first.
func (s *Store) History(ctx context.Context) ([]string, error) {
	return s.store.List(ctx, "snapshot-")
}
