package rulecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/rulecache/blobstore"
	"github.com/hupe1980/rulecache/internal/compress"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/hash"
	"github.com/hupe1980/rulecache/internal/manifest"
	"github.com/hupe1980/rulecache/internal/snapshot"
)

// conditionalPutter is implemented by stores that can refuse to overwrite
// an existing blob.
type conditionalPutter interface {
	PutIfNotExists(ctx context.Context, name string, data []byte) error
}

// Publish serializes c, stores it as the blob of its generation and then
// commits a manifest naming it. Readers switch to the new generation once
// the manifest is committed. A failure before the commit leaves the
// published generation unchanged.
func (m *Manager) Publish(ctx context.Context, c *snapshot.Cache) (*manifest.Manifest, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()

	mf, err := m.publish(ctx, c)
	gen, blob, size := c.Generation(), manifest.BlobName(c.Generation()), int64(0)
	if mf != nil {
		blob, size = mf.Blob, mf.Size
	}
	m.logger.LogPublish(ctx, gen, blob, size, err)
	m.opts.metricsCollector.RecordPublish(size, time.Since(start), err)
	return mf, translateError(err)
}

func (m *Manager) publish(ctx context.Context, c *snapshot.Cache) (*manifest.Manifest, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSnapshot, err)
	}

	var sopts []snapshot.SerializeOption
	if m.opts.interning {
		sopts = append(sopts, snapshot.WithInterning())
	}
	buf, err := snapshot.Serialize(c, sopts...)
	if err != nil {
		return nil, err
	}
	data, err := compress.Compress(buf, m.opts.compression)
	if err != nil {
		return nil, err
	}

	mf, err := manifest.New(snap.Generation())
	if err != nil {
		return nil, err
	}
	mf.Size = int64(len(data))
	mf.RawSize = int64(len(buf))
	mf.Compression = m.opts.compression.String()
	mf.CRC32C = hash.CRC32C(data)
	if mf.RuleBase, err = optionalText(c.Space(), snap.RuleBase()); err != nil {
		return nil, err
	}
	if mf.Digest, err = optionalText(c.Space(), snap.Digest()); err != nil {
		return nil, err
	}

	if err := m.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	if err := m.putBlob(ctx, mf.Blob, data); err != nil {
		return nil, err
	}
	if err := m.manifests.Commit(ctx, mf); err != nil {
		return nil, err
	}
	return mf, nil
}

func (m *Manager) putBlob(ctx context.Context, name string, data []byte) error {
	store := m.store
	if cs, ok := store.(*blobstore.CachingStore); ok {
		store = cs.Inner()
	}
	cp, ok := store.(conditionalPutter)
	if !ok {
		return m.store.Put(ctx, name, data)
	}
	if err := cp.PutIfNotExists(ctx, name, data); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return fmt.Errorf("%w: %s", ErrGenerationExists, name)
		}
		return err
	}
	return nil
}

func optionalText(sp graph.Space, p graph.Ptr) (string, error) {
	if p.IsNil() {
		return "", nil
	}
	return graph.TextString(sp, p)
}

// Load attaches the published snapshot. The caller owns the returned cache
// and must Release it.
func (m *Manager) Load(ctx context.Context) (*snapshot.Cache, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()

	mf, err := m.manifests.Load(ctx)
	if err != nil {
		err = translateError(err)
		m.opts.metricsCollector.RecordAttach(0, time.Since(start), err)
		return nil, err
	}
	c, err := m.attach(ctx, mf, nil)
	m.logger.LogAttach(ctx, mf.Generation, mf.Blob, err)
	m.opts.metricsCollector.RecordAttach(mf.Size, time.Since(start), err)
	return c, translateError(err)
}

// Refresh attaches the published snapshot as Current if its generation
// differs from the attached one. It reports whether Current changed. The
// Cache returned by Current keeps its identity across refreshes.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	if m.isClosed() {
		return false, ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var from uint64
	if m.manifest != nil {
		from = m.manifest.Generation
	}
	refreshed, to, err := m.refresh(ctx)
	err = translateError(err)
	m.logger.LogRefresh(ctx, from, to, refreshed, err)
	m.opts.metricsCollector.RecordRefresh(refreshed, err)
	return refreshed, err
}

func (m *Manager) refresh(ctx context.Context) (bool, uint64, error) {
	mf, err := m.manifests.Load(ctx)
	if err != nil {
		return false, 0, err
	}
	if m.current != nil && m.manifest != nil && mf.Generation == m.manifest.Generation &&
		mf.PublicationID == m.manifest.PublicationID {
		return false, mf.Generation, nil
	}
	c, err := m.attach(ctx, mf, m.current)
	if err != nil {
		return false, 0, err
	}
	m.current = c
	m.manifest = mf
	return true, mf.Generation, nil
}

// attach fetches the blob named by mf, verifies it and attaches it. If into
// is set, the buffer replaces into's view.
func (m *Manager) attach(ctx context.Context, mf *manifest.Manifest, into *snapshot.Cache) (*snapshot.Cache, error) {
	t, err := compress.ParseType(mf.Compression)
	if err != nil {
		return nil, err
	}
	if mf.Size > m.opts.maxBlobSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", blobstore.ErrTooLarge, mf.Blob, mf.Size)
	}
	if err := m.rc.AcquireIO(ctx, int(mf.Size)); err != nil {
		return nil, err
	}

	buf, release, err := m.fetch(ctx, mf.Blob, t)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = release()
		}
	}()

	if err := mf.Verify(buf); err != nil {
		return nil, err
	}
	if t != compress.None {
		raw, err := compress.Decompress(buf, t, uint64(m.opts.maxBlobSize)) //nolint:gosec // positive
		if err != nil {
			return nil, err
		}
		if err := release(); err != nil {
			return nil, err
		}
		buf, release = raw, func() error { return nil }
	}

	gen, err := snapshot.Stamp(buf)
	if err != nil {
		return nil, err
	}
	if gen != mf.Generation {
		return nil, &GenerationMismatchError{Manifest: mf.Generation, Snapshot: gen}
	}

	var c *snapshot.Cache
	if into != nil {
		changed, err := snapshot.RefreshIfStale(buf, into, snapshot.WithRelease(release))
		if err != nil {
			return nil, err
		}
		if !changed {
			ok = true
			return into, release()
		}
		c = into
	} else {
		c, err = snapshot.Attach(buf, snapshot.WithRelease(release))
		if err != nil {
			return nil, err
		}
	}
	ok = true
	return c, nil
}

// fetch returns the stored bytes of a blob. Uncompressed blobs of stores
// that map their content are used in place; everything else is read into a
// private buffer.
func (m *Manager) fetch(ctx context.Context, name string, t compress.Type) ([]byte, func() error, error) {
	blob, err := m.store.Open(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if mp, ok := blob.(blobstore.Mappable); ok && t == compress.None {
		b, err := mp.Bytes()
		if err != nil {
			_ = blob.Close()
			return nil, nil, err
		}
		return b, blob.Close, nil
	}
	defer func() { _ = blob.Close() }()
	b, err := blobstore.ReadAll(ctx, blob, m.opts.maxBlobSize)
	if err != nil {
		return nil, nil, err
	}
	return b, func() error { return nil }, nil
}
