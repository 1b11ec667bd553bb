package rulecache

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/rulecache/blobstore"
	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/manifest"
	"github.com/hupe1980/rulecache/internal/resource"
	"github.com/hupe1980/rulecache/internal/snapshot"
)

// Heap is an arena-backed allocation target for graph records.
type Heap = graph.Heap

// Ptr addresses a graph record.
type Ptr = graph.Ptr

// Cache is a live or attached snapshot.
type Cache = snapshot.Cache

// Manager compiles rule bases into snapshots, publishes them to a blob
// store and attaches published snapshots.
//
// Compile and Publish may be called concurrently. Refresh swaps the
// attached view in place, so readers of Current must not run concurrently
// with Refresh.
type Manager struct {
	opts      options
	store     blobstore.BlobStore
	manifests *manifest.Store
	reg       *arena.Registry
	rc        *resource.Controller
	logger    *Logger

	mu       sync.Mutex
	current  *snapshot.Cache
	manifest *manifest.Manifest
	closed   bool
}

// New creates a Manager over store.
func New(store blobstore.BlobStore, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.blobCache != nil {
		store = blobstore.NewCachingStore(store, o.blobCache, o.blockSize)
	}
	return &Manager{
		opts:      o,
		store:     store,
		manifests: manifest.NewStore(store),
		reg:       arena.NewRegistry(),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			MaxConcurrentUnits: o.concurrency,
			IOLimitBytesPerSec: o.ioLimit,
		}),
		logger: o.logger.WithName(o.name),
	}
}

// Store returns the blob store the manager publishes to.
func (m *Manager) Store() blobstore.BlobStore { return m.store }

// MemoryUsage returns the arena bytes currently reserved.
func (m *Manager) MemoryUsage() int64 { return m.rc.MemoryUsage() }

// Manifest returns the current published manifest.
func (m *Manager) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	mf, err := m.manifests.Load(ctx)
	return mf, translateError(err)
}

// Current returns the snapshot attached by Refresh, or nil.
func (m *Manager) Current() *snapshot.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close releases the attached snapshot and destroys every arena the
// manager created, including those of compiled snapshots not yet closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.current != nil {
		errs = append(errs, m.current.Release())
		m.current = nil
	}
	errs = append(errs, m.reg.Close())
	if m.opts.blobCache != nil {
		errs = append(errs, m.opts.blobCache.Close())
	}
	return errors.Join(errs...)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// History returns the names of stored snapshot blobs, oldest first.
func (m *Manager) History(ctx context.Context) ([]string, error) {
	return m.manifests.History(ctx)
}
