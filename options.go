package rulecache

import (
	"log/slog"

	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/cache"
	"github.com/hupe1980/rulecache/internal/compress"
)

// DefaultMaxBlobSize bounds the size of a snapshot blob read by Load.
const DefaultMaxBlobSize = 1 << 32

type options struct {
	name             string
	logger           *Logger
	metricsCollector MetricsCollector
	compression      compress.Type
	memoryLimit      int64
	ioLimit          int64
	concurrency      int64
	chunkSize        int
	blobCache        cache.BlockCache
	blockSize        int64
	interning        bool
	maxBlobSize      int64
	builtins         Builtins
}

func defaultOptions() options {
	return options{
		name:             "rulecache",
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compression:      compress.None,
		concurrency:      1,
		chunkSize:        arena.DefaultChunkSize,
		maxBlobSize:      DefaultMaxBlobSize,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithName sets the cache name used in log records.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel installs a text logger to stderr at level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCompression sets the compression of published snapshot blobs.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithMemoryLimit bounds the arena memory of all compilations. Zero means
// tracking only.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles blob transfers to bytes per second. Zero means
// unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithConcurrency sets how many compilation units are checked at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = int64(n)
		}
	}
}

// WithChunkSize sets the arena chunk size.
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithBlobCache reads snapshot blobs through c in blocks of blockSize.
// blockSize defaults to blobstore.DefaultBlockSize if <= 0.
func WithBlobCache(c cache.BlockCache, blockSize int64) Option {
	return func(o *options) {
		o.blobCache = c
		o.blockSize = blockSize
	}
}

// WithInterning merges equal text and type records when publishing.
func WithInterning() Option {
	return func(o *options) {
		o.interning = true
	}
}

// WithMaxBlobSize bounds the size of snapshot blobs read by Load.
func WithMaxBlobSize(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.maxBlobSize = bytes
		}
	}
}

// WithBuiltins sets the function that fills the type environment of every
// compiled snapshot.
func WithBuiltins(b Builtins) Option {
	return func(o *options) {
		o.builtins = b
	}
}
