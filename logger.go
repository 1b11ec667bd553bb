package rulecache

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rulecache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithName adds the cache name to the logger.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cache", name),
	}
}

// WithGeneration adds a generation field to the logger.
func (l *Logger) WithGeneration(gen uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", gen),
	}
}

// LogCompile logs a compilation of a rule base.
func (l *Logger) LogCompile(ctx context.Context, gen uint64, units, rules int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compile failed",
			"generation", gen,
			"units", units,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "compile completed",
			"generation", gen,
			"units", units,
			"rules", rules,
		)
	}
}

// LogPublish logs a publication of a snapshot blob.
func (l *Logger) LogPublish(ctx context.Context, gen uint64, blob string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"generation", gen,
			"blob", blob,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot published",
			"generation", gen,
			"blob", blob,
			"size", size,
		)
	}
}

// LogAttach logs an attach of a published snapshot.
func (l *Logger) LogAttach(ctx context.Context, gen uint64, blob string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "attach failed",
			"generation", gen,
			"blob", blob,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "snapshot attached",
			"generation", gen,
			"blob", blob,
		)
	}
}

// LogRefresh logs a staleness check.
func (l *Logger) LogRefresh(ctx context.Context, from, to uint64, refreshed bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "refresh failed",
			"generation", from,
			"error", err,
		)
	case refreshed:
		l.InfoContext(ctx, "snapshot refreshed",
			"from", from,
			"to", to,
		)
	default:
		l.DebugContext(ctx, "snapshot current",
			"generation", from,
		)
	}
}
