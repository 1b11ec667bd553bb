package rulecache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordCompile is called after each compilation.
	// rules is the number of rules in the resulting snapshot.
	RecordCompile(rules int, duration time.Duration, err error)

	// RecordPublish is called after each publication.
	// bytes is the stored blob size.
	RecordPublish(bytes int64, duration time.Duration, err error)

	// RecordAttach is called after each load of a published snapshot.
	RecordAttach(bytes int64, duration time.Duration, err error)

	// RecordRefresh is called after each staleness check.
	RecordRefresh(refreshed bool, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCompile(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordPublish(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordAttach(int64, time.Duration, error)  {}
func (NoopMetricsCollector) RecordRefresh(bool, error)                 {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	CompileCount      atomic.Int64
	CompileErrors     atomic.Int64
	CompileRules      atomic.Int64
	CompileTotalNanos atomic.Int64
	PublishCount      atomic.Int64
	PublishErrors     atomic.Int64
	PublishBytes      atomic.Int64
	AttachCount       atomic.Int64
	AttachErrors      atomic.Int64
	AttachBytes       atomic.Int64
	AttachTotalNanos  atomic.Int64
	RefreshCount      atomic.Int64
	RefreshReloads    atomic.Int64
	RefreshErrors     atomic.Int64
}

// RecordCompile implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompile(rules int, duration time.Duration, err error) {
	b.CompileCount.Add(1)
	b.CompileTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CompileErrors.Add(1)
		return
	}
	b.CompileRules.Add(int64(rules))
}

// RecordPublish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPublish(bytes int64, _ time.Duration, err error) {
	b.PublishCount.Add(1)
	if err != nil {
		b.PublishErrors.Add(1)
		return
	}
	b.PublishBytes.Add(bytes)
}

// RecordAttach implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAttach(bytes int64, duration time.Duration, err error) {
	b.AttachCount.Add(1)
	b.AttachTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AttachErrors.Add(1)
		return
	}
	b.AttachBytes.Add(bytes)
}

// RecordRefresh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefresh(refreshed bool, err error) {
	b.RefreshCount.Add(1)
	switch {
	case err != nil:
		b.RefreshErrors.Add(1)
	case refreshed:
		b.RefreshReloads.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CompileCount:    b.CompileCount.Load(),
		CompileErrors:   b.CompileErrors.Load(),
		CompileRules:    b.CompileRules.Load(),
		CompileAvgNanos: avg(b.CompileTotalNanos.Load(), b.CompileCount.Load()),
		PublishCount:    b.PublishCount.Load(),
		PublishErrors:   b.PublishErrors.Load(),
		PublishBytes:    b.PublishBytes.Load(),
		AttachCount:     b.AttachCount.Load(),
		AttachErrors:    b.AttachErrors.Load(),
		AttachBytes:     b.AttachBytes.Load(),
		AttachAvgNanos:  avg(b.AttachTotalNanos.Load(), b.AttachCount.Load()),
		RefreshCount:    b.RefreshCount.Load(),
		RefreshReloads:  b.RefreshReloads.Load(),
		RefreshErrors:   b.RefreshErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CompileCount    int64
	CompileErrors   int64
	CompileRules    int64
	CompileAvgNanos int64
	PublishCount    int64
	PublishErrors   int64
	PublishBytes    int64
	AttachCount     int64
	AttachErrors    int64
	AttachBytes     int64
	AttachAvgNanos  int64
	RefreshCount    int64
	RefreshReloads  int64
	RefreshErrors   int64
}
