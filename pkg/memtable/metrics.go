package memtable

import (
	"context"
	"time"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// MemTableMetrics defines the interface for MemTable telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type MemTableMetrics interface {
	telemetry.ComponentMetrics

	// RecordOperation records metrics for individual MemTable operations (insert/remove/search).
	RecordOperation(ctx context.Context, backend Backend, opType string, duration time.Duration)

	// RecordFlushTrigger records when a flush is triggered and why.
	RecordFlushTrigger(ctx context.Context, reason string, memTableSize int64)

	// RecordFlushDuration records metrics for draining the MemTable into a block.
	RecordFlushDuration(ctx context.Context, duration time.Duration, memTableSize int64, entryCount int64)

	// RecordSizeChange records changes in MemTable size for monitoring growth.
	RecordSizeChange(ctx context.Context, backend Backend, newSize int64, delta int64)
}

// memTableMetrics implements MemTableMetrics using the telemetry interface.
type memTableMetrics struct {
	tel telemetry.Telemetry
}

// NewMemTableMetrics creates a new MemTable metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMemTableMetrics(tel telemetry.Telemetry) MemTableMetrics {
	if tel == nil {
		return &noopMemTableMetrics{}
	}
	return &memTableMetrics{tel: tel}
}

// NewNoopMemTableMetrics creates a no-op MemTable metrics implementation for testing.
func NewNoopMemTableMetrics() MemTableMetrics {
	return &noopMemTableMetrics{}
}

func (m *memTableMetrics) RecordOperation(ctx context.Context, backend Backend, opType string, duration time.Duration) {
	m.tel.RecordHistogram(ctx, "lsmkv.memtable.operation.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrBackend, string(backend)),
	)

	m.tel.RecordCounter(ctx, "lsmkv.memtable.operations.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrBackend, string(backend)),
	)
}

func (m *memTableMetrics) RecordFlushTrigger(ctx context.Context, reason string, memTableSize int64) {
	m.tel.RecordCounter(ctx, "lsmkv.memtable.flush.trigger.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)

	// Record the size that triggered the flush
	m.tel.RecordHistogram(ctx, "lsmkv.memtable.flush.trigger.size", float64(memTableSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)
}

func (m *memTableMetrics) RecordFlushDuration(ctx context.Context, duration time.Duration, memTableSize int64, entryCount int64) {
	m.tel.RecordHistogram(ctx, "lsmkv.memtable.flush.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeFlush),
	)

	m.tel.RecordHistogram(ctx, "lsmkv.memtable.flush.size", float64(memTableSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)

	m.tel.RecordCounter(ctx, "lsmkv.memtable.flush.entries", entryCount,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)
}

func (m *memTableMetrics) RecordSizeChange(ctx context.Context, backend Backend, newSize int64, delta int64) {
	m.tel.RecordHistogram(ctx, "lsmkv.memtable.size.bytes", float64(newSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrBackend, string(backend)),
	)

	// Positive for growth, negative after a flush or reset
	m.tel.RecordHistogram(ctx, "lsmkv.memtable.size.delta", float64(delta),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrBackend, string(backend)),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *memTableMetrics) Close() error {
	return nil
}

// noopMemTableMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopMemTableMetrics struct{}

func (n *noopMemTableMetrics) RecordOperation(context.Context, Backend, string, time.Duration) {}

func (n *noopMemTableMetrics) RecordFlushTrigger(context.Context, string, int64) {}

func (n *noopMemTableMetrics) RecordFlushDuration(context.Context, time.Duration, int64, int64) {}

func (n *noopMemTableMetrics) RecordSizeChange(context.Context, Backend, int64, int64) {}

func (n *noopMemTableMetrics) Close() error { return nil }

// FlushReason names why a flush happened for telemetry.
func FlushReason(manual bool) string {
	if manual {
		return "manual"
	}
	return "size"
}
