package storage

import (
	"context"
	"time"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// StorageMetrics defines the interface for storage layer telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type StorageMetrics interface {
	telemetry.ComponentMetrics

	// RecordSearch records a point lookup across the levels and the layer that answered it.
	RecordSearch(ctx context.Context, duration time.Duration, layer string, found bool)

	// RecordFlush records metrics for writing a memtable into level 0.
	RecordFlush(ctx context.Context, duration time.Duration, entries int64, blockSize int64)

	// RecordReset records a wipe of the on-disk state.
	RecordReset(ctx context.Context, blocks int64)
}

// storageMetrics implements StorageMetrics using the telemetry interface.
type storageMetrics struct {
	tel telemetry.Telemetry
}

// NewStorageMetrics creates a new storage metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewStorageMetrics(tel telemetry.Telemetry) StorageMetrics {
	if tel == nil {
		return &noopStorageMetrics{}
	}
	return &storageMetrics{tel: tel}
}

// NewNoopStorageMetrics creates a no-op storage metrics implementation for testing.
func NewNoopStorageMetrics() StorageMetrics {
	return &noopStorageMetrics{}
}

// RecordSearch records lookup metrics with layer tracking.
func (m *storageMetrics) RecordSearch(ctx context.Context, duration time.Duration, layer string, found bool) {
	m.tel.RecordHistogram(ctx, "lsmkv.storage.search.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeGet),
		attribute.String(telemetry.AttrLayer, layer),
		attribute.Bool("found", found),
	)

	m.tel.RecordCounter(ctx, "lsmkv.storage.layer.accesses", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
		attribute.String(telemetry.AttrLayer, layer),
		attribute.String(telemetry.AttrStatus, getStatusFromFound(found)),
	)
}

// RecordFlush records flush metrics.
func (m *storageMetrics) RecordFlush(ctx context.Context, duration time.Duration, entries int64, blockSize int64) {
	m.tel.RecordHistogram(ctx, "lsmkv.storage.flush.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeFlush),
	)

	m.tel.RecordHistogram(ctx, "lsmkv.storage.flush.entries", float64(entries),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
	)

	m.tel.RecordHistogram(ctx, "lsmkv.storage.flush.block_size", float64(blockSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
	)

	m.tel.RecordCounter(ctx, "lsmkv.storage.flush.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
		attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess),
	)
}

// RecordReset records how many blocks a reset discarded.
func (m *storageMetrics) RecordReset(ctx context.Context, blocks int64) {
	m.tel.RecordCounter(ctx, "lsmkv.storage.reset.blocks", blocks,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStorage),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *storageMetrics) Close() error {
	return nil
}

// noopStorageMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopStorageMetrics struct{}

func (n *noopStorageMetrics) RecordSearch(ctx context.Context, duration time.Duration, layer string, found bool) {
}

func (n *noopStorageMetrics) RecordFlush(ctx context.Context, duration time.Duration, entries int64, blockSize int64) {
}

func (n *noopStorageMetrics) RecordReset(ctx context.Context, blocks int64) {}

func (n *noopStorageMetrics) Close() error {
	return nil
}

// getStatusFromFound converts found boolean to status string.
func getStatusFromFound(found bool) string {
	if found {
		return telemetry.StatusSuccess
	}
	return "not_found"
}
