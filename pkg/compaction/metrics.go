package compaction

import (
	"context"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CompactionMetrics interface defines telemetry methods for compaction operations
type CompactionMetrics interface {
	telemetry.ComponentMetrics

	// RecordCompactionStart records the start of a merge into level
	RecordCompactionStart(ctx context.Context, level int, inputFileCount int, inputSize int64)

	// RecordCompactionComplete records the outcome of a merge into level
	RecordCompactionComplete(ctx context.Context, level int, result *Result, success bool)

	// RecordCascade records one pass of the level cascade and how many merges it ran
	RecordCascade(ctx context.Context, merges int)

	// RecordLevelStats records current level statistics
	RecordLevelStats(ctx context.Context, level int, policy Policy, blockCount int64, totalSize int64, keyCount int64)
}

// compactionMetrics implements CompactionMetrics using the telemetry package
type compactionMetrics struct {
	tel telemetry.Telemetry
}

// NewCompactionMetrics creates a new CompactionMetrics implementation.
// If tel is nil, returns a no-op implementation.
func NewCompactionMetrics(tel telemetry.Telemetry) CompactionMetrics {
	if tel == nil {
		return &noopCompactionMetrics{}
	}
	return &compactionMetrics{tel: tel}
}

// NewNoopCompactionMetrics creates a no-op CompactionMetrics for testing/disabled scenarios
func NewNoopCompactionMetrics() CompactionMetrics {
	return &noopCompactionMetrics{}
}

func (m *compactionMetrics) RecordCompactionStart(ctx context.Context, level int, inputFileCount int, inputSize int64) {
	m.tel.RecordCounter(ctx, "lsmkv.compaction.start.count", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
	)

	m.tel.RecordCounter(ctx, "lsmkv.compaction.input.files", int64(inputFileCount),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
	)

	m.tel.RecordCounter(ctx, "lsmkv.compaction.input.bytes", inputSize,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
	)
}

func (m *compactionMetrics) RecordCompactionComplete(ctx context.Context, level int, result *Result, success bool) {
	m.tel.RecordHistogram(ctx, "lsmkv.compaction.execution.duration", result.Duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
		attribute.String(telemetry.AttrStatus, statusToString(success)),
	)

	m.tel.RecordCounter(ctx, "lsmkv.compaction.output.bytes", result.OutputBytes,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
		attribute.String(telemetry.AttrStatus, statusToString(success)),
	)

	m.tel.RecordCounter(ctx, "lsmkv.compaction.tombstones.removed", int64(result.DroppedTombstones),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
	)

	m.tel.RecordCounter(ctx, "lsmkv.compaction.duplicates.removed", int64(result.Duplicates),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
	)

	// Space reclaimed only counts when the merge shrank the data
	if reclaimed := result.InputBytes - result.OutputBytes; success && reclaimed > 0 {
		m.tel.RecordCounter(ctx, "lsmkv.compaction.space.reclaimed.bytes", reclaimed,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
			attribute.Int(telemetry.AttrLevel, level),
		)
	}
}

func (m *compactionMetrics) RecordCascade(ctx context.Context, merges int) {
	m.tel.RecordHistogram(ctx, "lsmkv.compaction.cascade.merges", float64(merges),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
	)
}

func (m *compactionMetrics) RecordLevelStats(ctx context.Context, level int, policy Policy, blockCount int64, totalSize int64, keyCount int64) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompaction),
		attribute.Int(telemetry.AttrLevel, level),
		attribute.String(telemetry.AttrPolicy, policy.String()),
	}
	m.tel.RecordHistogram(ctx, "lsmkv.compaction.level.block_count", float64(blockCount), attrs...)
	m.tel.RecordHistogram(ctx, "lsmkv.compaction.level.total_size", float64(totalSize), attrs...)
	m.tel.RecordHistogram(ctx, "lsmkv.compaction.level.key_count", float64(keyCount), attrs...)
}

// Close cleans up any resources used by the metrics
func (m *compactionMetrics) Close() error {
	return nil
}

// noopCompactionMetrics provides a no-op implementation for testing/disabled scenarios
type noopCompactionMetrics struct{}

func (n *noopCompactionMetrics) RecordCompactionStart(ctx context.Context, level int, inputFileCount int, inputSize int64) {
}
func (n *noopCompactionMetrics) RecordCompactionComplete(ctx context.Context, level int, result *Result, success bool) {
}
func (n *noopCompactionMetrics) RecordCascade(ctx context.Context, merges int) {}
func (n *noopCompactionMetrics) RecordLevelStats(ctx context.Context, level int, policy Policy, blockCount int64, totalSize int64, keyCount int64) {
}
func (n *noopCompactionMetrics) Close() error { return nil }

// statusToString converts success/failure to string representation
func statusToString(success bool) string {
	if success {
		return telemetry.StatusSuccess
	}
	return telemetry.StatusError
}
