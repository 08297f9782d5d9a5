package compaction

import (
	"context"
	"testing"
	"time"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactionMetrics(t *testing.T) {
	ctx := context.Background()
	rec := telemetry.NewRecorder()
	m := NewCompactionMetrics(rec)

	m.RecordCompactionComplete(ctx, 2, &Result{
		InputBytes:        1000,
		OutputBytes:       400,
		DroppedTombstones: 3,
		Duration:          time.Millisecond,
	}, true)
	m.RecordCascade(ctx, 2)
	m.RecordLevelStats(ctx, 2, Leveling, 3, 4096, 12)

	assert.Equal(t, int64(600), rec.CounterTotal("lsmkv.compaction.space.reclaimed.bytes"))
	assert.Equal(t, int64(3), rec.CounterTotal("lsmkv.compaction.tombstones.removed"))

	cascade := rec.Histograms("lsmkv.compaction.cascade.merges")
	require.Len(t, cascade, 1)
	assert.Equal(t, float64(2), cascade[0].Value)

	blocks := rec.Histograms("lsmkv.compaction.level.block_count")
	require.Len(t, blocks, 1)
	assert.Equal(t, float64(3), blocks[0].Value)
	assert.Equal(t, "Leveling", blocks[0].Attr(telemetry.AttrPolicy))

	rec.Reset()
	m.RecordCompactionComplete(ctx, 1, &Result{InputBytes: 10, OutputBytes: 5}, false)
	assert.Empty(t, rec.Counters("lsmkv.compaction.space.reclaimed.bytes"), "failed merges reclaim nothing")
	assert.Equal(t, telemetry.StatusError, rec.Histograms("lsmkv.compaction.execution.duration")[0].Attr(telemetry.AttrStatus))

	require.NoError(t, m.Close())
}

func TestNoopCompactionMetrics(t *testing.T) {
	for _, m := range []CompactionMetrics{NewNoopCompactionMetrics(), NewCompactionMetrics(nil)} {
		m.RecordCompactionStart(context.Background(), 0, 1, 1)
		m.RecordCompactionComplete(context.Background(), 0, &Result{}, true)
		m.RecordCascade(context.Background(), 0)
		m.RecordLevelStats(context.Background(), 0, Tiering, 0, 0, 0)
		assert.NoError(t, m.Close())
	}
}
