package memtable

import (
	"context"
	"testing"
	"time"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemTableMetrics(t *testing.T) {
	ctx := context.Background()
	rec := telemetry.NewRecorder()
	metrics := NewMemTableMetrics(rec)

	t.Run("RecordOperation", func(t *testing.T) {
		rec.Reset()
		metrics.RecordOperation(ctx, BackendAVL, telemetry.OpTypePut, 50*time.Millisecond)

		durations := rec.Histograms("lsmkv.memtable.operation.duration")
		require.Len(t, durations, 1)
		assert.InDelta(t, 0.05, durations[0].Value, 1e-9)
		assert.Equal(t, "avl", durations[0].Attr(telemetry.AttrBackend))
		assert.Equal(t, telemetry.OpTypePut, durations[0].Attr(telemetry.AttrOperationType))

		assert.Equal(t, int64(1), rec.CounterTotal("lsmkv.memtable.operations.total"))
	})

	t.Run("RecordFlushTrigger", func(t *testing.T) {
		rec.Reset()
		metrics.RecordFlushTrigger(ctx, FlushReason(false), 2048)

		triggers := rec.Counters("lsmkv.memtable.flush.trigger.total")
		require.Len(t, triggers, 1)
		assert.Equal(t, "size", triggers[0].Attr(telemetry.AttrReason))

		sizes := rec.Histograms("lsmkv.memtable.flush.trigger.size")
		require.Len(t, sizes, 1)
		assert.Equal(t, 2048.0, sizes[0].Value)
	})

	t.Run("RecordFlushDuration", func(t *testing.T) {
		rec.Reset()
		metrics.RecordFlushDuration(ctx, time.Second, 4096, 12)

		assert.Len(t, rec.Histograms("lsmkv.memtable.flush.duration"), 1)
		assert.Equal(t, int64(12), rec.CounterTotal("lsmkv.memtable.flush.entries"))
	})

	t.Run("RecordSizeChange", func(t *testing.T) {
		rec.Reset()
		metrics.RecordSizeChange(ctx, BackendSkipList, 100, -20)

		deltas := rec.Histograms("lsmkv.memtable.size.delta")
		require.Len(t, deltas, 1)
		assert.Equal(t, -20.0, deltas[0].Value)
		assert.Equal(t, "skiplist", deltas[0].Attr(telemetry.AttrBackend))
	})

	assert.NoError(t, metrics.Close())
}

func TestNoopMemTableMetrics(t *testing.T) {
	ctx := context.Background()
	for _, m := range []MemTableMetrics{NewNoopMemTableMetrics(), NewMemTableMetrics(nil)} {
		m.RecordOperation(ctx, BackendRBTree, telemetry.OpTypeGet, time.Millisecond)
		m.RecordFlushTrigger(ctx, FlushReason(true), 1)
		m.RecordFlushDuration(ctx, time.Millisecond, 1, 1)
		m.RecordSizeChange(ctx, BackendRBTree, 1, 1)
		assert.NoError(t, m.Close())
	}
	assert.Equal(t, "manual", FlushReason(true))
}
