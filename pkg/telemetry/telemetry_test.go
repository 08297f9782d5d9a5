package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "test.span", attribute.String("test", "value"))
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	span.End()

	assert.NoError(t, tel.Shutdown(ctx))
}

func TestRecordDurationAndBytes(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Millisecond)
	RecordDuration(ctx, rec, "test.duration", start, attribute.String(AttrOperationType, OpTypeFlush))
	RecordBytes(ctx, rec, "test.bytes", 1024)
	RecordBytes(ctx, rec, "test.bytes", 1024)

	durations := rec.Histograms("test.duration")
	require.Len(t, durations, 1)
	assert.GreaterOrEqual(t, durations[0].Value, 0.01)
	assert.Equal(t, OpTypeFlush, durations[0].Attr(AttrOperationType))

	assert.Equal(t, int64(2048), rec.CounterTotal("test.bytes"))
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	rec.RecordCounter(ctx, "c", 1)
	rec.RecordHistogram(ctx, "h", 1)
	_, span := rec.StartSpan(ctx, "s")
	span.End()

	assert.Len(t, rec.Spans("s"), 1)
	rec.Reset()
	assert.Empty(t, rec.Counters("c"))
	assert.Empty(t, rec.Histograms("h"))
	assert.Empty(t, rec.Spans("s"))
}
