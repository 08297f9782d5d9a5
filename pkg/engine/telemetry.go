package engine

import (
	"context"
	"time"

	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EngineMetrics defines the interface for engine-level telemetry
type EngineMetrics interface {
	telemetry.ComponentMetrics

	// RecordOperation records a public operation with its outcome
	RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool)

	// RecordOpen records how long opening the store took and what it found
	RecordOpen(ctx context.Context, duration time.Duration, levels, blocks int64)

	// RecordError counts failures by type and component
	RecordError(ctx context.Context, errorType, component string)
}

// engineMetrics implements EngineMetrics using the telemetry interface
type engineMetrics struct {
	tel telemetry.Telemetry
}

// NewEngineMetrics creates a new EngineMetrics instance. A nil tel yields
// the no-op implementation.
func NewEngineMetrics(tel telemetry.Telemetry) EngineMetrics {
	if tel == nil {
		return &noopEngineMetrics{}
	}
	return &engineMetrics{tel: tel}
}

// NewNoopEngineMetrics creates a no-op EngineMetrics for testing or when telemetry is disabled
func NewNoopEngineMetrics() EngineMetrics {
	return &noopEngineMetrics{}
}

func (m *engineMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.String(telemetry.AttrStatus, statusOf(success)),
	}

	m.tel.RecordHistogram(ctx, "lsmkv.engine.operation.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "lsmkv.engine.operation.count", 1, attrs...)
}

func (m *engineMetrics) RecordOpen(ctx context.Context, duration time.Duration, levels, blocks int64) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
	}

	m.tel.RecordHistogram(ctx, "lsmkv.engine.open.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "lsmkv.engine.open.levels", levels, attrs...)
	m.tel.RecordCounter(ctx, "lsmkv.engine.open.blocks", blocks, attrs...)
}

func (m *engineMetrics) RecordError(ctx context.Context, errorType, component string) {
	m.tel.RecordCounter(ctx, "lsmkv.engine.errors.count", 1,
		attribute.String(telemetry.AttrErrorType, errorType),
		attribute.String(telemetry.AttrComponent, component),
	)
}

func (m *engineMetrics) Close() error {
	return nil
}

// noopEngineMetrics provides a no-operation implementation
type noopEngineMetrics struct{}

func (n *noopEngineMetrics) RecordOperation(context.Context, string, time.Duration, bool) {}
func (n *noopEngineMetrics) RecordOpen(context.Context, time.Duration, int64, int64)      {}
func (n *noopEngineMetrics) RecordError(context.Context, string, string)                  {}
func (n *noopEngineMetrics) Close() error                                                 { return nil }

func statusOf(success bool) string {
	if success {
		return telemetry.StatusSuccess
	}
	return telemetry.StatusError
}
