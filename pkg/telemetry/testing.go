package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// Recording is a single histogram or counter observation captured by a Recorder.
type Recording struct {
	Name  string
	Value float64
	Attrs []attribute.KeyValue
}

// Attr returns the string value of the attribute key, or "".
func (r Recording) Attr(key string) string {
	for _, kv := range r.Attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

// Recorder is a Telemetry destination that keeps everything in memory so
// tests can assert on what real components emitted.
type Recorder struct {
	mu         sync.Mutex
	histograms []Recording
	counters   []Recording
	spans      []Recording
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, Recording{Name: name, Value: value, Attrs: attrs})
}

func (r *Recorder) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, Recording{Name: name, Value: float64(value), Attrs: attrs})
}

func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, Recording{Name: name, Attrs: attrs})
	return ctx, trace.SpanFromContext(ctx)
}

func (r *Recorder) Shutdown(ctx context.Context) error {
	return nil
}

// Histograms returns every histogram observation named name.
func (r *Recorder) Histograms(name string) []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filter(r.histograms, name)
}

// Counters returns every counter observation named name.
func (r *Recorder) Counters(name string) []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filter(r.counters, name)
}

// Spans returns every span started with name.
func (r *Recorder) Spans(name string) []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filter(r.spans, name)
}

// CounterTotal sums the counter observations named name.
func (r *Recorder) CounterTotal(name string) int64 {
	var total int64
	for _, c := range r.Counters(name) {
		total += int64(c.Value)
	}
	return total
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = nil
	r.counters = nil
	r.spans = nil
}

func filter(src []Recording, name string) []Recording {
	var out []Recording
	for _, rec := range src {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	return out
}
