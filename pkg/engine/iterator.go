package engine

import (
	"context"
	"time"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
	"github.com/KevoDB/lsmkv/pkg/common/iterator/bounded"
	"github.com/KevoDB/lsmkv/pkg/common/iterator/composite"
	"github.com/KevoDB/lsmkv/pkg/common/iterator/filtered"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/stats"
	"github.com/KevoDB/lsmkv/pkg/telemetry"
)

// NewIterator returns an iterator over the live keys in [lo, hi], ascending.
// It merges a copy of the memtable range with cursors over every
// overlapping block, newest source first, so each key yields its most
// recent version and deleted keys are skipped. Call SeekToFirst before use.
//
// The iterator reads blocks lazily. A later flush, compaction or reset may
// remove blocks it is reading; the failure then shows up through Err.
func (e *Engine) NewIterator(lo, hi uint64) (iterator.Iterator, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if lo > hi {
		return nil, ErrInvalidRange
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sources := []iterator.Iterator{memtable.NewRangeIterator(e.mem, lo, hi)}
	sources = append(sources, e.table.Iterators(lo, hi)...)

	var merged composite.CompositeIterator = composite.NewHierarchicalIterator(sources)
	e.stats.TrackOperation(stats.OpIterate)
	e.logger.Debug("iterating [%d, %d] over %d sources", lo, hi, merged.NumSources())

	return filtered.NewLiveIterator(bounded.NewBoundedIterator(merged, lo, hi)), nil
}

// Scan returns the live entries with lo <= key <= hi in ascending key order.
func (e *Engine) Scan(lo, hi uint64) ([]memtable.Entry, error) {
	start := time.Now()

	it, err := e.NewIterator(lo, hi)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var entries []memtable.Entry
	var read uint64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		value := append([]byte(nil), it.Value()...)
		entries = append(entries, memtable.Entry{Key: it.Key(), Value: value})
		read += uint64(len(value))
	}

	err = it.Err()
	e.stats.TrackOperationWithLatency(stats.OpScan, uint64(time.Since(start).Nanoseconds()))
	e.stats.TrackBytes(false, read)
	e.metrics.RecordOperation(context.Background(), telemetry.OpTypeScan, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("scan_error")
		return nil, err
	}
	return entries, nil
}
