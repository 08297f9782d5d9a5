// Package engine is the key/value store: a memtable in front of the levelled
// block storage. Writes land in the memtable and are flushed into level 0
// once it outgrows its capacity; reads consult the memtable first and then
// the levels from newest to oldest.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/compaction"
	"github.com/KevoDB/lsmkv/pkg/config"
	"github.com/KevoDB/lsmkv/pkg/engine/storage"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/stats"
	"github.com/KevoDB/lsmkv/pkg/telemetry"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

// Engine is a single-directory LSM key/value store.
type Engine struct {
	cfg      *config.Config
	fs       afero.Fs
	backend  memtable.Backend
	capacity int

	mem   memtable.MemTable
	table *storage.Table

	stats      stats.Collector
	tel        telemetry.Telemetry
	metrics    EngineMetrics
	memMetrics memtable.MemTableMetrics
	logger     log.Logger

	closed atomic.Bool
	mu     sync.RWMutex
}

// LevelInfo describes the current shape of one level.
type LevelInfo struct {
	ID     int
	Policy compaction.Policy
	Limit  int
	Blocks int
	Bytes  int64
	Keys   int64
}

type options struct {
	fs     afero.Fs
	logger log.Logger
	tel    telemetry.Telemetry
	stats  stats.Collector
}

// Option configures an Engine.
type Option func(*options)

// WithFs sets the filesystem the store lives on. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLogger sets the logger. Defaults to a standard logger at the
// configured level.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTelemetry routes metrics and spans to tel.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithStats sets the statistics collector.
func WithStats(collector stats.Collector) Option {
	return func(o *options) {
		o.stats = collector
	}
}

// NewEngine opens the store described by cfg, reloading any blocks already
// present under cfg.DataDir.
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		level, _ := log.ParseLevel(cfg.LogLevel)
		o.logger = log.NewStandardLogger(log.WithLevel(level))
	}
	if o.tel == nil {
		o.tel = telemetry.NewNoop()
	}
	if o.stats == nil {
		o.stats = stats.NewAtomicCollector()
	}

	levels, err := cfg.ResolveLevels(o.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve levels: %w", err)
	}
	if cfg.LevelConfigPath == "" && !config.EqualLevels(levels, cfg.Levels) {
		o.logger.Warn("%s keeps the %d levels it was created with, ignoring the configured %d",
			cfg.DataDir, len(levels), len(cfg.Levels))
	}

	start := o.stats.StartOpen()

	if err := cfg.SaveManifest(o.fs, levels); err != nil {
		return nil, fmt.Errorf("failed to save configuration: %w", err)
	}

	backend := cfg.Backend()
	mem, err := memtable.New(backend,
		memtable.WithMaxLevel(cfg.SkipListMaxLevel),
		memtable.WithProbability(cfg.SkipListProbability),
	)
	if err != nil {
		return nil, err
	}

	logger := o.logger.WithField("component", telemetry.ComponentEngine)
	table, err := storage.Open(o.fs, cfg.DataDir, levels,
		storage.WithLogger(o.logger.WithField("component", telemetry.ComponentStorage)),
		storage.WithStats(o.stats),
		storage.WithMetrics(storage.NewStorageMetrics(o.tel)),
		storage.WithCompactionMetrics(compaction.NewCompactionMetrics(o.tel)),
		storage.WithBlockCapacity(cfg.BlockCapacity),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		fs:         o.fs,
		backend:    backend,
		capacity:   int(cfg.MemTableCapacity),
		mem:        mem,
		table:      table,
		stats:      o.stats,
		tel:        o.tel,
		metrics:    NewEngineMetrics(o.tel),
		memMetrics: memtable.NewMemTableMetrics(o.tel),
		logger:     logger,
	}

	o.stats.FinishOpen(start, uint64(len(levels)), uint64(table.BlockCount()))
	e.metrics.RecordOpen(context.Background(), time.Since(start), int64(len(levels)), int64(table.BlockCount()))
	logger.Info("opened %s with %d levels, %d blocks, %s memtable",
		cfg.DataDir, len(levels), table.BlockCount(), backend)

	return e, nil
}

// Put inserts or replaces the value stored for key. The memtable is flushed
// into level 0 when it outgrows its capacity.
func (e *Engine) Put(key uint64, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if memtable.IsTombstoneValue(value) {
		return ErrReservedValue
	}

	start := time.Now()
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.mem.Size()
	e.mem.Insert(key, value)
	e.memMetrics.RecordOperation(ctx, e.backend, telemetry.OpTypePut, time.Since(start))
	e.memMetrics.RecordSizeChange(ctx, e.backend, int64(e.mem.Size()), int64(e.mem.Size()-before))

	err := e.maybeFlushLocked(ctx)

	e.stats.TrackOperationWithLatency(stats.OpPut, uint64(time.Since(start).Nanoseconds()))
	e.stats.TrackBytes(true, uint64(8+len(value)))
	e.stats.TrackMemTableSize(uint64(e.mem.Size()))
	e.metrics.RecordOperation(ctx, telemetry.OpTypePut, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("put_flush_error")
	}
	return err
}

// Get returns the value stored for key, or ErrKeyNotFound when the key was
// never written or its newest version is a deletion.
func (e *Engine) Get(key uint64) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	start := time.Now()
	ctx := context.Background()

	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, found, err := e.lookup(ctx, key)
	e.stats.TrackOperationWithLatency(stats.OpGet, uint64(time.Since(start).Nanoseconds()))
	e.metrics.RecordOperation(ctx, telemetry.OpTypeGet, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("get_error")
		return nil, err
	}
	if !found || entry.Tombstone {
		return nil, ErrKeyNotFound
	}

	e.stats.TrackBytes(false, uint64(len(entry.Value)))
	return entry.Value, nil
}

// Delete removes key and reports whether it held a live value beforehand.
// Deleting an absent key changes nothing.
func (e *Engine) Delete(key uint64) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	start := time.Now()
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, found, err := e.lookup(ctx, key)
	if err != nil {
		e.stats.TrackError("delete_error")
		e.metrics.RecordOperation(ctx, telemetry.OpTypeDelete, time.Since(start), false)
		return false, err
	}
	if !found || entry.Tombstone {
		e.stats.TrackOperationWithLatency(stats.OpDelete, uint64(time.Since(start).Nanoseconds()))
		e.metrics.RecordOperation(ctx, telemetry.OpTypeDelete, time.Since(start), true)
		return false, nil
	}

	before := e.mem.Size()
	e.mem.Remove(key)
	e.memMetrics.RecordOperation(ctx, e.backend, telemetry.OpTypeDelete, time.Since(start))
	e.memMetrics.RecordSizeChange(ctx, e.backend, int64(e.mem.Size()), int64(e.mem.Size()-before))

	err = e.maybeFlushLocked(ctx)

	e.stats.TrackOperationWithLatency(stats.OpDelete, uint64(time.Since(start).Nanoseconds()))
	e.stats.TrackMemTableSize(uint64(e.mem.Size()))
	e.metrics.RecordOperation(ctx, telemetry.OpTypeDelete, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("delete_flush_error")
	}
	return true, err
}

// Flush writes the memtable into a new level-0 block. Flushing an empty
// memtable does nothing.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.flushLocked(context.Background(), true)
}

// Compact runs the compaction cascade from level 0 and returns the number
// of merges it performed.
func (e *Engine) Compact() (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	start := time.Now()
	ctx, span := e.tel.StartSpan(context.Background(), "lsmkv.engine.compact")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	merges, err := e.table.Compact(ctx)
	span.SetAttributes(attribute.Int("merges", merges))

	e.stats.TrackOperationWithLatency(stats.OpCompact, uint64(time.Since(start).Nanoseconds()))
	e.metrics.RecordOperation(ctx, telemetry.OpTypeCompact, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("compaction_error")
		e.metrics.RecordError(ctx, "compaction", telemetry.ComponentCompaction)
		span.RecordError(err)
		return merges, err
	}
	return merges, nil
}

// Reset discards every key, in memory and on disk.
func (e *Engine) Reset() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	start := time.Now()
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.mem.Size()
	e.mem.Reset()
	e.memMetrics.RecordSizeChange(ctx, e.backend, 0, int64(-before))

	err := e.table.Reset(ctx)
	e.stats.TrackOperationWithLatency(stats.OpReset, uint64(time.Since(start).Nanoseconds()))
	e.stats.TrackMemTableSize(0)
	e.metrics.RecordOperation(ctx, "reset", time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("reset_error")
		return fmt.Errorf("failed to reset storage: %w", err)
	}

	e.logger.Info("reset store")
	return nil
}

// Levels returns the current shape of every level, level 0 first.
func (e *Engine) Levels() []LevelInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	levels := e.table.Levels()
	infos := make([]LevelInfo, 0, len(levels))
	for _, l := range levels {
		infos = append(infos, LevelInfo{
			ID:     l.ID(),
			Policy: l.Policy(),
			Limit:  l.Limit(),
			Blocks: l.Size(),
			Bytes:  l.Bytes(),
			Keys:   l.Keys(),
		})
	}
	return infos
}

// GetStats returns the collected operation statistics together with the
// memtable and level shape.
func (e *Engine) GetStats() map[string]interface{} {
	result := e.stats.GetStats()
	for k, v := range e.shapeStats() {
		result[k] = v
	}
	return result
}

// GetStatsFiltered returns the GetStats entries whose name starts with prefix.
func (e *Engine) GetStatsFiltered(prefix string) map[string]interface{} {
	result := e.stats.GetStatsFiltered(prefix)
	for k, v := range e.shapeStats() {
		if strings.HasPrefix(k, prefix) {
			result[k] = v
		}
	}
	return result
}

func (e *Engine) shapeStats() map[string]interface{} {
	result := make(map[string]interface{})

	e.mu.RLock()
	result["memtable_backend"] = string(e.backend)
	result["memtable_keys"] = e.mem.Len()
	result["memtable_size"] = e.mem.Size()
	result["blocks"] = e.table.BlockCount()
	e.mu.RUnlock()

	levels := make([]map[string]interface{}, 0)
	for _, l := range e.Levels() {
		levels = append(levels, map[string]interface{}{
			"id":     l.ID,
			"policy": l.Policy.String(),
			"limit":  l.Limit,
			"blocks": l.Blocks,
			"bytes":  l.Bytes,
			"keys":   l.Keys,
		})
	}
	result["levels"] = levels

	return result
}

// Close flushes the memtable when configured to and releases the blocks.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.cfg.FlushOnClose {
		if err := e.flushLocked(context.Background(), true); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush on close: %w", err))
		}
	}
	errs = append(errs, e.table.Close(), e.metrics.Close(), e.memMetrics.Close())

	e.logger.Info("closed %s", e.cfg.DataDir)
	return errors.Join(errs...)
}

// lookup consults the memtable and then the levels. The returned entry may
// be a tombstone.
func (e *Engine) lookup(ctx context.Context, key uint64) (memtable.Entry, bool, error) {
	start := time.Now()
	entry, found := e.mem.Search(key)
	e.memMetrics.RecordOperation(ctx, e.backend, telemetry.OpTypeGet, time.Since(start))
	if found {
		return entry, true, nil
	}
	return e.table.Search(ctx, key)
}

func (e *Engine) maybeFlushLocked(ctx context.Context) error {
	if e.mem.Size() <= e.capacity {
		return nil
	}
	return e.flushLocked(ctx, false)
}

// flushLocked moves the memtable into level 0. The memtable is only cleared
// once its entries are safely on disk.
func (e *Engine) flushLocked(ctx context.Context, manual bool) error {
	if e.mem.Len() == 0 {
		return nil
	}

	start := time.Now()
	ctx, span := e.tel.StartSpan(ctx, "lsmkv.engine.flush",
		attribute.String(telemetry.AttrReason, memtable.FlushReason(manual)))
	defer span.End()

	size := e.mem.Size()
	e.memMetrics.RecordFlushTrigger(ctx, memtable.FlushReason(manual), int64(size))

	// Range and Reset rather than Dump: a failed write must leave the memtable intact
	entries := e.mem.Range(0, ^uint64(0))
	block, err := e.table.Flush(ctx, entries)
	if block != nil {
		e.mem.Reset()
		e.memMetrics.RecordFlushDuration(ctx, time.Since(start), int64(size), int64(len(entries)))
		e.memMetrics.RecordSizeChange(ctx, e.backend, 0, int64(-size))
	}

	e.stats.TrackOperationWithLatency(stats.OpFlush, uint64(time.Since(start).Nanoseconds()))
	e.metrics.RecordOperation(ctx, telemetry.OpTypeFlush, time.Since(start), err == nil)
	if err != nil {
		e.stats.TrackError("flush_error")
		e.metrics.RecordError(ctx, "flush", telemetry.ComponentStorage)
		span.RecordError(err)
		return err
	}
	return nil
}
