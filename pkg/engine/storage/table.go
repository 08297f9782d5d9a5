// Package storage manages the levels of block files below the memtable:
// flushing memtables into level 0, point lookups across levels, and the
// compaction cascade that pushes data down.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/compaction"
	"github.com/KevoDB/lsmkv/pkg/config"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/KevoDB/lsmkv/pkg/stats"
	"github.com/spf13/afero"
)

// MemTableLayer names the memtable in lookup telemetry.
const MemTableLayer = "memtable"

// LevelDir is the directory name of level i.
func LevelDir(i int) string {
	return fmt.Sprintf("level-%d", i)
}

// Table owns the levels of the store, level 0 being the newest.
type Table struct {
	fs       afero.Fs
	dir      string
	specs    []config.LevelSpec
	capacity int

	levels   []*compaction.Level
	executor *compaction.MergeExecutor
	clock    *Clock

	stats             stats.Collector
	logger            log.Logger
	metrics           StorageMetrics
	compactionMetrics compaction.CompactionMetrics
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the table's logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStats sets the collector that counts flushes and merges.
func WithStats(collector stats.Collector) Option {
	return func(t *Table) {
		if collector != nil {
			t.stats = collector
		}
	}
}

// WithMetrics sets the storage metrics sink.
func WithMetrics(m StorageMetrics) Option {
	return func(t *Table) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithCompactionMetrics sets the compaction metrics sink.
func WithCompactionMetrics(m compaction.CompactionMetrics) Option {
	return func(t *Table) {
		if m != nil {
			t.compactionMetrics = m
		}
	}
}

// WithBlockCapacity sets the charged size at which compaction cuts output
// blocks.
func WithBlockCapacity(capacity int) Option {
	return func(t *Table) {
		if capacity > 0 {
			t.capacity = capacity
		}
	}
}

// Open opens or creates one level per spec under dir.
func Open(fs afero.Fs, dir string, specs []config.LevelSpec, opts ...Option) (*Table, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no levels configured", config.ErrInvalidConfig)
	}

	t := &Table{
		fs:                fs,
		dir:               dir,
		specs:             append([]config.LevelSpec(nil), specs...),
		capacity:          sstable.DefaultCapacity,
		stats:             stats.NewAtomicCollector(),
		logger:            log.GetDefaultLogger(),
		metrics:           NewNoopStorageMetrics(),
		compactionMetrics: compaction.NewNoopCompactionMetrics(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.executor = compaction.NewMergeExecutor(
		compaction.NewFileTracker(fs),
		compaction.WithCapacity(t.capacity),
		compaction.WithLogger(t.logger),
		compaction.WithMetrics(t.compactionMetrics),
	)

	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) open() error {
	levels := make([]*compaction.Level, 0, len(t.specs))
	clock := NewClock(0)
	for i, spec := range t.specs {
		l, err := compaction.OpenLevel(t.fs, filepath.Join(t.dir, LevelDir(i)), i, spec.Policy, spec.Limit, t.logger)
		if err != nil {
			t.closeLevels(levels)
			return fmt.Errorf("failed to open %s: %w", LevelDir(i), err)
		}
		// new blocks must sort after everything already on disk
		for _, b := range l.Blocks() {
			clock.Advance(b.Timestamp())
		}
		levels = append(levels, l)
		t.logger.Debug("opened %s", l)
	}

	t.levels = levels
	t.clock = clock
	return nil
}

// Flush writes entries, sorted by key, as a new level-0 block and runs the
// compaction cascade when level 0 reached its limit.
func (t *Table) Flush(ctx context.Context, entries []memtable.Entry) (*sstable.Block, error) {
	start := time.Now()

	b, err := t.levels[0].InsertBlock(entries, t.clock.Next())
	if err != nil {
		return nil, fmt.Errorf("failed to flush memtable: %w", err)
	}
	t.stats.TrackFlush()
	t.metrics.RecordFlush(ctx, time.Since(start), int64(len(entries)), b.FileSize())
	t.logger.Info("flushed %d entries to %s", len(entries), b.Filename())

	if t.levels[0].NeedsCompaction() {
		if _, err := t.Compact(ctx); err != nil {
			return b, err
		}
	}
	return b, nil
}

// Search checks the levels in order and returns the first entry found for
// key. The entry may be a tombstone.
func (t *Table) Search(ctx context.Context, key uint64) (memtable.Entry, bool, error) {
	start := time.Now()
	for _, l := range t.levels {
		e, ok, err := l.Search(key)
		if err != nil {
			return memtable.Entry{}, false, err
		}
		if ok {
			t.metrics.RecordSearch(ctx, time.Since(start), LevelDir(l.ID()), true)
			return e, true, nil
		}
	}
	t.metrics.RecordSearch(ctx, time.Since(start), "none", false)
	return memtable.Entry{}, false, nil
}

// Compact cascades from level 0 downwards while the current level holds at
// least its limit of blocks, merging its victims into the next level. The
// last level is never compacted. It returns the number of merges run.
func (t *Table) Compact(ctx context.Context) (int, error) {
	merges, dropped := 0, 0
	defer func() {
		if merges > 0 {
			t.stats.TrackCompaction(merges, dropped)
		}
		t.compactionMetrics.RecordCascade(ctx, merges)
		for _, l := range t.levels {
			t.compactionMetrics.RecordLevelStats(ctx, l.ID(), l.Policy(), int64(l.Size()), l.Bytes(), l.Keys())
		}
	}()

	for i := 0; i < len(t.levels)-1 && t.levels[i].NeedsCompaction(); i++ {
		src, dst := t.levels[i], t.levels[i+1]

		task := compaction.NewTask(src, dst)
		if task == nil {
			// a Leveling level exactly at its limit has no excess to push
			continue
		}
		// dst has already given up the blocks taking part; what it keeps is
		// older than every victim and can still hold a deleted key
		task.Filter = compaction.NewShadowFilter(t.levels[i+1:])

		result, err := t.executor.Execute(ctx, task, dst)
		if err != nil {
			if !errors.Is(err, compaction.ErrInputsRemain) {
				src.AddBlocks(task.Victims...)
				dst.AddBlocks(task.Overlapping...)
			}
			return merges, fmt.Errorf("compaction %s failed: %w", task, err)
		}
		merges++
		dropped += result.DroppedTombstones

		t.logger.Info("compacted L%d into L%d: %d victims, %d overlapping, %d outputs, %d tombstones dropped",
			task.SourceLevel, task.TargetLevel, len(task.Victims), len(task.Overlapping),
			len(result.Outputs), result.DroppedTombstones)
	}

	return merges, nil
}

// Reset deletes every level directory and reopens the configured levels
// empty.
func (t *Table) Reset(ctx context.Context) error {
	blocks := int64(t.BlockCount())
	t.closeLevels(t.levels)

	for i := range t.specs {
		if err := t.fs.RemoveAll(filepath.Join(t.dir, LevelDir(i))); err != nil {
			return fmt.Errorf("failed to remove %s: %w", LevelDir(i), err)
		}
	}
	if err := t.open(); err != nil {
		return err
	}

	t.metrics.RecordReset(ctx, blocks)
	t.logger.Info("reset storage, discarded %d blocks", blocks)
	return nil
}

// Iterators returns read-only cursors over every block whose key range
// intersects [lo, hi], newest first: level 0 before level 1, and within a
// level the newest block first.
func (t *Table) Iterators(lo, hi uint64) []iterator.Iterator {
	var iters []iterator.Iterator
	for _, l := range t.levels {
		blocks := l.Blocks()
		for i := len(blocks) - 1; i >= 0; i-- {
			if blocks[i].Overlaps(lo, hi) {
				iters = append(iters, blocks[i].NewIterator())
			}
		}
	}
	return iters
}

// BlockCount returns the number of blocks across all levels.
func (t *Table) BlockCount() int {
	n := 0
	for _, l := range t.levels {
		n += l.Size()
	}
	return n
}

// Levels returns the levels, newest first. The slice must not be modified.
func (t *Table) Levels() []*compaction.Level {
	return t.levels
}

// Specs returns the level configuration the table was opened with.
func (t *Table) Specs() []config.LevelSpec {
	return append([]config.LevelSpec(nil), t.specs...)
}

// Dir returns the root directory of the levels.
func (t *Table) Dir() string {
	return t.dir
}

// Close releases the file handles held by the blocks.
func (t *Table) Close() error {
	t.closeLevels(t.levels)
	return t.metrics.Close()
}

func (t *Table) closeLevels(levels []*compaction.Level) {
	for _, l := range levels {
		for _, b := range l.Blocks() {
			b.Close()
		}
	}
}
