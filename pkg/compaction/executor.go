package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/emirpasic/gods/trees/binaryheap"
)

// cursor is a source block's position in the merge queue.
type cursor struct {
	block  *sstable.Block
	key    uint64
	ts     uint64
	source int
}

// cursorComparator orders cursors by key, then newest block first, then
// source order. Victims precede next-level blocks in the source order, so a
// tie on both key and timestamp still resolves to the upper level.
func cursorComparator(a, b interface{}) int {
	x, y := a.(*cursor), b.(*cursor)
	switch {
	case x.key < y.key:
		return -1
	case x.key > y.key:
		return 1
	case x.ts > y.ts:
		return -1
	case x.ts < y.ts:
		return 1
	case x.source < y.source:
		return -1
	case x.source > y.source:
		return 1
	}
	return 0
}

// MergeExecutor performs the k-way streaming merge of a compaction task.
type MergeExecutor struct {
	capacity int
	tracker  FileTracker
	metrics  CompactionMetrics
	logger   log.Logger
}

// ExecutorOption configures a MergeExecutor.
type ExecutorOption func(*MergeExecutor)

// WithCapacity sets the charged size at which an output block is cut.
func WithCapacity(capacity int) ExecutorOption {
	return func(e *MergeExecutor) {
		if capacity > 0 {
			e.capacity = capacity
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger log.Logger) ExecutorOption {
	return func(e *MergeExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the executor's metrics sink.
func WithMetrics(metrics CompactionMetrics) ExecutorOption {
	return func(e *MergeExecutor) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// NewMergeExecutor creates an executor that retires input files through
// tracker.
func NewMergeExecutor(tracker FileTracker, opts ...ExecutorOption) *MergeExecutor {
	e := &MergeExecutor{
		capacity: sstable.DefaultCapacity,
		tracker:  tracker,
		metrics:  NewNoopCompactionMetrics(),
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute merges the task's inputs into sink. For every key only the newest
// entry is considered; a live value is written, a tombstone is written only
// when the task's filter keeps it. Outputs are cut whenever the charged size
// reaches the capacity and carry the newest input timestamp.
//
// The input files are deleted after the last output is written. A failure
// before that point leaves them on disk and any outputs already written in
// sink.
func (e *MergeExecutor) Execute(ctx context.Context, task *Task, sink BlockSink) (*Result, error) {
	start := time.Now()
	inputs := task.Inputs()
	result := &Result{InputBlocks: len(inputs), InputBytes: task.InputBytes()}

	e.metrics.RecordCompactionStart(ctx, task.TargetLevel, len(inputs), result.InputBytes)

	err := e.merge(ctx, task, inputs, sink, result)
	for _, b := range inputs {
		b.Close()
	}
	if err == nil {
		err = e.retire(inputs)
	} else {
		for _, b := range inputs {
			e.tracker.UnmarkFilePending(b.Path())
		}
	}

	result.Duration = time.Since(start)
	e.metrics.RecordCompactionComplete(ctx, task.TargetLevel, result, err == nil)
	if err != nil {
		return result, err
	}

	e.logger.Debug("compacted %s: %s", task, result)
	return result, nil
}

func (e *MergeExecutor) merge(ctx context.Context, task *Task, inputs []*sstable.Block, sink BlockSink, result *Result) error {
	queue := binaryheap.NewWith(cursorComparator)
	var timestamp uint64
	for i, b := range inputs {
		e.tracker.MarkFilePending(b.Path())
		result.InputEntries += b.Len()
		if b.Timestamp() > timestamp {
			timestamp = b.Timestamp()
		}

		b.Rewind()
		if key, ok := b.TopKey(); ok {
			queue.Push(&cursor{block: b, key: key, ts: b.Timestamp(), source: i})
		}
	}

	filter := task.Filter
	if filter == nil {
		filter = DropTombstones{}
	}

	var (
		pending []memtable.Entry
		charged int
		last    uint64
		started bool
	)
	emit := func() error {
		if len(pending) == 0 {
			return nil
		}
		out, err := sink.InsertBlock(pending, timestamp)
		if err != nil {
			return fmt.Errorf("failed to write merged block: %w", err)
		}
		result.Outputs = append(result.Outputs, out)
		result.OutputEntries += len(pending)
		result.OutputBytes += out.FileSize()
		pending, charged = nil, 0
		return nil
	}

	for !queue.Empty() {
		if err := ctx.Err(); err != nil {
			return err
		}

		v, _ := queue.Pop()
		c := v.(*cursor)

		if started && c.key == last {
			result.Duplicates++
		} else {
			started, last = true, c.key

			entry, err := c.block.Top()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", c.block.Filename(), err)
			}
			switch {
			case !entry.Tombstone:
				pending = append(pending, entry)
				charged += sstable.EntrySize(entry)
			case filter.ShouldKeep(entry.Key):
				result.KeptTombstones++
				pending = append(pending, entry)
				charged += sstable.EntrySize(entry)
			default:
				result.DroppedTombstones++
			}

			if charged >= e.capacity {
				if err := emit(); err != nil {
					return err
				}
			}
		}

		if err := c.block.Pop(); err != nil {
			return fmt.Errorf("failed to advance %s: %w", c.block.Filename(), err)
		}
		if key, ok := c.block.TopKey(); ok {
			c.key = key
			queue.Push(c)
		}
	}

	return emit()
}

// retire marks the inputs obsolete and deletes them.
func (e *MergeExecutor) retire(inputs []*sstable.Block) error {
	for _, b := range inputs {
		e.tracker.MarkFileObsolete(b.Path())
		e.tracker.UnmarkFilePending(b.Path())
	}
	if err := e.tracker.CleanupObsoleteFiles(); err != nil {
		return fmt.Errorf("%w: %w", ErrInputsRemain, err)
	}
	return nil
}
