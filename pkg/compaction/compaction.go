// Package compaction holds the on-disk side of the store below the memtable:
// levels of sorted blocks, the policies that pick blocks to push down, and the
// k-way merge that rewrites them into the next level.
package compaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevoDB/lsmkv/pkg/sstable"
)

// ErrInputsRemain is returned when a merge wrote all its outputs but could
// not delete every input file. The data is intact, but the leftover inputs
// reappear alongside the outputs when the level is reopened.
var ErrInputsRemain = errors.New("merged blocks written but inputs remain")

// Task is one merge from a level into the level below it. Victims come from
// the source level and are newer than every Overlapping block taken from the
// target level.
type Task struct {
	SourceLevel int
	TargetLevel int

	Victims     []*sstable.Block
	Overlapping []*sstable.Block

	// Min and Max bound the victims' keys
	Min uint64
	Max uint64

	// Filter decides which tombstones survive the merge. Nil drops them all.
	Filter TombstoneFilter
}

// NewTask selects the victims of src and the blocks of dst they must be
// merged with. Both levels give up the selected blocks. A task with no
// victims is returned as nil.
func NewTask(src, dst *Level) *Task {
	victims := src.Select(Prev, 0, 0)
	if len(victims) == 0 {
		return nil
	}

	lo, hi := KeyRange(victims)
	return &Task{
		SourceLevel: src.ID(),
		TargetLevel: dst.ID(),
		Victims:     victims,
		Overlapping: dst.Select(Next, lo, hi),
		Min:         lo,
		Max:         hi,
	}
}

// Inputs returns every block taking part, newest first.
func (t *Task) Inputs() []*sstable.Block {
	inputs := make([]*sstable.Block, 0, len(t.Victims)+len(t.Overlapping))
	inputs = append(inputs, t.Victims...)
	return append(inputs, t.Overlapping...)
}

// InputBytes returns the combined file size of the inputs.
func (t *Task) InputBytes() int64 {
	var n int64
	for _, b := range t.Inputs() {
		n += b.FileSize()
	}
	return n
}

func (t *Task) String() string {
	return fmt.Sprintf("L%d->L%d victims=%d overlapping=%d range=[%d, %d]",
		t.SourceLevel, t.TargetLevel, len(t.Victims), len(t.Overlapping), t.Min, t.Max)
}

// KeyRange returns the smallest min and largest max over blocks.
func KeyRange(blocks []*sstable.Block) (uint64, uint64) {
	if len(blocks) == 0 {
		return 0, 0
	}
	lo, hi := blocks[0].Min(), blocks[0].Max()
	for _, b := range blocks[1:] {
		if b.Min() < lo {
			lo = b.Min()
		}
		if b.Max() > hi {
			hi = b.Max()
		}
	}
	return lo, hi
}

// Result describes a finished merge.
type Result struct {
	Outputs []*sstable.Block

	InputBlocks   int
	InputEntries  int
	OutputEntries int
	InputBytes    int64
	OutputBytes   int64

	// Duplicates counts entries shadowed by a newer version of the same key
	Duplicates int
	// DroppedTombstones counts deletions made permanent by omission
	DroppedTombstones int
	// KeptTombstones counts deletions carried into the output
	KeptTombstones int

	Duration time.Duration
}

func (r *Result) String() string {
	return fmt.Sprintf("inputs=%d outputs=%d entries=%d->%d duplicates=%d tombstones dropped=%d kept=%d",
		r.InputBlocks, len(r.Outputs), r.InputEntries, r.OutputEntries,
		r.Duplicates, r.DroppedTombstones, r.KeptTombstones)
}
