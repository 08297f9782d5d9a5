package compaction

import (
	"context"

	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
)

// CompactionExecutor merges the inputs of a task into new blocks
type CompactionExecutor interface {
	// Execute merges the task's inputs into sink and deletes the inputs
	// once every output is written
	Execute(ctx context.Context, task *Task, sink BlockSink) (*Result, error)
}

// BlockSink receives the blocks produced by a merge. *Level implements it.
type BlockSink interface {
	InsertBlock(entries []memtable.Entry, timestamp uint64) (*sstable.Block, error)
}

// FileTracker defines the interface for tracking file states during compaction
type FileTracker interface {
	// MarkFileObsolete marks a file as obsolete (can be deleted)
	MarkFileObsolete(path string)

	// MarkFilePending marks a file as being used in a compaction
	MarkFilePending(path string)

	// UnmarkFilePending removes the pending mark from a file
	UnmarkFilePending(path string)

	// IsFileObsolete checks if a file is marked as obsolete
	IsFileObsolete(path string) bool

	// IsFilePending checks if a file is marked as pending compaction
	IsFilePending(path string) bool

	// CleanupObsoleteFiles removes files that are no longer needed
	CleanupObsoleteFiles() error
}

// TombstoneFilter decides whether a deletion marker must survive a merge
type TombstoneFilter interface {
	ShouldKeep(key uint64) bool
}
