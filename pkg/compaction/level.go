package compaction

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// BlockPrefix starts the name of every block file. Other files in a level
// directory are ignored.
const BlockPrefix = "block"

// Level is one tier of the store: the block files of a directory ordered
// from oldest to newest, plus the policy and block limit that govern how the
// level is compacted.
type Level struct {
	fs     afero.Fs
	dir    string
	id     int
	policy Policy
	limit  int
	blocks []*sstable.Block
	logger log.Logger
}

// OpenLevel loads every block file in dir, creating dir if needed. Leftover
// temporary files from interrupted writes are removed.
func OpenLevel(fs afero.Fs, dir string, id int, policy Policy, limit int, logger log.Logger) (*Level, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	l := &Level{
		fs:     fs,
		dir:    dir,
		id:     id,
		policy: policy,
		limit:  limit,
		logger: logger.WithFields(map[string]interface{}{"level": id}),
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create level directory: %w", err)
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list level directory: %w", err)
	}

	for _, info := range infos {
		name := info.Name()
		path := filepath.Join(dir, name)
		switch {
		case info.IsDir():
			continue
		case strings.HasSuffix(name, sstable.TempSuffix):
			l.logger.Warn("removing incomplete block file %s", name)
			if err := fs.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove temporary file %s: %w", name, err)
			}
		case strings.HasPrefix(name, BlockPrefix):
			b, err := sstable.Open(fs, path)
			if err != nil {
				return nil, err
			}
			l.blocks = append(l.blocks, b)
		}
	}
	l.sort()

	return l, nil
}

// sort orders blocks by (timestamp, min), oldest first.
func (l *Level) sort() {
	sort.SliceStable(l.blocks, func(i, j int) bool {
		a, b := l.blocks[i], l.blocks[j]
		if a.Timestamp() == b.Timestamp() {
			return a.Min() < b.Min()
		}
		return a.Timestamp() < b.Timestamp()
	})
}

// nextFile returns a fresh block path. The microsecond stamp keeps names
// roughly chronological; the random suffix keeps them unique when several
// blocks share a stamp.
func (l *Level) nextFile(timestamp uint64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(l.dir, fmt.Sprintf("%s-%d-%s.sst", BlockPrefix, timestamp, suffix))
}

// InsertBlock writes entries, sorted by key, as a new block stamped with
// timestamp and adds it to the level.
func (l *Level) InsertBlock(entries []memtable.Entry, timestamp uint64) (*sstable.Block, error) {
	b, err := sstable.Create(l.fs, l.nextFile(timestamp), entries, timestamp)
	if err != nil {
		return nil, err
	}
	l.blocks = append(l.blocks, b)
	l.sort()
	l.logger.Debug("wrote %s with %d entries", b.Filename(), b.Len())
	return b, nil
}

// AddBlocks returns previously selected blocks to the level, which happens
// when a merge that took them fails.
func (l *Level) AddBlocks(blocks ...*sstable.Block) {
	l.blocks = append(l.blocks, blocks...)
	l.sort()
}

// Select detaches and returns the blocks that take part in a compaction.
//
// For Prev, a Tiering level gives up every block and a Leveling level gives
// up its oldest blocks beyond the limit. For Next, a Leveling level gives up
// the blocks whose key range intersects [lo, hi]; a Tiering level gives up
// nothing.
func (l *Level) Select(order Order, lo, hi uint64) []*sstable.Block {
	var selected []*sstable.Block

	switch {
	case order == Prev && l.policy == Tiering:
		selected, l.blocks = l.blocks, nil
	case order == Prev && l.policy == Leveling:
		if excess := len(l.blocks) - l.limit; excess > 0 {
			selected = append(selected, l.blocks[:excess]...)
			l.blocks = append([]*sstable.Block(nil), l.blocks[excess:]...)
		}
	case order == Next && l.policy == Leveling:
		var kept []*sstable.Block
		for _, b := range l.blocks {
			if b.Overlaps(lo, hi) {
				selected = append(selected, b)
			} else {
				kept = append(kept, b)
			}
		}
		l.blocks = kept
	}

	return selected
}

// Search checks blocks from newest to oldest and returns the first hit,
// which may be a tombstone.
func (l *Level) Search(key uint64) (memtable.Entry, bool, error) {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		e, ok, err := l.blocks[i].Search(key)
		if err != nil {
			return memtable.Entry{}, false, err
		}
		if ok {
			return e, true, nil
		}
	}
	return memtable.Entry{}, false, nil
}

// MayContain reports whether any block's range and Bloom filter admit key.
func (l *Level) MayContain(key uint64) bool {
	for _, b := range l.blocks {
		if b.MayContain(key) {
			return true
		}
	}
	return false
}

// Blocks returns the blocks from oldest to newest. The slice must not be
// modified.
func (l *Level) Blocks() []*sstable.Block { return l.blocks }

// Size returns the number of blocks.
func (l *Level) Size() int { return len(l.blocks) }

// Limit returns the block limit.
func (l *Level) Limit() int { return l.limit }

// Policy returns the compaction policy.
func (l *Level) Policy() Policy { return l.policy }

// ID returns the position of the level, 0 being the newest.
func (l *Level) ID() int { return l.id }

// Dir returns the level's directory.
func (l *Level) Dir() string { return l.dir }

// NeedsCompaction reports whether the level is at or above its limit.
func (l *Level) NeedsCompaction() bool { return len(l.blocks) >= l.limit }

// Bytes returns the total size of the level's files.
func (l *Level) Bytes() int64 {
	var n int64
	for _, b := range l.blocks {
		n += b.FileSize()
	}
	return n
}

// Keys returns the number of entries across the level's blocks, counting
// duplicates and tombstones.
func (l *Level) Keys() int64 {
	var n int64
	for _, b := range l.blocks {
		n += int64(b.Len())
	}
	return n
}

func (l *Level) String() string {
	return fmt.Sprintf("L%d %s limit=%d blocks=%d", l.id, l.policy, l.limit, len(l.blocks))
}
