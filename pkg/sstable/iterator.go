package sstable

import (
	"fmt"
	"sort"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
	"github.com/KevoDB/lsmkv/pkg/memtable"
)

// Iterator is a read-only cursor over a block. It keeps its own position, so
// any number of iterators can walk a block while compaction streams it.
// Values are read from disk only when asked for.
type Iterator struct {
	block *Block
	pos   int
	err   error
}

var _ iterator.Iterator = (*Iterator)(nil)

// NewIterator returns an unpositioned cursor over b.
func (b *Block) NewIterator() *Iterator {
	return &Iterator{block: b, pos: len(b.index)}
}

// SeekToFirst positions the iterator at the first key
func (it *Iterator) SeekToFirst() {
	it.pos = 0
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target uint64) bool {
	idx := it.block.index
	it.pos = sort.Search(len(idx), func(i int) bool { return idx[i].Key >= target })
	return it.Valid()
}

// Next advances the iterator to the next key
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.pos++
	return it.Valid()
}

// Key returns the current key
func (it *Iterator) Key() uint64 {
	if !it.Valid() {
		return 0
	}
	return it.block.index[it.pos].Key
}

// Value reads the current value. A read failure invalidates the iterator
// and is reported by Err.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	e, err := it.block.read(it.pos)
	if err != nil {
		it.err = fmt.Errorf("%s: %w", it.block.Filename(), err)
		return nil
	}
	return e.Value
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.err == nil && it.pos >= 0 && it.pos < len(it.block.index)
}

// IsTombstone reports whether the stored value is the deletion sentinel.
// Only the length is needed to rule most values out without a read.
func (it *Iterator) IsTombstone() bool {
	if !it.Valid() {
		return false
	}
	start, end := it.block.bounds(it.pos)
	if end-start != int64(len(memtable.TombstoneValue)) {
		return false
	}
	e, err := it.block.read(it.pos)
	if err != nil {
		it.err = fmt.Errorf("%s: %w", it.block.Filename(), err)
		return false
	}
	return e.Tombstone
}

// Err returns the first read error
func (it *Iterator) Err() error {
	return it.err
}
