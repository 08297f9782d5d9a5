package memtable

import (
	"sort"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
)

// EntryIterator walks an ascending slice of entries, typically a Range
// snapshot, through the common iterator interface.
type EntryIterator struct {
	entries []Entry
	index   int
}

var _ iterator.Iterator = (*EntryIterator)(nil)

// NewEntryIterator wraps entries, which must be sorted by key with no
// duplicates. The iterator starts unpositioned.
func NewEntryIterator(entries []Entry) *EntryIterator {
	return &EntryIterator{entries: entries, index: len(entries)}
}

// NewRangeIterator snapshots the entries of mt within [lo, hi].
func NewRangeIterator(mt MemTable, lo, hi uint64) *EntryIterator {
	return NewEntryIterator(mt.Range(lo, hi))
}

func (it *EntryIterator) SeekToFirst() {
	it.index = 0
}

func (it *EntryIterator) Seek(target uint64) bool {
	it.index = sort.Search(len(it.entries), func(i int) bool {
		return it.entries[i].Key >= target
	})
	return it.Valid()
}

func (it *EntryIterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.index++
	return it.Valid()
}

func (it *EntryIterator) Key() uint64 {
	if !it.Valid() {
		return 0
	}
	return it.entries[it.index].Key
}

func (it *EntryIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.entries[it.index].Value
}

func (it *EntryIterator) Valid() bool {
	return it.index >= 0 && it.index < len(it.entries)
}

func (it *EntryIterator) IsTombstone() bool {
	return it.Valid() && it.entries[it.index].Tombstone
}

// Err always returns nil; the entries are already in memory.
func (it *EntryIterator) Err() error {
	return nil
}
