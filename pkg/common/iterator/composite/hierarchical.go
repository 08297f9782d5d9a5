package composite

import (
	"github.com/KevoDB/lsmkv/pkg/common/iterator"
)

// HierarchicalIterator implements an iterator that follows the LSM-tree hierarchy
// where newer sources (earlier in the sources slice) take precedence over older sources.
// When multiple sources contain the same key, the entry from the newest source is used,
// including when that entry is a tombstone.
//
// Each source must yield strictly ascending keys. The iterator is not safe
// for concurrent use.
type HierarchicalIterator struct {
	// Iterators in order from newest to oldest
	iterators []iterator.Iterator

	// current is the index of the source that owns the current key, or -1
	current int
	key     uint64
	err     error
}

// NewHierarchicalIterator creates a new hierarchical iterator
// Sources must be provided in newest-to-oldest order
func NewHierarchicalIterator(iterators []iterator.Iterator) *HierarchicalIterator {
	return &HierarchicalIterator{
		iterators: iterators,
		current:   -1,
	}
}

// SeekToFirst positions the iterator at the first key
func (h *HierarchicalIterator) SeekToFirst() {
	for _, iter := range h.iterators {
		iter.SeekToFirst()
	}
	h.pick()
}

// Seek positions the iterator at the first key >= target
func (h *HierarchicalIterator) Seek(target uint64) bool {
	for _, iter := range h.iterators {
		iter.Seek(target)
	}
	return h.pick()
}

// Next advances the iterator to the next key
func (h *HierarchicalIterator) Next() bool {
	if h.current < 0 {
		return false
	}

	// Every source sitting on the current key moves past it. Keys are unique
	// within a source, so one step is enough.
	for _, iter := range h.iterators {
		if iter.Valid() && iter.Key() == h.key {
			iter.Next()
		}
	}
	return h.pick()
}

// pick selects the smallest key across the sources. Ties go to the newest
// source because the scan keeps the first minimum it sees.
func (h *HierarchicalIterator) pick() bool {
	h.current = -1
	for i, iter := range h.iterators {
		if err := iter.Err(); err != nil {
			h.err = err
			return false
		}
		if !iter.Valid() {
			continue
		}
		if h.current < 0 || iter.Key() < h.key {
			h.current = i
			h.key = iter.Key()
		}
	}
	return h.current >= 0
}

// Key returns the current key
func (h *HierarchicalIterator) Key() uint64 {
	if h.current < 0 {
		return 0
	}
	return h.key
}

// Value returns the current value
func (h *HierarchicalIterator) Value() []byte {
	if h.current < 0 {
		return nil
	}
	return h.iterators[h.current].Value()
}

// Valid returns true if the iterator is positioned at a valid entry
func (h *HierarchicalIterator) Valid() bool {
	return h.current >= 0
}

// IsTombstone returns true if the winning entry is a deletion marker
func (h *HierarchicalIterator) IsTombstone() bool {
	if h.current < 0 {
		return false
	}
	return h.iterators[h.current].IsTombstone()
}

// Err returns the first error reported by a source.
func (h *HierarchicalIterator) Err() error {
	return h.err
}

// NumSources returns the number of source iterators
func (h *HierarchicalIterator) NumSources() int {
	return len(h.iterators)
}

// GetSourceIterators returns the underlying source iterators
func (h *HierarchicalIterator) GetSourceIterators() []iterator.Iterator {
	return h.iterators
}
