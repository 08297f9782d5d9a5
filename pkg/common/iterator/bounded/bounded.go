// Package bounded restricts an iterator to an inclusive key range.
package bounded

import (
	"github.com/KevoDB/lsmkv/pkg/common/iterator"
)

// BoundedIterator wraps an iterator and limits it to the keys in [start, end].
// Both bounds are inclusive so that the full uint64 key space stays
// addressable.
type BoundedIterator struct {
	iterator.Iterator
	start uint64
	end   uint64
}

// NewBoundedIterator creates a new bounded iterator
func NewBoundedIterator(iter iterator.Iterator, start, end uint64) *BoundedIterator {
	return &BoundedIterator{
		Iterator: iter,
		start:    start,
		end:      end,
	}
}

// SeekToFirst positions at the first key in the bounded range
func (b *BoundedIterator) SeekToFirst() {
	b.Iterator.Seek(b.start)
}

// Seek positions at the first key >= target within bounds
func (b *BoundedIterator) Seek(target uint64) bool {
	// If target is before start bound, use start bound instead
	if target < b.start {
		target = b.start
	}
	if target > b.end {
		return false
	}

	b.Iterator.Seek(target)
	return b.checkBounds()
}

// Next advances to the next key within bounds
func (b *BoundedIterator) Next() bool {
	if !b.checkBounds() {
		return false
	}
	b.Iterator.Next()
	return b.checkBounds()
}

// Valid returns true if the iterator is positioned at a valid entry within bounds
func (b *BoundedIterator) Valid() bool {
	return b.checkBounds()
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() uint64 {
	if !b.Valid() {
		return 0
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

// IsTombstone returns true if the current entry is a deletion marker
func (b *BoundedIterator) IsTombstone() bool {
	return b.Valid() && b.Iterator.IsTombstone()
}

// checkBounds verifies that the current position is within the bounds
func (b *BoundedIterator) checkBounds() bool {
	if !b.Iterator.Valid() {
		return false
	}
	key := b.Iterator.Key()
	return key >= b.start && key <= b.end
}
