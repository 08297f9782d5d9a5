// Package filtered provides iterators that filter keys based on different criteria
package filtered

import (
	"github.com/KevoDB/lsmkv/pkg/common/iterator"
)

// FilterFunc decides whether the entry the iterator is positioned at is visible
type FilterFunc func(it iterator.Iterator) bool

// FilteredIterator wraps an iterator and hides entries rejected by a filter
type FilteredIterator struct {
	iter   iterator.Iterator
	filter FilterFunc
}

// NewFilteredIterator creates a new iterator with an entry filter
func NewFilteredIterator(iter iterator.Iterator, filter FilterFunc) *FilteredIterator {
	return &FilteredIterator{
		iter:   iter,
		filter: filter,
	}
}

// NewLiveIterator hides deletion markers, leaving only live values
func NewLiveIterator(iter iterator.Iterator) *FilteredIterator {
	return NewFilteredIterator(iter, func(it iterator.Iterator) bool {
		return !it.IsTombstone()
	})
}

// skip moves forward until the filter accepts the current entry
func (fi *FilteredIterator) skip() bool {
	for fi.iter.Valid() {
		if fi.filter(fi.iter) {
			return true
		}
		fi.iter.Next()
	}
	return false
}

// Next advances to the next key that passes the filter
func (fi *FilteredIterator) Next() bool {
	if !fi.iter.Next() {
		return false
	}
	return fi.skip()
}

// Key returns the current key
func (fi *FilteredIterator) Key() uint64 {
	return fi.iter.Key()
}

// Value returns the current value
func (fi *FilteredIterator) Value() []byte {
	return fi.iter.Value()
}

// Valid returns true if the iterator is at a valid position
func (fi *FilteredIterator) Valid() bool {
	return fi.iter.Valid() && fi.filter(fi.iter)
}

// IsTombstone returns true if the current entry is a deletion marker
func (fi *FilteredIterator) IsTombstone() bool {
	return fi.iter.IsTombstone()
}

// Err returns the wrapped iterator's error
func (fi *FilteredIterator) Err() error {
	return fi.iter.Err()
}

// SeekToFirst positions at the first key that passes the filter
func (fi *FilteredIterator) SeekToFirst() {
	fi.iter.SeekToFirst()
	fi.skip()
}

// Seek positions at the first key >= target that passes the filter
func (fi *FilteredIterator) Seek(target uint64) bool {
	fi.iter.Seek(target)
	return fi.skip()
}
