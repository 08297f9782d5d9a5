// Package iterator defines the cursor interface shared by the memtable, the
// block files and the engine's merged read path.
package iterator

// Iterator defines the interface for iterating over key-value pairs
// This is used across the storage engine components to provide a consistent
// way to traverse data regardless of where it's stored.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// Seek positions the iterator at the first key >= target
	Seek(target uint64) bool

	// Next advances the iterator to the next key
	Next() bool

	// Key returns the current key
	Key() uint64

	// Value returns the current value. Tombstones have no value.
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// IsTombstone returns true if the current entry is a deletion marker
	IsTombstone() bool

	// Err returns the first error the iterator ran into. An iterator that
	// fails becomes invalid.
	Err() error
}
