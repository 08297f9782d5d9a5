package memtable

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// EntryOverhead is the fixed per-entry charge added to the size estimate
// for every distinct key (the key itself plus its on-disk offset).
const EntryOverhead = 16

// TombstoneValue is the byte string persisted in place of a deleted value.
// In memory, deletions are tagged on the Entry instead.
var TombstoneValue = []byte("~DELETED~")

// ErrUnknownBackend is returned for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown memtable backend")

// Entry is a single key/value pair. A tombstone entry has no value.
type Entry struct {
	Key       uint64
	Value     []byte
	Tombstone bool
}

// EncodedValue returns the bytes this entry occupies in a block file.
func (e Entry) EncodedValue() []byte {
	if e.Tombstone {
		return TombstoneValue
	}
	return e.Value
}

// EncodedLen returns len(e.EncodedValue()).
func (e Entry) EncodedLen() int {
	if e.Tombstone {
		return len(TombstoneValue)
	}
	return len(e.Value)
}

// IsTombstoneValue reports whether raw bytes read from a block decode to a
// deletion marker.
func IsTombstoneValue(v []byte) bool {
	return bytes.Equal(v, TombstoneValue)
}

// DecodeEntry builds an Entry from a key and the raw bytes stored in a block.
func DecodeEntry(key uint64, raw []byte) Entry {
	if IsTombstoneValue(raw) {
		return Entry{Key: key, Tombstone: true}
	}
	return Entry{Key: key, Value: raw}
}

// MemTable is the in-memory write buffer. Keys are unique; inserting an
// existing key replaces its value. All backends behave identically from the
// outside and differ only in how they keep themselves balanced.
type MemTable interface {
	// Insert upserts key with value.
	Insert(key uint64, value []byte)

	// Remove records a tombstone for key. The key stays in the table.
	Remove(key uint64)

	// Search returns the entry stored for key. The entry may be a tombstone.
	Search(key uint64) (Entry, bool)

	// Dump drains the table and returns its entries in ascending key order.
	// The caller owns the returned slice; the table is empty afterwards.
	Dump() []Entry

	// Range returns a copy of the entries with lo <= key <= hi in ascending
	// order without modifying the table.
	Range(lo, hi uint64) []Entry

	// Size returns the approximate number of bytes held.
	Size() int

	// Len returns the number of distinct keys held.
	Len() int

	// Reset drops every entry.
	Reset()
}

// Backend selects a MemTable implementation.
type Backend string

const (
	// BackendAVL is a height-balanced binary search tree.
	BackendAVL Backend = "avl"
	// BackendRBTree is a red-black tree.
	BackendRBTree Backend = "rbtree"
	// BackendSkipList is a probabilistic skip list.
	BackendSkipList Backend = "skiplist"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendAVL, BackendRBTree, BackendSkipList}

// ParseBackend converts a configuration string into a Backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "avl", "avltree":
		return BackendAVL, nil
	case "rb", "rbtree", "redblack":
		return BackendRBTree, nil
	case "skiplist", "skl":
		return BackendSkipList, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// New creates an empty MemTable of the given backend.
func New(backend Backend, opts ...Option) (MemTable, error) {
	switch backend {
	case BackendAVL:
		return NewAVLTree(), nil
	case BackendRBTree:
		return NewRBTree(), nil
	case BackendSkipList:
		return NewSkipList(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, string(backend))
	}
}

// accounting tracks the size estimate and key count shared by all backends.
type accounting struct {
	size  int
	count int
}

func (a *accounting) added(e Entry) {
	a.size += EntryOverhead + e.EncodedLen()
	a.count++
}

func (a *accounting) replaced(old, cur Entry) {
	a.size += cur.EncodedLen() - old.EncodedLen()
}

func (a *accounting) reset() {
	a.size = 0
	a.count = 0
}

func newEntry(key uint64, value []byte, tombstone bool) Entry {
	if tombstone {
		return Entry{Key: key, Tombstone: true}
	}
	v := make([]byte, len(value))
	copy(v, value)
	return Entry{Key: key, Value: v}
}
