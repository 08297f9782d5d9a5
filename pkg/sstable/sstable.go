// Package sstable implements the immutable sorted block file: a fixed
// header, a Bloom filter bitmap, a flat (key, offset) index and the
// concatenated values. The layout is native-endian and has no framing beyond
// the header, so value lengths are derived from consecutive offsets.
package sstable

import (
	"encoding/binary"
	"errors"

	"github.com/KevoDB/lsmkv/pkg/bloom"
	"github.com/KevoDB/lsmkv/pkg/memtable"
)

const (
	// HeaderSize is the size of the encoded Header
	HeaderSize = 32
	// ReservedSize covers the header and the Bloom filter bitmap, which
	// precede the index
	ReservedSize = HeaderSize + bloom.Size
	// IndexEntrySize is the size of one encoded (key, offset) pair
	IndexEntrySize = 16
	// MaxBlockSize is the target size of a block file
	MaxBlockSize = 2 << 20
	// DefaultCapacity is the number of charged bytes that fills a block:
	// the target file size minus the reserved region
	DefaultCapacity = MaxBlockSize - ReservedSize
)

var (
	// ErrCorruption indicates data corruption was detected
	ErrCorruption = errors.New("sstable corruption detected")
	// ErrEmptyBlock is returned when asked to write a block with no entries
	ErrEmptyBlock = errors.New("sstable block has no entries")
	// ErrExhausted is returned by Top and Pop once every entry was consumed
	ErrExhausted = errors.New("sstable block exhausted")
)

// byteOrder is the order of every integer in a block file
var byteOrder = binary.NativeEndian

// Header is the fixed-size prefix of a block file.
type Header struct {
	// Timestamp orders blocks by recency, in microseconds
	Timestamp uint64
	// NumKeys is the number of index entries
	NumKeys uint64
	// Min and Max are the smallest and largest keys in the block
	Min uint64
	Max uint64
}

// IndexEntry locates one value in the file.
type IndexEntry struct {
	Key    uint64
	Offset uint64
}

// EntrySize is the number of bytes an entry is charged against a block's
// capacity: its index pair plus its encoded value.
func EntrySize(e memtable.Entry) int {
	return memtable.EntryOverhead + e.EncodedLen()
}

// dataStart returns the offset of the first value for a block of n keys.
func dataStart(n int) uint64 {
	return uint64(ReservedSize + IndexEntrySize*n)
}
