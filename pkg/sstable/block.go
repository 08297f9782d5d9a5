package sstable

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/KevoDB/lsmkv/pkg/bloom"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/spf13/afero"
)

// Block is an opened block file. The header, filter and index are held in
// memory; values stay on disk and are read on demand.
//
// Besides point lookups a block can be consumed as an ascending stream with
// Top and Pop, which is how compaction merges blocks without loading them.
type Block struct {
	fs       afero.Fs
	path     string
	header   Header
	filter   *bloom.Filter
	index    []IndexEntry
	fileSize int64

	// head is the next index position handed out by Top
	head int
	// stream stays open while the block is consumed by Top/Pop
	stream afero.File
}

// Open reads the header, filter and index of the block file at path.
func Open(fs afero.Fs, path string) (*Block, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open block: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat block: %w", err)
	}
	fileSize := stat.Size()

	if fileSize < ReservedSize {
		return nil, fmt.Errorf("%s: file too small to be a block (%d bytes): %w", path, fileSize, ErrCorruption)
	}

	reserved := make([]byte, ReservedSize)
	if _, err := io.ReadFull(file, reserved); err != nil {
		return nil, fmt.Errorf("failed to read block header: %w", err)
	}
	header := Header{
		Timestamp: byteOrder.Uint64(reserved[0:]),
		NumKeys:   byteOrder.Uint64(reserved[8:]),
		Min:       byteOrder.Uint64(reserved[16:]),
		Max:       byteOrder.Uint64(reserved[24:]),
	}

	maxKeys := uint64(fileSize-ReservedSize) / IndexEntrySize
	if header.NumKeys > maxKeys {
		return nil, fmt.Errorf("%s: header claims %d keys, room for %d: %w", path, header.NumKeys, maxKeys, ErrCorruption)
	}

	filter, err := bloom.FromBytes(reserved[HeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrCorruption)
	}

	n := int(header.NumKeys)
	raw := make([]byte, n*IndexEntrySize)
	if _, err := io.ReadFull(file, raw); err != nil {
		return nil, fmt.Errorf("failed to read block index: %w", err)
	}
	index := make([]IndexEntry, n)
	for i := range index {
		index[i] = IndexEntry{
			Key:    byteOrder.Uint64(raw[i*IndexEntrySize:]),
			Offset: byteOrder.Uint64(raw[i*IndexEntrySize+8:]),
		}
	}

	if err := validateIndex(header, index, fileSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Block{
		fs:       fs,
		path:     path,
		header:   header,
		filter:   filter,
		index:    index,
		fileSize: fileSize,
	}, nil
}

// validateIndex checks that keys ascend, that the header bounds match the
// index and that every value lies inside the file.
func validateIndex(h Header, index []IndexEntry, fileSize int64) error {
	if len(index) == 0 {
		return nil
	}
	if index[0].Key != h.Min || index[len(index)-1].Key != h.Max {
		return fmt.Errorf("header range [%d, %d] does not match index: %w", h.Min, h.Max, ErrCorruption)
	}

	prev := dataStart(len(index))
	if index[0].Offset != prev {
		return fmt.Errorf("first value at %d, expected %d: %w", index[0].Offset, prev, ErrCorruption)
	}
	for i, ie := range index {
		if i > 0 && ie.Key <= index[i-1].Key {
			return fmt.Errorf("index keys not ascending at %d: %w", i, ErrCorruption)
		}
		if ie.Offset < prev || ie.Offset > uint64(fileSize) {
			return fmt.Errorf("value offset %d out of bounds at %d: %w", ie.Offset, i, ErrCorruption)
		}
		prev = ie.Offset
	}
	return nil
}

// bounds returns the byte range of the value at index position i.
func (b *Block) bounds(i int) (int64, int64) {
	start := int64(b.index[i].Offset)
	end := b.fileSize
	if i+1 < len(b.index) {
		end = int64(b.index[i+1].Offset)
	}
	return start, end
}

func (b *Block) readValue(r io.ReaderAt, i int) (memtable.Entry, error) {
	start, end := b.bounds(i)
	if start > end || end > b.fileSize {
		return memtable.Entry{}, fmt.Errorf("%s: value range [%d, %d) invalid: %w", b.path, start, end, ErrCorruption)
	}

	raw := make([]byte, end-start)
	if len(raw) == 0 {
		return memtable.DecodeEntry(b.index[i].Key, raw), nil
	}
	if _, err := r.ReadAt(raw, start); err != nil && !(err == io.EOF && end == b.fileSize) {
		return memtable.Entry{}, fmt.Errorf("failed to read value for key %d: %w", b.index[i].Key, err)
	}
	return memtable.DecodeEntry(b.index[i].Key, raw), nil
}

// read opens the file just long enough to read the value at position i.
func (b *Block) read(i int) (memtable.Entry, error) {
	file, err := b.fs.Open(b.path)
	if err != nil {
		return memtable.Entry{}, fmt.Errorf("failed to open block: %w", err)
	}
	defer file.Close()
	return b.readValue(file, i)
}

// find returns the index position of key.
func (b *Block) find(key uint64) (int, bool) {
	i := sort.Search(len(b.index), func(i int) bool { return b.index[i].Key >= key })
	return i, i < len(b.index) && b.index[i].Key == key
}

// MayContain reports whether key passes the range check and the Bloom filter.
func (b *Block) MayContain(key uint64) bool {
	if len(b.index) == 0 || key < b.header.Min || key > b.header.Max {
		return false
	}
	return b.filter.Check(key)
}

// Search looks key up. A found entry may be a tombstone.
func (b *Block) Search(key uint64) (memtable.Entry, bool, error) {
	if !b.MayContain(key) {
		return memtable.Entry{}, false, nil
	}
	i, ok := b.find(key)
	if !ok {
		return memtable.Entry{}, false, nil
	}
	e, err := b.read(i)
	if err != nil {
		return memtable.Entry{}, false, err
	}
	return e, true, nil
}

// Top returns the smallest entry not yet popped.
func (b *Block) Top() (memtable.Entry, error) {
	if b.head >= len(b.index) {
		return memtable.Entry{}, ErrExhausted
	}
	if b.stream == nil {
		file, err := b.fs.Open(b.path)
		if err != nil {
			return memtable.Entry{}, fmt.Errorf("failed to open block: %w", err)
		}
		b.stream = file
	}
	return b.readValue(b.stream, b.head)
}

// TopKey returns the key Top would return without reading its value.
func (b *Block) TopKey() (uint64, bool) {
	if b.head >= len(b.index) {
		return 0, false
	}
	return b.index[b.head].Key, true
}

// Pop discards the smallest remaining entry. The file handle opened by Top
// is released once the block is drained.
func (b *Block) Pop() error {
	if b.head >= len(b.index) {
		return ErrExhausted
	}
	b.head++
	if b.head == len(b.index) {
		return b.Close()
	}
	return nil
}

// Size returns the number of entries not yet popped.
func (b *Block) Size() int { return len(b.index) - b.head }

// Len returns the number of entries in the file.
func (b *Block) Len() int { return len(b.index) }

// FileSize returns the size of the file in bytes.
func (b *Block) FileSize() int64 { return b.fileSize }

// Timestamp returns the block's recency stamp.
func (b *Block) Timestamp() uint64 { return b.header.Timestamp }

// Min returns the smallest key.
func (b *Block) Min() uint64 { return b.header.Min }

// Max returns the largest key.
func (b *Block) Max() uint64 { return b.header.Max }

// Header returns a copy of the decoded header.
func (b *Block) Header() Header { return b.header }

// Path returns the location of the file.
func (b *Block) Path() string { return b.path }

// Filename returns the base name of the file.
func (b *Block) Filename() string { return filepath.Base(b.path) }

// Overlaps reports whether the block's key range intersects [lo, hi].
func (b *Block) Overlaps(lo, hi uint64) bool {
	return b.header.Min <= hi && b.header.Max >= lo
}

// Rewind restarts the Top/Pop stream at the first entry.
func (b *Block) Rewind() {
	b.head = 0
}

// Close releases the stream handle, if any.
func (b *Block) Close() error {
	if b.stream == nil {
		return nil
	}
	err := b.stream.Close()
	b.stream = nil
	return err
}

// Remove closes the block and deletes its file.
func (b *Block) Remove() error {
	b.Close()
	if err := b.fs.Remove(b.path); err != nil {
		return fmt.Errorf("failed to remove block %s: %w", b.Filename(), err)
	}
	return nil
}
