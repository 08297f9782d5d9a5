package sstable

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/KevoDB/lsmkv/pkg/bloom"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/spf13/afero"
)

// TempSuffix marks files that are still being written
const TempSuffix = ".tmp"

// FileManager handles file operations for block writing. Data goes to a
// hidden temporary file that only becomes visible under its final name once
// it is complete.
type FileManager struct {
	fs      afero.Fs
	path    string
	tmpPath string
	file    afero.File
	buf     *bufio.Writer
}

// NewFileManager creates a new FileManager for the given file path
func NewFileManager(fs afero.Fs, path string) (*FileManager, error) {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s%s", filepath.Base(path), TempSuffix))

	file, err := fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &FileManager{
		fs:      fs,
		path:    path,
		tmpPath: tmpPath,
		file:    file,
		buf:     bufio.NewWriterSize(file, 64<<10),
	}, nil
}

// Write writes data to the file at the current position
func (fm *FileManager) Write(data []byte) (int, error) {
	return fm.buf.Write(data)
}

// Close closes the file
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// FinalizeFile flushes buffered data, syncs, closes the file and renames it
// to the final path
func (fm *FileManager) FinalizeFile() error {
	if err := fm.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}
	if err := fm.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := fm.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := fm.fs.Rename(fm.tmpPath, fm.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Cleanup removes the temporary file if writing is aborted
func (fm *FileManager) Cleanup() error {
	fm.Close()
	return fm.fs.Remove(fm.tmpPath)
}

// Writer lays out a block: header, filter, index, then values.
type Writer struct {
	header  Header
	filter  *bloom.Filter
	index   []IndexEntry
	entries []memtable.Entry
}

// NewWriter prepares a block for entries, which must be sorted by key with
// no duplicates.
func NewWriter(entries []memtable.Entry, timestamp uint64) (*Writer, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyBlock
	}

	w := &Writer{
		header: Header{
			Timestamp: timestamp,
			NumKeys:   uint64(len(entries)),
			Min:       entries[0].Key,
			Max:       entries[len(entries)-1].Key,
		},
		filter:  bloom.New(),
		index:   make([]IndexEntry, len(entries)),
		entries: entries,
	}

	offset := dataStart(len(entries))
	for i, e := range entries {
		if i > 0 && e.Key <= entries[i-1].Key {
			return nil, fmt.Errorf("keys out of order at position %d (%d after %d)", i, e.Key, entries[i-1].Key)
		}
		w.index[i] = IndexEntry{Key: e.Key, Offset: offset}
		offset += uint64(e.EncodedLen())
		w.filter.Insert(e.Key)
	}

	return w, nil
}

// Size returns the number of bytes the block occupies on disk.
func (w *Writer) Size() int64 {
	n := int64(dataStart(len(w.entries)))
	for _, e := range w.entries {
		n += int64(e.EncodedLen())
	}
	return n
}

// WriteTo writes the encoded block to fm.
func (w *Writer) WriteTo(fm *FileManager) error {
	var hdr [HeaderSize]byte
	byteOrder.PutUint64(hdr[0:], w.header.Timestamp)
	byteOrder.PutUint64(hdr[8:], w.header.NumKeys)
	byteOrder.PutUint64(hdr[16:], w.header.Min)
	byteOrder.PutUint64(hdr[24:], w.header.Max)
	if _, err := fm.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if _, err := fm.Write(w.filter.Bytes()); err != nil {
		return fmt.Errorf("failed to write bloom filter: %w", err)
	}

	var pair [IndexEntrySize]byte
	for _, ie := range w.index {
		byteOrder.PutUint64(pair[0:], ie.Key)
		byteOrder.PutUint64(pair[8:], ie.Offset)
		if _, err := fm.Write(pair[:]); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}

	for _, e := range w.entries {
		if _, err := fm.Write(e.EncodedValue()); err != nil {
			return fmt.Errorf("failed to write value for key %d: %w", e.Key, err)
		}
	}
	return nil
}

// Create writes entries to a new block file at path and returns it opened.
func Create(fs afero.Fs, path string, entries []memtable.Entry, timestamp uint64) (*Block, error) {
	w, err := NewWriter(entries, timestamp)
	if err != nil {
		return nil, err
	}

	fm, err := NewFileManager(fs, path)
	if err != nil {
		return nil, err
	}
	if err := w.WriteTo(fm); err != nil {
		fm.Cleanup()
		return nil, err
	}
	if err := fm.FinalizeFile(); err != nil {
		fm.Cleanup()
		return nil, err
	}

	return &Block{
		fs:       fs,
		path:     path,
		header:   w.header,
		filter:   w.filter,
		index:    w.index,
		fileSize: w.Size(),
	}, nil
}
