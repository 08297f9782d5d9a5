package compaction

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// DefaultFileTracker is the default implementation of FileTracker
type DefaultFileTracker struct {
	fs afero.Fs

	// Map of file path -> true for files that have been obsoleted by compaction
	obsoleteFiles map[string]bool

	// Map of file path -> true for files that are currently being compacted
	pendingFiles map[string]bool

	// Mutex for file tracking maps
	filesMu sync.RWMutex
}

// NewFileTracker creates a new file tracker deleting through fs
func NewFileTracker(fs afero.Fs) *DefaultFileTracker {
	return &DefaultFileTracker{
		fs:            fs,
		obsoleteFiles: make(map[string]bool),
		pendingFiles:  make(map[string]bool),
	}
}

// MarkFileObsolete marks a file as obsolete (can be deleted)
func (f *DefaultFileTracker) MarkFileObsolete(path string) {
	f.filesMu.Lock()
	defer f.filesMu.Unlock()

	f.obsoleteFiles[path] = true
}

// MarkFilePending marks a file as being used in a compaction
func (f *DefaultFileTracker) MarkFilePending(path string) {
	f.filesMu.Lock()
	defer f.filesMu.Unlock()

	f.pendingFiles[path] = true
}

// UnmarkFilePending removes the pending mark from a file
func (f *DefaultFileTracker) UnmarkFilePending(path string) {
	f.filesMu.Lock()
	defer f.filesMu.Unlock()

	delete(f.pendingFiles, path)
}

// IsFileObsolete checks if a file is marked as obsolete
func (f *DefaultFileTracker) IsFileObsolete(path string) bool {
	f.filesMu.RLock()
	defer f.filesMu.RUnlock()

	return f.obsoleteFiles[path]
}

// IsFilePending checks if a file is marked as pending compaction
func (f *DefaultFileTracker) IsFilePending(path string) bool {
	f.filesMu.RLock()
	defer f.filesMu.RUnlock()

	return f.pendingFiles[path]
}

// CleanupObsoleteFiles removes obsolete files that no merge still reads.
// Every removable file is attempted; failures are joined.
func (f *DefaultFileTracker) CleanupObsoleteFiles() error {
	f.filesMu.Lock()
	defer f.filesMu.Unlock()

	var errs []error
	for path := range f.obsoleteFiles {
		if f.pendingFiles[path] {
			continue
		}

		if err := f.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to delete obsolete file %s: %w", path, err))
			continue
		}
		delete(f.obsoleteFiles, path)
	}

	return errors.Join(errs...)
}
