package compaction

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTrackerCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b", []byte("b"), 0o644))

	tracker := NewFileTracker(fs)
	tracker.MarkFileObsolete("/a")
	tracker.MarkFileObsolete("/b")
	tracker.MarkFilePending("/b")
	tracker.MarkFileObsolete("/missing")

	assert.True(t, tracker.IsFileObsolete("/a"))
	assert.True(t, tracker.IsFilePending("/b"))

	require.NoError(t, tracker.CleanupObsoleteFiles())

	exists, _ := afero.Exists(fs, "/a")
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, "/b")
	assert.True(t, exists, "pending files survive cleanup")
	assert.False(t, tracker.IsFileObsolete("/a"))
	assert.False(t, tracker.IsFileObsolete("/missing"), "files already gone are forgotten")

	tracker.UnmarkFilePending("/b")
	require.NoError(t, tracker.CleanupObsoleteFiles())
	exists, _ = afero.Exists(fs, "/b")
	assert.False(t, exists)
}

func TestFileTrackerReportsFailures(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	tracker := NewFileTracker(fs)
	tracker.MarkFileObsolete("/a")

	assert.Error(t, tracker.CleanupObsoleteFiles())
	assert.True(t, tracker.IsFileObsolete("/a"), "failed deletions are retried later")
}

func TestShadowFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	deeper := openLevel(t, fs, 3, Leveling, 4)
	insertEntries(t, deeper, 1, live(10, "x"), live(20, "y"))

	f := NewShadowFilter([]*Level{deeper})
	assert.True(t, f.ShouldKeep(10))
	assert.True(t, f.ShouldKeep(20))
	assert.False(t, f.ShouldKeep(9), "below every range")
	assert.False(t, f.ShouldKeep(21), "above every range")

	assert.False(t, NewShadowFilter(nil).ShouldKeep(10))
	assert.False(t, DropTombstones{}.ShouldKeep(10))
}
