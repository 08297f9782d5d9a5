package compaction

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLevel(t *testing.T, fs afero.Fs, id int, policy Policy, limit int) *Level {
	t.Helper()
	l, err := OpenLevel(fs, fmt.Sprintf("/db/level-%d", id), id, policy, limit, log.NewDiscardLogger())
	require.NoError(t, err)
	return l
}

// put writes one block holding keys lo..hi with values tagged by tag.
func put(t *testing.T, l *Level, ts uint64, lo, hi uint64, tag string) *sstable.Block {
	t.Helper()
	var entries []memtable.Entry
	for k := lo; k <= hi; k++ {
		entries = append(entries, memtable.Entry{Key: k, Value: []byte(fmt.Sprintf("%s-%d", tag, k))})
	}
	b, err := l.InsertBlock(entries, ts)
	require.NoError(t, err)
	return b
}

func timestamps(blocks []*sstable.Block) []uint64 {
	var out []uint64
	for _, b := range blocks {
		out = append(out, b.Timestamp())
	}
	return out
}

func TestPolicyParsing(t *testing.T) {
	assert.Equal(t, Leveling, ParsePolicy("Leveling"))
	assert.Equal(t, Tiering, ParsePolicy("Tiering"))
	assert.Equal(t, Tiering, ParsePolicy("leveling"))
	assert.Equal(t, Tiering, ParsePolicy("anything"))
	assert.Equal(t, "Leveling", Leveling.String())
	assert.Equal(t, "Tiering", Tiering.String())
	assert.Equal(t, "Policy(7)", Policy(7).String())
	assert.Equal(t, "prev", Prev.String())
	assert.Equal(t, "next", Next.String())
}

func TestInsertBlockKeepsRecencyOrder(t *testing.T) {
	l := openLevel(t, afero.NewMemMapFs(), 0, Tiering, 4)

	put(t, l, 30, 1, 2, "c")
	put(t, l, 10, 5, 6, "a")
	put(t, l, 20, 3, 4, "b")
	put(t, l, 20, 1, 1, "b0")

	assert.Equal(t, []uint64{10, 20, 20, 30}, timestamps(l.Blocks()))
	assert.Equal(t, uint64(1), l.Blocks()[1].Min(), "equal timestamps sort by min")
	assert.Equal(t, 4, l.Size())
	assert.True(t, l.NeedsCompaction())
	assert.Equal(t, int64(7), l.Keys())
	assert.Positive(t, l.Bytes())

	for _, b := range l.Blocks() {
		assert.Regexp(t, `^block-\d+-[0-9a-f]{8}\.sst$`, b.Filename())
		assert.Equal(t, "/db/level-0", filepath.Dir(b.Path()))
	}
}

func TestOpenLevelReloadsBlocks(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := openLevel(t, fs, 1, Leveling, 3)
	put(t, l, 200, 10, 12, "new")
	put(t, l, 100, 1, 3, "old")

	require.NoError(t, afero.WriteFile(fs, "/db/level-1/MANIFEST", []byte("ignored"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/db/level-1/.block-999.sst.tmp", []byte("partial"), 0o644))
	require.NoError(t, fs.MkdirAll("/db/level-1/blockdir", 0o755))

	reopened := openLevel(t, fs, 1, Leveling, 3)
	assert.Equal(t, []uint64{100, 200}, timestamps(reopened.Blocks()))
	assert.Equal(t, Leveling, reopened.Policy())
	assert.Equal(t, 3, reopened.Limit())
	assert.Equal(t, 1, reopened.ID())
	assert.Equal(t, "/db/level-1", reopened.Dir())

	exists, err := afero.Exists(fs, "/db/level-1/.block-999.sst.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temporary files are removed")

	exists, err = afero.Exists(fs, "/db/level-1/MANIFEST")
	require.NoError(t, err)
	assert.True(t, exists, "foreign files are left alone")

	e, ok, err := reopened.Search(11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new-11", string(e.Value))
}

func TestOpenLevelRejectsCorruptBlock(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/db/level-0", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/db/level-0/block-1.sst", []byte("short"), 0o644))

	_, err := OpenLevel(fs, "/db/level-0", 0, Tiering, 2, log.NewDiscardLogger())
	assert.ErrorIs(t, err, sstable.ErrCorruption)
}

func TestSearchPrefersNewestBlock(t *testing.T) {
	l := openLevel(t, afero.NewMemMapFs(), 0, Tiering, 8)
	put(t, l, 1, 1, 5, "old")
	put(t, l, 2, 3, 4, "new")
	_, err := l.InsertBlock([]memtable.Entry{{Key: 5, Tombstone: true}}, 3)
	require.NoError(t, err)

	e, ok, err := l.Search(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new-3", string(e.Value))

	e, ok, err = l.Search(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old-1", string(e.Value))

	e, ok, err = l.Search(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.Tombstone, "a tombstone hit ends the search")

	_, ok, err = l.Search(6)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, l.MayContain(2))
	assert.False(t, l.MayContain(100))
}

func TestSelect(t *testing.T) {
	t.Run("tiering prev takes everything", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 0, Tiering, 2)
		put(t, l, 1, 1, 2, "a")
		put(t, l, 2, 3, 4, "b")

		selected := l.Select(Prev, 0, 0)
		assert.Equal(t, []uint64{1, 2}, timestamps(selected))
		assert.Zero(t, l.Size())
	})

	t.Run("tiering next takes nothing", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 1, Tiering, 2)
		put(t, l, 1, 1, 100, "a")

		assert.Empty(t, l.Select(Next, 0, 1000))
		assert.Equal(t, 1, l.Size())
	})

	t.Run("leveling prev takes oldest excess", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 2, Leveling, 2)
		for ts := uint64(1); ts <= 5; ts++ {
			put(t, l, ts, ts*10, ts*10+1, "x")
		}

		selected := l.Select(Prev, 0, 0)
		assert.Equal(t, []uint64{1, 2, 3}, timestamps(selected))
		assert.Equal(t, []uint64{4, 5}, timestamps(l.Blocks()))
	})

	t.Run("leveling prev at limit takes nothing", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 2, Leveling, 2)
		put(t, l, 1, 1, 2, "a")
		put(t, l, 2, 3, 4, "b")

		assert.Empty(t, l.Select(Prev, 0, 0))
		assert.Equal(t, 2, l.Size())
	})

	t.Run("leveling next takes overlapping ranges", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 2, Leveling, 8)
		put(t, l, 1, 1, 10, "a")
		put(t, l, 2, 20, 30, "b")
		put(t, l, 3, 40, 50, "c")
		put(t, l, 4, 60, 70, "d")

		selected := l.Select(Next, 25, 45)
		assert.Equal(t, []uint64{2, 3}, timestamps(selected))
		assert.Equal(t, []uint64{1, 4}, timestamps(l.Blocks()))

		assert.Empty(t, l.Select(Next, 11, 19), "a gap between blocks overlaps nothing")
		assert.Len(t, l.Select(Next, 70, 70), 1, "range ends are inclusive")
	})

	t.Run("add blocks restores order", func(t *testing.T) {
		l := openLevel(t, afero.NewMemMapFs(), 0, Tiering, 2)
		put(t, l, 1, 1, 2, "a")
		put(t, l, 2, 3, 4, "b")

		selected := l.Select(Prev, 0, 0)
		put(t, l, 3, 5, 6, "c")
		l.AddBlocks(selected...)
		assert.Equal(t, []uint64{1, 2, 3}, timestamps(l.Blocks()))
	})
}

func TestPolicyText(t *testing.T) {
	text, err := Leveling.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Leveling", string(text))

	var p Policy
	require.NoError(t, p.UnmarshalText([]byte("Leveling")))
	assert.Equal(t, Leveling, p)
	require.NoError(t, p.UnmarshalText([]byte("Tiering")))
	assert.Equal(t, Tiering, p)

	_, err = Policy(9).MarshalText()
	assert.Error(t, err)
}
