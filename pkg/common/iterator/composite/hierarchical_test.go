package composite

import (
	"errors"
	"sort"
	"testing"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	key       uint64
	value     string
	tombstone bool
}

// sliceIterator is a simple in-memory iterator for testing
type sliceIterator struct {
	pairs []pair
	index int
	err   error
}

func newSliceIterator(pairs ...pair) *sliceIterator {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return &sliceIterator{pairs: pairs, index: -1}
}

func (s *sliceIterator) SeekToFirst() { s.index = 0 }

func (s *sliceIterator) Seek(target uint64) bool {
	s.index = sort.Search(len(s.pairs), func(i int) bool { return s.pairs[i].key >= target })
	return s.Valid()
}

func (s *sliceIterator) Next() bool {
	if !s.Valid() {
		return false
	}
	s.index++
	return s.Valid()
}

func (s *sliceIterator) Key() uint64       { return s.pairs[s.index].key }
func (s *sliceIterator) Value() []byte     { return []byte(s.pairs[s.index].value) }
func (s *sliceIterator) IsTombstone() bool { return s.pairs[s.index].tombstone }
func (s *sliceIterator) Err() error        { return s.err }
func (s *sliceIterator) Valid() bool {
	return s.err == nil && s.index >= 0 && s.index < len(s.pairs)
}

func collect(t *testing.T, it iterator.Iterator) []pair {
	t.Helper()
	var out []pair
	for ; it.Valid(); it.Next() {
		out = append(out, pair{key: it.Key(), value: string(it.Value()), tombstone: it.IsTombstone()})
	}
	require.NoError(t, it.Err())
	return out
}

func TestHierarchicalIteratorNewestWins(t *testing.T) {
	newest := newSliceIterator(pair{key: 2, value: "new-2"}, pair{key: 5, tombstone: true})
	middle := newSliceIterator(pair{key: 0, value: "mid-0"}, pair{key: 2, value: "mid-2"}, pair{key: 7, value: "mid-7"})
	oldest := newSliceIterator(pair{key: 2, value: "old-2"}, pair{key: 5, value: "old-5"}, pair{key: 9, value: "old-9"})

	h := NewHierarchicalIterator([]iterator.Iterator{newest, middle, oldest})
	assert.Equal(t, 3, h.NumSources())
	assert.Len(t, h.GetSourceIterators(), 3)

	h.SeekToFirst()
	got := collect(t, h)

	assert.Equal(t, []pair{
		{key: 0, value: "mid-0"},
		{key: 2, value: "new-2"},
		{key: 5, tombstone: true},
		{key: 7, value: "mid-7"},
		{key: 9, value: "old-9"},
	}, got)
	assert.False(t, h.Valid())
	assert.False(t, h.Next())
}

func TestHierarchicalIteratorSeek(t *testing.T) {
	a := newSliceIterator(pair{key: 10, value: "a10"}, pair{key: 30, value: "a30"})
	b := newSliceIterator(pair{key: 20, value: "b20"}, pair{key: 30, value: "b30"})
	h := NewHierarchicalIterator([]iterator.Iterator{a, b})

	require.True(t, h.Seek(15))
	assert.Equal(t, uint64(20), h.Key())
	assert.Equal(t, []byte("b20"), h.Value())

	require.True(t, h.Next())
	assert.Equal(t, uint64(30), h.Key())
	assert.Equal(t, []byte("a30"), h.Value())

	assert.False(t, h.Next())
	assert.False(t, h.Seek(31))
	assert.Nil(t, h.Value())
	assert.False(t, h.IsTombstone())
}

func TestHierarchicalIteratorZeroKey(t *testing.T) {
	h := NewHierarchicalIterator([]iterator.Iterator{newSliceIterator(pair{key: 0, value: "zero"})})
	h.SeekToFirst()
	require.True(t, h.Valid())
	assert.Equal(t, uint64(0), h.Key())
	assert.Equal(t, []byte("zero"), h.Value())
}

func TestHierarchicalIteratorNoSources(t *testing.T) {
	h := NewHierarchicalIterator(nil)
	h.SeekToFirst()
	assert.False(t, h.Valid())
	assert.NoError(t, h.Err())
}

func TestHierarchicalIteratorPropagatesErrors(t *testing.T) {
	broken := newSliceIterator(pair{key: 1, value: "x"})
	broken.err = errors.New("disk on fire")

	h := NewHierarchicalIterator([]iterator.Iterator{newSliceIterator(pair{key: 0, value: "ok"}), broken})
	h.SeekToFirst()
	assert.False(t, h.Valid())
	assert.EqualError(t, h.Err(), "disk on fire")
}
