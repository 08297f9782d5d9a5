package sstable

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIteratorWalksBlock(t *testing.T) {
	b := createBlock(t, afero.NewMemMapFs(), sampleEntries())
	it := b.NewIterator()
	assert.False(t, it.Valid())

	it.SeekToFirst()
	var keys []uint64
	var tombstones []uint64
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
		if it.IsTombstone() {
			tombstones = append(tombstones, it.Key())
			assert.Nil(t, it.Value())
		}
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint64{3, 7, 10, 42, 100}, keys)
	assert.Equal(t, []uint64{7}, tombstones)
}

func TestIteratorSeek(t *testing.T) {
	b := createBlock(t, afero.NewMemMapFs(), sampleEntries())
	it := b.NewIterator()

	require.True(t, it.Seek(11))
	assert.Equal(t, uint64(42), it.Key())
	assert.Equal(t, []byte("the answer"), it.Value())
	assert.False(t, it.IsTombstone())

	require.True(t, it.Seek(10))
	assert.Empty(t, it.Value())
	assert.False(t, it.IsTombstone())

	assert.False(t, it.Seek(101))
	assert.Equal(t, uint64(0), it.Key())
	assert.False(t, it.Next())
}

func TestIteratorIndependentOfStream(t *testing.T) {
	b := createBlock(t, afero.NewMemMapFs(), sampleEntries())
	require.NoError(t, b.Pop())
	require.NoError(t, b.Pop())

	it := b.NewIterator()
	it.SeekToFirst()
	assert.Equal(t, uint64(3), it.Key())
	assert.Equal(t, 3, b.Size())
}

func TestIteratorReportsReadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := createBlock(t, fs, sampleEntries())
	require.NoError(t, fs.Remove(b.Path()))

	it := b.NewIterator()
	it.SeekToFirst()
	assert.Nil(t, it.Value())
	assert.Error(t, it.Err())
	assert.False(t, it.Valid())
}
