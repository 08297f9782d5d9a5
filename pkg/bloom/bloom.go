// Package bloom implements the fixed-size Bloom filter stored in every block
// file. The filter keeps one byte per slot and derives four slot
// positions from the MurmurHash3 x64/128 digest of the key's in-memory
// representation, so a bitmap written here is byte-identical to one written
// by any other implementation of the block format.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"
)

const (
	// Size is the number of slots (bytes) in every filter.
	Size = 10240

	// Hashes is the number of slots set for each inserted key.
	Hashes = 4

	seed = 1
)

// ErrInvalidSize is returned when a serialized bitmap has the wrong length.
var ErrInvalidSize = errors.New("invalid bloom filter size")

// Filter is a Bloom filter over uint64 keys.
type Filter struct {
	slots []byte
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{slots: make([]byte, Size)}
}

// FromBytes rebuilds a filter from a serialized bitmap. The data is copied.
func FromBytes(data []byte) (*Filter, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSize, len(data), Size)
	}
	slots := make([]byte, Size)
	copy(slots, data)
	return &Filter{slots: slots}, nil
}

// positions returns the slots for key. The 128-bit digest is split
// into four signed 32-bit lanes, and each lane is sign-extended before the
// modulo, as the block format requires.
func positions(key uint64) [Hashes]uint64 {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], key)
	h1, h2 := murmur3.Sum128WithSeed(buf[:], seed)

	lanes := [Hashes]uint32{uint32(h1), uint32(h1 >> 32), uint32(h2), uint32(h2 >> 32)}
	var out [Hashes]uint64
	for i, lane := range lanes {
		out[i] = uint64(int64(int32(lane))) % Size
	}
	return out
}

// Insert records key in the filter.
func (f *Filter) Insert(key uint64) {
	for _, pos := range positions(key) {
		f.slots[pos] = 1
	}
}

// Check reports whether key may have been inserted. A false result is
// definitive; a true result may be a false positive.
func (f *Filter) Check(key uint64) bool {
	for _, pos := range positions(key) {
		if f.slots[pos] == 0 {
			return false
		}
	}
	return true
}

// Bytes returns the serialized bitmap. The slice aliases the filter.
func (f *Filter) Bytes() []byte {
	return f.slots
}

// Reset clears every slot.
func (f *Filter) Reset() {
	clear(f.slots)
}
