package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockIsStrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMicro(1_000_000)
	c := NewClock(0)
	c.now = func() time.Time { return frozen }

	assert.Equal(t, uint64(1_000_000), c.Next())
	assert.Equal(t, uint64(1_000_001), c.Next())

	frozen = time.UnixMicro(500)
	assert.Equal(t, uint64(1_000_002), c.Next(), "a clock stepping backwards is ignored")

	c.Advance(5_000_000)
	assert.Equal(t, uint64(5_000_001), c.Next())
	c.Advance(10)
	assert.Equal(t, uint64(5_000_002), c.Next())
}

func TestClockFloor(t *testing.T) {
	c := NewClock(^uint64(0) >> 1)
	assert.Greater(t, c.Next(), ^uint64(0)>>1)
}
