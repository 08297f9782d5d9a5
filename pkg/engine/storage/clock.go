package storage

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing microsecond timestamps for new
// blocks, even when the wall clock stalls or steps backwards.
type Clock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewClock creates a clock that never returns a value at or below floor.
func NewClock(floor uint64) *Clock {
	return &Clock{last: floor, now: time.Now}
}

// Next returns the next timestamp.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := uint64(c.now().UnixMicro())
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Advance raises the floor to ts.
func (c *Clock) Advance(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts > c.last {
		c.last = ts
	}
}
