package memtable

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxLevel is the default number of levels in a skip list
	DefaultMaxLevel = 12

	// DefaultProbability is the default chance of promoting a node one level up
	DefaultProbability = 0.25
)

// Option configures a SkipList
type Option func(*SkipList)

// WithMaxLevel caps the number of levels a node can span
func WithMaxLevel(n int) Option {
	return func(s *SkipList) {
		if n > 0 {
			s.maxLevel = n
		}
	}
}

// WithProbability sets the per-level promotion probability
func WithProbability(p float64) Option {
	return func(s *SkipList) {
		if p > 0 && p < 1 {
			s.p = p
		}
	}
}

// WithRandSource makes node heights deterministic, mostly for tests
func WithRandSource(src rand.Source) Option {
	return func(s *SkipList) {
		s.rnd = rand.New(src)
	}
}

// node represents a node in the skip list
type node struct {
	entry Entry
	// next holds one forward pointer per level the node spans
	next []*node
}

// SkipList is an ordered linked structure with express lanes. Each node is
// linked at level 0 and promoted to each further level with probability p.
// It is not safe for concurrent use; the engine serializes access.
type SkipList struct {
	head     *node
	level    int
	maxLevel int
	p        float64
	rnd      *rand.Rand
	accounting
}

// NewSkipList creates a new skip list
func NewSkipList(opts ...Option) *SkipList {
	s := &SkipList{
		maxLevel: DefaultMaxLevel,
		p:        DefaultProbability,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.Reset()
	return s
}

// randomLevel flips coins until one fails or the cap is reached
func (s *SkipList) randomLevel() int {
	level := 1
	for level < s.maxLevel && s.rnd.Float64() < s.p {
		level++
	}
	return level
}

// findGreaterOrEqual returns the first node with key >= target. When update
// is non-nil it receives the rightmost node before that position on every
// level.
func (s *SkipList) findGreaterOrEqual(key uint64, update []*node) *node {
	current := s.head
	for level := s.level - 1; level >= 0; level-- {
		for next := current.next[level]; next != nil && next.entry.Key < key; next = current.next[level] {
			current = next
		}
		if update != nil {
			update[level] = current
		}
	}
	return current.next[0]
}

func (s *SkipList) put(e Entry) {
	update := make([]*node, s.maxLevel)
	if n := s.findGreaterOrEqual(e.Key, update); n != nil && n.entry.Key == e.Key {
		s.replaced(n.entry, e)
		n.entry = e
		return
	}

	height := s.randomLevel()
	if height > s.level {
		for level := s.level; level < height; level++ {
			update[level] = s.head
		}
		s.level = height
	}

	n := &node{entry: e, next: make([]*node, height)}
	for level := 0; level < height; level++ {
		n.next[level] = update[level].next[level]
		update[level].next[level] = n
	}
	s.added(e)
}

// Insert upserts key with value.
func (s *SkipList) Insert(key uint64, value []byte) {
	s.put(newEntry(key, value, false))
}

// Remove records a tombstone for key.
func (s *SkipList) Remove(key uint64) {
	s.put(newEntry(key, nil, true))
}

// Search returns the entry stored for key.
func (s *SkipList) Search(key uint64) (Entry, bool) {
	n := s.findGreaterOrEqual(key, nil)
	if n == nil || n.entry.Key != key {
		return Entry{}, false
	}
	return n.entry, true
}

// Dump drains the list in ascending key order.
func (s *SkipList) Dump() []Entry {
	out := make([]Entry, 0, s.count)
	for n := s.head.next[0]; n != nil; n = n.next[0] {
		out = append(out, n.entry)
	}
	s.Reset()
	return out
}

// Range returns the entries with lo <= key <= hi.
func (s *SkipList) Range(lo, hi uint64) []Entry {
	var out []Entry
	for n := s.findGreaterOrEqual(lo, nil); n != nil && n.entry.Key <= hi; n = n.next[0] {
		out = append(out, n.entry)
	}
	return out
}

// Size returns the approximate number of bytes held.
func (s *SkipList) Size() int { return s.size }

// Len returns the number of distinct keys.
func (s *SkipList) Len() int { return s.count }

// Level returns the number of levels currently in use.
func (s *SkipList) Level() int { return s.level }

// Reset drops every entry.
func (s *SkipList) Reset() {
	s.head = &node{next: make([]*node, s.maxLevel)}
	s.level = 1
	s.reset()
}
