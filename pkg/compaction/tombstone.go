package compaction

// DropTombstones discards every deletion marker. It is the behavior of a
// merge into the deepest level, where no older value can be left behind.
type DropTombstones struct{}

// ShouldKeep always returns false.
func (DropTombstones) ShouldKeep(key uint64) bool { return false }

// ShadowFilter keeps a tombstone while the blocks the merge target keeps, or
// a level below it, may still hold an older value for the key. Without it, dropping the marker
// would make that older value visible again.
type ShadowFilter struct {
	deeper []*Level
}

// NewShadowFilter checks tombstones against the given levels: the merge
// target, after it gave up the blocks taking part, and every level below it.
func NewShadowFilter(deeper []*Level) *ShadowFilter {
	return &ShadowFilter{deeper: deeper}
}

// ShouldKeep reports whether any remaining block's range and Bloom filter
// admit key.
func (f *ShadowFilter) ShouldKeep(key uint64) bool {
	for _, l := range f.deeper {
		if l.MayContain(key) {
			return true
		}
	}
	return false
}
