package util

import "github.com/bits-and-blooms/bitset"

// OverflowSet tracks, by partition index, which partitions are currently at
// or over their reserved share. It's a fixed-size, size-bounded alternative
// to a map[string]bool for a small, known partition count — refreshed
// wholesale on every limit update rather than mutated per acquire, since the
// set of overflowing partitions only changes meaningfully when the global
// limit (and therefore every partition's reservation) changes.
type OverflowSet struct {
	bits *bitset.BitSet
}

// NewOverflowSet returns an OverflowSet sized for n partitions.
func NewOverflowSet(n uint) *OverflowSet {
	return &OverflowSet{bits: bitset.New(n)}
}

// MarkOverflowing records that the partition at index i is at or over its
// reserved limit.
func (s *OverflowSet) MarkOverflowing(i uint) {
	s.bits.Set(i)
}

// ClearAll resets every bit, typically called before recomputing overflow
// state for a new global limit.
func (s *OverflowSet) ClearAll() {
	s.bits.ClearAll()
}

// IsOverflowing reports whether the partition at index i was marked
// overflowing as of the last recompute.
func (s *OverflowSet) IsOverflowing(i uint) bool {
	return s.bits.Test(i)
}

// Count returns how many partitions are currently marked overflowing.
func (s *OverflowSet) Count() uint {
	return s.bits.Count()
}
