package sap

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// FreeSlots returns the vacant slots in free list order, most recently
// removed first. The walk stops after Len steps so a corrupted list cannot
// make it loop forever.
func (s *Proxies) FreeSlots() []ProxyIndex {
	var free []ProxyIndex
	for i := s.FirstFree; i != NextFreeSentinel && len(free) < len(s.Elements); {
		if int(i) >= len(s.Elements) {
			break
		}
		free = append(free, i)
		i = s.Elements[i].NextFree
	}
	return free
}

// IsVacant reports whether the slot at i is on the free list. Unlike Get it
// tells a stale proxy from a live one, at the cost of walking the free list.
func (s *Proxies) IsVacant(i ProxyIndex) bool {
	for _, free := range s.FreeSlots() {
		if free == i {
			return true
		}
	}
	return false
}

// LiveCount returns the number of live slots.
func (s *Proxies) LiveCount() int {
	return len(s.Elements) - len(s.FreeSlots())
}

// CheckFreeList verifies that following NextFree links from FirstFree visits
// in-bounds slots only, never visits a slot twice and ends on the sentinel.
func (s *Proxies) CheckFreeList() error {
	visited := roaring.New()

	for i := s.FirstFree; i != NextFreeSentinel; i = s.Elements[i].NextFree {
		if int(i) >= len(s.Elements) {
			return errors.New("free list links out of bounds").
				WithType(ErrTypeFreeListCorrupted).
				WithTag("index", i).
				WithTag("len", len(s.Elements))
		}

		if !visited.CheckedAdd(uint32(i)) {
			return errors.New("free list has a cycle").
				WithType(ErrTypeFreeListCorrupted).
				WithTag("index", i).
				WithTag("visited", visited.GetCardinality())
		}
	}

	return nil
}
