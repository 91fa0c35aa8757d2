// Package sap stores the proxies of a multi-level sweep-and-prune broad phase.
//
// Proxies live in an index-stable slab whose vacant slots are threaded into a
// free list through their own NextFree field. Nothing in this package is safe
// for concurrent use: the enclosing broad phase update serializes mutations.
package sap

// Proxies is a growable slab of proxies. Indexes are never reordered nor
// compacted: an index keeps referring to the same slot until it is removed
// and handed out again by Insert.
type Proxies struct {
	Elements  []Proxy    `json:"elements"`
	FirstFree ProxyIndex `json:"first_free"`
}

func NewProxies() Proxies {
	return Proxies{
		FirstFree: NextFreeSentinel,
	}
}

// Insert stores p and returns its index, reusing the most recently removed
// slot when there is one.
func (s *Proxies) Insert(p Proxy) ProxyIndex {
	if s.FirstFree != NextFreeSentinel {
		i := s.FirstFree
		// The link must be read before the slot is overwritten.
		s.FirstFree = s.Elements[i].NextFree
		s.Elements[i] = p
		return i
	}

	s.Elements = append(s.Elements, p)
	return ProxyIndex(len(s.Elements) - 1)
}

// Remove pushes the slot at i on the free list. The proxy data stays in place
// until the slot is reused.
//
// i must refer to a live slot: removing a vacant slot corrupts the free list
// and is not detected here (see CheckFreeList).
func (s *Proxies) Remove(i ProxyIndex) {
	s.Elements[i].NextFree = s.FirstFree
	s.FirstFree = i
}

// Get returns the proxy at i. Only bounds are checked: a removed slot that
// has not been reused yet still returns its stale proxy (see IsVacant).
//
// The returned pointer is valid until the next Insert.
func (s *Proxies) Get(i ProxyIndex) (*Proxy, bool) {
	if int(i) >= len(s.Elements) {
		return nil, false
	}
	return &s.Elements[i], true
}

// At returns the proxy at i and panics when i is out of bounds. Like Get, it
// does not check liveness.
func (s *Proxies) At(i ProxyIndex) *Proxy {
	return &s.Elements[i]
}

// Len returns the number of slots, vacant ones included.
func (s *Proxies) Len() int {
	return len(s.Elements)
}

func (s Proxies) Equal(o Proxies) bool {
	if s.FirstFree != o.FirstFree || len(s.Elements) != len(o.Elements) {
		return false
	}

	for i := range s.Elements {
		if !s.Elements[i].Equal(o.Elements[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, nested regions included.
func (s Proxies) Clone() Proxies {
	c := Proxies{FirstFree: s.FirstFree}
	if s.Elements != nil {
		c.Elements = make([]Proxy, len(s.Elements))
		for i, p := range s.Elements {
			c.Elements[i] = p.Clone()
		}
	}
	return c
}
