package sap

import (
	"slices"

	"github.com/aukilabs/broadphase/geometry"
)

// Region is a nested sub-index owned by a region proxy. It keeps its own
// proxies store; the ones that are themselves regions are listed in
// Subregions, which makes the hierarchy depth bound by memory only.
type Region struct {
	Bounds           geometry.Aabb `json:"bounds"`
	Proxies          Proxies       `json:"proxies"`
	Subregions       []ProxyIndex  `json:"subregions"`
	ProperProxyCount int           `json:"proper_proxy_count"`
	UpdateCount      uint8         `json:"update_count"`
}

func NewRegion(bounds geometry.Aabb) *Region {
	return &Region{
		Bounds:  bounds,
		Proxies: NewProxies(),
	}
}

// Insert stores p in the region and marks the region as needing an update.
func (r *Region) Insert(p Proxy) ProxyIndex {
	i := r.Proxies.Insert(p)
	if p.Data.IsRegion() {
		r.Subregions = append(r.Subregions, i)
	} else {
		r.ProperProxyCount++
	}
	r.MarkAsDirty()
	return i
}

// Remove removes the live proxy at i. A removed subregion is dropped together
// with its proxy slot content once the slot gets reused.
func (r *Region) Remove(i ProxyIndex) {
	if r.Proxies.At(i).Data.IsRegion() {
		if pos := slices.Index(r.Subregions, i); pos >= 0 {
			r.Subregions = slices.Delete(r.Subregions, pos, pos+1)
		}
	} else {
		r.ProperProxyCount--
	}
	r.Proxies.Remove(i)
	r.MarkAsDirty()
}

// IsEmpty reports whether the region holds no live proxy.
func (r *Region) IsEmpty() bool {
	return r.ProperProxyCount == 0 && len(r.Subregions) == 0
}

func (r *Region) MarkAsDirty() {
	if r.UpdateCount == 0 {
		r.UpdateCount = 1
	}
}

func (r *Region) NeedsUpdate() bool {
	return r.UpdateCount > 0
}

// Updated records that the region has been updated.
func (r *Region) Updated() {
	r.UpdateCount = 0
}

// Depth returns the nesting depth of the region: 1 for a region without
// present subregions.
func (r *Region) Depth() int {
	depth := 0
	for _, i := range r.Subregions {
		p, ok := r.Proxies.Get(i)
		if !ok {
			continue
		}
		if sub, ok := p.Data.RegionOK(); ok {
			depth = max(depth, sub.Depth())
		}
	}
	return depth + 1
}

func (r *Region) Equal(o *Region) bool {
	return r.Bounds.Equal(o.Bounds) &&
		r.ProperProxyCount == o.ProperProxyCount &&
		r.UpdateCount == o.UpdateCount &&
		slices.Equal(r.Subregions, o.Subregions) &&
		r.Proxies.Equal(o.Proxies)
}

func (r *Region) Clone() *Region {
	c := *r
	c.Proxies = r.Proxies.Clone()
	c.Subregions = slices.Clone(r.Subregions)
	return &c
}
