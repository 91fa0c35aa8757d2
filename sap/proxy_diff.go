package sap

import (
	"github.com/aukilabs/broadphase/diff"
	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
)

// ProxyDiff is the difference between two proxies. Data and Aabb are nil when
// unchanged and replaced as a whole otherwise: regions and bounding volumes
// are never diffed structurally.
type ProxyDiff struct {
	Data       *ProxyData              `json:"data"`
	Aabb       *geometry.Aabb          `json:"aabb"`
	NextFree   diff.Scalar[ProxyIndex] `json:"next_free"`
	LayerID    diff.Scalar[uint8]      `json:"layer_id"`
	LayerDepth diff.Scalar[int8]       `json:"layer_depth"`
}

// IdentityProxy is the baseline proxy that accumulated diffs are applied to
// when a proxy is rebuilt from diffs only.
func IdentityProxy() Proxy {
	return Proxy{
		Data: NewColliderData(models.ColliderHandle{}),
		Aabb: geometry.InvalidAabb(),
	}
}

// DiffProxy returns the diff that turns old into new.
func DiffProxy(old, new Proxy) ProxyDiff {
	d := ProxyDiff{
		NextFree:   diff.DiffScalar(old.NextFree, new.NextFree),
		LayerID:    diff.DiffScalar(old.LayerID, new.LayerID),
		LayerDepth: diff.DiffScalar(old.LayerDepth, new.LayerDepth),
	}

	if !old.Data.Equal(new.Data) {
		data := new.Data.Clone()
		d.Data = &data
	}

	if !old.Aabb.Equal(new.Aabb) {
		aabb := new.Aabb
		d.Aabb = &aabb
	}

	return d
}

// IsEmpty reports whether applying the diff is a no-op.
func (d ProxyDiff) IsEmpty() bool {
	return d.Data == nil &&
		d.Aabb == nil &&
		!d.NextFree.Changed() &&
		!d.LayerID.Changed() &&
		!d.LayerDepth.Changed()
}

// Apply overwrites the fields carried by d. The proxy gets its own copy of a
// carried region so the diff can be applied more than once.
func (p *Proxy) Apply(d ProxyDiff) {
	if d.Data != nil {
		p.Data = d.Data.Clone()
	}

	if d.Aabb != nil {
		p.Aabb = *d.Aabb
	}

	d.NextFree.ApplyTo(&p.NextFree)
	d.LayerID.ApplyTo(&p.LayerID)
	d.LayerDepth.ApplyTo(&p.LayerDepth)
}
