package sap

import (
	"math"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
)

// ProxyIndex is a stable handle to a slot of a Proxies store.
type ProxyIndex uint32

// NextFreeSentinel marks the end of the free list. A live proxy has its
// NextFree set to it.
const NextFreeSentinel ProxyIndex = math.MaxUint32

// Proxy is the broad phase record of a collider bounding volume or of a
// nested region.
type Proxy struct {
	Data     ProxyData     `json:"data"`
	Aabb     geometry.Aabb `json:"aabb"`
	NextFree ProxyIndex    `json:"next_free"`
	// TODO: pack LayerID and LayerDepth into a single uint16.
	LayerID    uint8 `json:"layer_id"`
	LayerDepth int8  `json:"layer_depth"`
}

func NewColliderProxy(h models.ColliderHandle, aabb geometry.Aabb, layerID uint8, layerDepth int8) Proxy {
	return Proxy{
		Data:       NewColliderData(h),
		Aabb:       aabb,
		NextFree:   NextFreeSentinel,
		LayerID:    layerID,
		LayerDepth: layerDepth,
	}
}

func NewRegionProxy(r *Region, aabb geometry.Aabb, layerID uint8, layerDepth int8) Proxy {
	return Proxy{
		Data:       NewRegionData(r),
		Aabb:       aabb,
		NextFree:   NextFreeSentinel,
		LayerID:    layerID,
		LayerDepth: layerDepth,
	}
}

func (p Proxy) Equal(o Proxy) bool {
	return p.NextFree == o.NextFree &&
		p.LayerID == o.LayerID &&
		p.LayerDepth == o.LayerDepth &&
		p.Aabb.Equal(o.Aabb) &&
		p.Data.Equal(o.Data)
}

func (p Proxy) Clone() Proxy {
	p.Data = p.Data.Clone()
	return p
}
