package sap

import (
	"github.com/aukilabs/broadphase/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
)

type ProxyDataKind uint8

const (
	ColliderData ProxyDataKind = iota
	RegionData
)

func (k ProxyDataKind) String() string {
	switch k {
	case ColliderData:
		return "collider"
	case RegionData:
		return "region"
	default:
		return "unknown"
	}
}

// ProxyData is what a proxy stands for: either a leaf collider or a nested
// region. A region proxy exclusively owns its region; the region may be
// absent while it is moved out during restructuring.
//
// The zero value is a collider proxy with the null handle.
type ProxyData struct {
	kind     ProxyDataKind
	collider models.ColliderHandle
	region   *Region
}

func NewColliderData(h models.ColliderHandle) ProxyData {
	return ProxyData{kind: ColliderData, collider: h}
}

// NewRegionData returns region data owning r. A nil r builds an empty region.
func NewRegionData(r *Region) ProxyData {
	return ProxyData{kind: RegionData, region: r}
}

func (d ProxyData) Kind() ProxyDataKind {
	return d.kind
}

func (d ProxyData) IsRegion() bool {
	return d.kind == RegionData
}

// Collider returns the collider handle of a collider proxy.
func (d ProxyData) Collider() (models.ColliderHandle, bool) {
	if d.kind != ColliderData {
		return models.ColliderHandle{}, false
	}
	return d.collider, true
}

// RegionOK returns the owned region when the data is a region that is
// currently present.
func (d ProxyData) RegionOK() (*Region, bool) {
	if d.kind != RegionData || d.region == nil {
		return nil, false
	}
	return d.region, true
}

// AsRegion returns the owned region. It panics when called on a collider or
// on a region that has been taken: callers must check IsRegion first.
func (d ProxyData) AsRegion() *Region {
	if d.kind != RegionData {
		panic(errors.New("invalid proxy type").
			WithType(ErrTypeInvalidProxyType).
			WithTag("kind", d.kind.String()))
	}
	if d.region == nil {
		panic(errors.New("region has been taken").
			WithType(ErrTypeRegionTaken))
	}
	return d.region
}

// TakeRegion moves the region out, leaving an empty region behind. It returns
// nil for collider data or an already empty region.
func (d *ProxyData) TakeRegion() *Region {
	if d.kind != RegionData {
		return nil
	}
	r := d.region
	d.region = nil
	return r
}

// SetRegion makes the data own r. This converts collider data into region
// data too, dropping the collider handle: callers restructuring a hierarchy
// must only use it on proxies they know to be regions.
func (d *ProxyData) SetRegion(r *Region) {
	*d = NewRegionData(r)
}

func (d ProxyData) Equal(o ProxyData) bool {
	if d.kind != o.kind {
		return false
	}

	switch d.kind {
	case ColliderData:
		return d.collider == o.collider
	default:
		if d.region == nil || o.region == nil {
			return d.region == o.region
		}
		return d.region.Equal(o.region)
	}
}

// Clone returns a deep copy. The copy owns its own region.
func (d ProxyData) Clone() ProxyData {
	if d.region != nil {
		d.region = d.region.Clone()
	}
	return d
}

type proxyDataJSON struct {
	Kind     string                 `json:"kind"`
	Collider *models.ColliderHandle `json:"collider,omitempty"`
	Region   *Region                `json:"region"`
}

// MarshalJSON writes {"kind":"collider","collider":{...}} or
// {"kind":"region","region":{...}}, with a null region when it has been taken.
func (d ProxyData) MarshalJSON() ([]byte, error) {
	v := proxyDataJSON{Kind: d.kind.String()}
	if d.kind == ColliderData {
		h := d.collider
		v.Collider = &h
	} else {
		v.Region = d.region
	}
	return json.Marshal(v)
}

func (d *ProxyData) UnmarshalJSON(b []byte) error {
	var v proxyDataJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch v.Kind {
	case ColliderData.String():
		if v.Collider == nil {
			return errors.New("collider proxy data without a collider").
				WithType(ErrTypeInvalidProxyType)
		}
		*d = NewColliderData(*v.Collider)

	case RegionData.String():
		*d = NewRegionData(v.Region)

	default:
		return errors.New("unknown proxy data kind").
			WithType(ErrTypeInvalidProxyType).
			WithTag("kind", v.Kind)
	}
	return nil
}
