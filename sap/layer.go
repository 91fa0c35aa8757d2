package sap

import (
	"cmp"
	"math"
	"slices"

	"github.com/aukilabs/broadphase/geometry"
)

// RegionKey identifies a cell of a layer region grid.
type RegionKey struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Layer splits space into a regular grid of cubic regions of RegionWidth and
// keeps the index of the region proxy created for each occupied cell.
//
// NOTE: the cells limits are in the range [0..1[ meaning, for a width of 1,
// the point 1 is in cell 1.
type Layer struct {
	ID          uint8
	Depth       int8
	RegionWidth float32

	regions map[RegionKey]ProxyIndex
}

func NewLayer(id uint8, depth int8, regionWidth float32) *Layer {
	if regionWidth <= 0 {
		regionWidth = 1
	}

	return &Layer{
		ID:          id,
		Depth:       depth,
		RegionWidth: regionWidth,
		regions:     make(map[RegionKey]ProxyIndex),
	}
}

func (l *Layer) cell(v float32) int32 {
	return (int32)(math.Floor((float64)(v) / (float64)(l.RegionWidth)))
}

func (l *Layer) KeyAt(p geometry.Vector3f) RegionKey {
	return RegionKey{l.cell(p.X), l.cell(p.Y), l.cell(p.Z)}
}

func (l *Layer) RegionBounds(k RegionKey) geometry.Aabb {
	mins := geometry.Mul(geometry.NewVector3f((float32)(k.X), (float32)(k.Y), (float32)(k.Z)), l.RegionWidth)
	return geometry.NewAabb(mins, geometry.Add(mins, geometry.Splat(l.RegionWidth)))
}

// KeysIntersecting returns the keys of every cell overlapped by aabb.
func (l *Layer) KeysIntersecting(aabb geometry.Aabb) []RegionKey {
	if !aabb.IsValid() {
		return nil
	}

	minKey := l.KeyAt(aabb.Mins)
	maxKey := l.KeyAt(aabb.Maxs)

	keys := make([]RegionKey, 0, (maxKey.X-minKey.X+1)*(maxKey.Y-minKey.Y+1)*(maxKey.Z-minKey.Z+1))
	for x := minKey.X; x <= maxKey.X; x++ {
		for y := minKey.Y; y <= maxKey.Y; y++ {
			for z := minKey.Z; z <= maxKey.Z; z++ {
				keys = append(keys, RegionKey{x, y, z})
			}
		}
	}
	return keys
}

// Region returns the index of the region proxy of the cell k.
func (l *Layer) Region(k RegionKey) (ProxyIndex, bool) {
	i, ok := l.regions[k]
	return i, ok
}

// EnsureRegion returns the index of the region proxy of the cell k, creating
// the region and inserting its proxy in store when the cell is not occupied
// yet.
func (l *Layer) EnsureRegion(store *Proxies, k RegionKey) ProxyIndex {
	if i, ok := l.regions[k]; ok {
		return i
	}

	bounds := l.RegionBounds(k)
	i := store.Insert(NewRegionProxy(NewRegion(bounds), bounds, l.ID, l.Depth))
	l.regions[k] = i
	return i
}

// DropRegion moves the region of the cell k out of its proxy, removes the
// proxy from store and returns the region. It returns nil when the cell is
// not occupied.
func (l *Layer) DropRegion(store *Proxies, k RegionKey) *Region {
	i, ok := l.regions[k]
	if !ok {
		return nil
	}

	r := store.At(i).Data.TakeRegion()
	store.Remove(i)
	delete(l.regions, k)
	return r
}

func (l *Layer) RegionCount() int {
	return len(l.regions)
}

// Keys returns the occupied cells, sorted.
func (l *Layer) Keys() []RegionKey {
	keys := make([]RegionKey, 0, len(l.regions))
	for k := range l.regions {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b RegionKey) int {
		return cmp.Or(
			cmp.Compare(a.X, b.X),
			cmp.Compare(a.Y, b.Y),
			cmp.Compare(a.Z, b.Z),
		)
	})
	return keys
}
