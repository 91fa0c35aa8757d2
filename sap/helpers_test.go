package sap

import (
	"math/rand"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
)

func testAabb(x float32) geometry.Aabb {
	return geometry.NewAabbFromHalfExtents(geometry.NewVector3f(x, 0, 0), geometry.Splat(0.5))
}

func testCollider(index uint32) Proxy {
	return NewColliderProxy(models.ColliderHandle{Index: index, Generation: 1}, testAabb(float32(index)), 1, 0)
}

func testRegion(colliders ...uint32) *Region {
	r := NewRegion(geometry.NewAabb(geometry.Splat(-10), geometry.Splat(10)))
	for _, c := range colliders {
		r.Insert(testCollider(c))
	}
	return r
}

// randomProxies builds a store from a random sequence of inserts and removes.
// It returns the store and the indexes that are still live.
func randomProxies(rnd *rand.Rand, ops int) (Proxies, []ProxyIndex) {
	s := NewProxies()
	var live []ProxyIndex

	for i := 0; i < ops; i++ {
		if len(live) > 0 && rnd.Intn(3) == 0 {
			pos := rnd.Intn(len(live))
			s.Remove(live[pos])
			live = append(live[:pos], live[pos+1:]...)
			continue
		}

		var p Proxy
		switch rnd.Intn(4) {
		case 0:
			p = NewRegionProxy(testRegion(uint32(rnd.Intn(100)), uint32(rnd.Intn(100))), testAabb(rnd.Float32()), uint8(rnd.Intn(4)), int8(rnd.Intn(5)-2))
		default:
			p = NewColliderProxy(models.ColliderHandle{Index: uint32(rnd.Intn(1000)), Generation: 1}, testAabb(rnd.Float32()*100), uint8(rnd.Intn(4)), int8(rnd.Intn(5)-2))
		}
		live = append(live, s.Insert(p))
	}
	return s, live
}
