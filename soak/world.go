// Package soak drives a proxy store the way a broad phase does: colliders
// move, appear and disappear every frame, and live in the nested store of
// every region their box overlaps.
package soak

import (
	"math/rand"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
	"github.com/aukilabs/broadphase/sap"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeFreeListCorrupted = "soak_free_list_corrupted"
)

type Options struct {
	// The number of colliders the world keeps.
	ColliderCount int

	// The edge length of the cube colliders move in, centered on the origin.
	WorldSize float32

	// The edge length of the layer regions.
	RegionWidth float32

	// The maximum distance a collider moves on each axis per frame.
	Speed float32

	// The probability for a collider to be replaced by a new one each frame.
	ChurnRate float64

	Seed int64
}

// Stats describes what happened during a frame.
type Stats struct {
	Frame     uint64 `json:"frame"`
	Colliders int    `json:"colliders"`
	Regions   int    `json:"regions"`
	Inserted  int    `json:"inserted"`
	Removed   int    `json:"removed"`
	Migrated  int    `json:"migrated"`
	Dirty     int    `json:"dirty_regions"`
}

type collider struct {
	handle   models.ColliderHandle
	aabb     geometry.Aabb
	velocity geometry.Vector3f

	// The index of the collider proxy in the store of each region it
	// overlaps.
	regions map[sap.RegionKey]sap.ProxyIndex
}

// World is a set of colliders sorted into the regions of a layer. It is not
// safe for concurrent use.
type World struct {
	opts      Options
	rnd       *rand.Rand
	handles   models.ColliderHandleGenerator
	layer     *sap.Layer
	root      sap.Proxies
	colliders []*collider
	frame     uint64
}

func NewWorld(opts Options) *World {
	if opts.ColliderCount < 0 {
		opts.ColliderCount = 0
	}
	if opts.WorldSize <= 0 {
		opts.WorldSize = 100
	}
	if opts.RegionWidth <= 0 {
		opts.RegionWidth = 10
	}
	if opts.Speed <= 0 {
		opts.Speed = 0.5
	}

	w := &World{
		opts:  opts,
		rnd:   rand.New(rand.NewSource(opts.Seed)),
		layer: sap.NewLayer(0, 0, opts.RegionWidth),
		root:  sap.NewProxies(),
	}

	for len(w.colliders) < opts.ColliderCount {
		w.spawn()
	}
	w.resetRegions()
	return w
}

// Root returns the store holding the region proxies.
func (w *World) Root() *sap.Proxies {
	return &w.root
}

func (w *World) Layer() *sap.Layer {
	return w.layer
}

// Handles returns the handles of the live colliders.
func (w *World) Handles() []models.ColliderHandle {
	handles := make([]models.ColliderHandle, len(w.colliders))
	for i, c := range w.colliders {
		handles[i] = c.handle
	}
	return handles
}

// Step advances the world by one frame.
func (w *World) Step() Stats {
	w.frame++
	w.resetRegions()

	stats := Stats{Frame: w.frame}

	for i := 0; i < len(w.colliders); {
		if w.rnd.Float64() < w.opts.ChurnRate {
			w.despawn(i)
			stats.Removed++
			continue
		}

		if w.move(w.colliders[i]) {
			stats.Migrated++
		}
		i++
	}

	for len(w.colliders) < w.opts.ColliderCount {
		w.spawn()
		stats.Inserted++
	}

	stats.Colliders = len(w.colliders)
	stats.Regions = w.layer.RegionCount()
	for _, k := range w.layer.Keys() {
		if w.region(k).NeedsUpdate() {
			stats.Dirty++
		}
	}
	return stats
}

// CheckFreeList verifies the free lists of the root store and of every region
// store.
func (w *World) CheckFreeList() error {
	if err := w.root.CheckFreeList(); err != nil {
		return errors.New("root store free list is corrupted").
			WithType(ErrTypeFreeListCorrupted).
			Wrap(err)
	}

	for _, k := range w.layer.Keys() {
		if err := w.region(k).Proxies.CheckFreeList(); err != nil {
			return errors.New("region store free list is corrupted").
				WithType(ErrTypeFreeListCorrupted).
				WithTag("region", k).
				Wrap(err)
		}
	}
	return nil
}

func (w *World) region(k sap.RegionKey) *sap.Region {
	i, _ := w.layer.Region(k)
	return w.root.At(i).Data.AsRegion()
}

func (w *World) resetRegions() {
	for _, k := range w.layer.Keys() {
		w.region(k).Updated()
	}
}

func (w *World) randomPoint() geometry.Vector3f {
	half := w.opts.WorldSize / 2
	coord := func() float32 {
		return w.rnd.Float32()*w.opts.WorldSize - half
	}
	return geometry.NewVector3f(coord(), coord(), coord())
}

func (w *World) randomVelocity() geometry.Vector3f {
	coord := func() float32 {
		return (w.rnd.Float32()*2 - 1) * w.opts.Speed
	}
	return geometry.NewVector3f(coord(), coord(), coord())
}

func (w *World) spawn() {
	halfExtents := geometry.Splat(0.1 + w.rnd.Float32()*w.opts.RegionWidth/4)

	c := &collider{
		handle:   w.handles.New(),
		aabb:     geometry.NewAabbFromHalfExtents(w.randomPoint(), halfExtents),
		velocity: w.randomVelocity(),
	}
	w.attach(c)
	w.colliders = append(w.colliders, c)
}

func (w *World) despawn(i int) {
	c := w.colliders[i]
	w.detach(c)
	w.handles.Reuse(c.handle)

	last := len(w.colliders) - 1
	w.colliders[i] = w.colliders[last]
	w.colliders[last] = nil
	w.colliders = w.colliders[:last]
}

// move moves c and reports whether it changed region.
func (w *World) move(c *collider) bool {
	half := w.opts.WorldSize / 2
	center := geometry.Add(c.aabb.Center(), c.velocity)

	bounce := func(pos, vel *float32) {
		if *pos < -half || *pos > half {
			*vel = -*vel
			*pos = min(max(*pos, -half), half)
		}
	}
	bounce(&center.X, &c.velocity.X)
	bounce(&center.Y, &c.velocity.Y)
	bounce(&center.Z, &c.velocity.Z)

	c.aabb = geometry.NewAabbFromHalfExtents(center, c.aabb.HalfExtents())

	if !c.overlapsOnly(w.layer.KeysIntersecting(c.aabb)) {
		w.detach(c)
		w.attach(c)
		return true
	}

	for k, i := range c.regions {
		r := w.region(k)
		r.Proxies.At(i).Aabb = c.aabb
		r.MarkAsDirty()
	}
	return false
}

// overlapsOnly reports whether keys are exactly the regions c is in.
func (c *collider) overlapsOnly(keys []sap.RegionKey) bool {
	if len(keys) != len(c.regions) {
		return false
	}
	for _, k := range keys {
		if _, ok := c.regions[k]; !ok {
			return false
		}
	}
	return true
}

func (w *World) attach(c *collider) {
	keys := w.layer.KeysIntersecting(c.aabb)
	c.regions = make(map[sap.RegionKey]sap.ProxyIndex, len(keys))

	for _, k := range keys {
		i := w.layer.EnsureRegion(&w.root, k)
		regionProxy := w.root.At(i)
		c.regions[k] = regionProxy.Data.AsRegion().Insert(sap.NewColliderProxy(c.handle, c.aabb, w.layer.ID, w.layer.Depth+1))
		regionProxy.Aabb = regionProxy.Aabb.Merged(c.aabb)
	}
}

func (w *World) detach(c *collider) {
	for k, i := range c.regions {
		r := w.region(k)
		r.Remove(i)

		if r.IsEmpty() {
			w.layer.DropRegion(&w.root, k)
		}
	}
	c.regions = nil
}
