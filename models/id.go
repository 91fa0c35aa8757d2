package models

import (
	"fmt"
	"sync"
)

// ColliderHandle identifies a collider owned outside the broad phase.
//
// The zero value is the null handle: generations start at 1 so a handle with
// generation 0 never refers to a collider.
type ColliderHandle struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

func (h ColliderHandle) IsValid() bool {
	return h.Generation != 0
}

func (h ColliderHandle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// A generational collider handle generator.
type ColliderHandleGenerator struct {
	mutex       sync.Mutex
	generations []uint32
	reusable    []uint32
}

// New returns a collider handle. Reused indexes come back with a bumped
// generation so stale handles never compare equal to live ones.
func (g *ColliderHandleGenerator) New() ColliderHandle {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusable); n > 0 {
		index := g.reusable[n-1]
		g.reusable = g.reusable[:n-1]
		instrumentNewHandle(true, g.live())
		return ColliderHandle{Index: index, Generation: g.generations[index]}
	}

	g.generations = append(g.generations, 1)
	instrumentNewHandle(false, g.live())
	return ColliderHandle{
		Index:      uint32(len(g.generations) - 1),
		Generation: 1,
	}
}

// Reuse marks the handle index as reusable. Reusable indexes are returned in
// priority, last released first, when using New. Releasing a stale handle is a
// no-op.
func (g *ColliderHandleGenerator) Reuse(h ColliderHandle) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if int(h.Index) >= len(g.generations) || g.generations[h.Index] != h.Generation {
		return
	}

	g.generations[h.Index]++
	g.reusable = append(g.reusable, h.Index)
	instrumentReuseHandle(g.live())
}

// Live returns the number of handles currently handed out.
func (g *ColliderHandleGenerator) Live() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.live()
}

func (g *ColliderHandleGenerator) live() int {
	return len(g.generations) - len(g.reusable)
}
