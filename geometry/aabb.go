package geometry

import (
	"bytes"
	"math"

	"github.com/segmentio/encoding/json"
)

// Aabb is an axis aligned bounding box.
//
// The invalid box has Mins at +Inf and Maxs at -Inf so that merging any point
// into it yields that point. It is only used as a baseline value.
type Aabb struct {
	Mins Vector3f `json:"mins"`
	Maxs Vector3f `json:"maxs"`
}

func NewAabb(mins, maxs Vector3f) Aabb {
	return Aabb{Mins: mins, Maxs: maxs}
}

// NewAabbFromHalfExtents builds a box from its center and half-extents.
func NewAabbFromHalfExtents(center, halfExtents Vector3f) Aabb {
	return Aabb{
		Mins: Sub(center, halfExtents),
		Maxs: Add(center, halfExtents),
	}
}

func InvalidAabb() Aabb {
	inf := (float32)(math.Inf(1))
	return Aabb{
		Mins: Splat(inf),
		Maxs: Splat(-inf),
	}
}

// IsValid reports whether the box is non-empty on every axis.
func (a Aabb) IsValid() bool {
	return a.Mins.LesserOrEqualThan(a.Maxs)
}

// Equal is structural equality. Two invalid boxes are equal.
func (a Aabb) Equal(b Aabb) bool {
	return a == b
}

func (a Aabb) Center() Vector3f {
	return Mul(Add(a.Mins, a.Maxs), 0.5)
}

func (a Aabb) HalfExtents() Vector3f {
	return Mul(Sub(a.Maxs, a.Mins), 0.5)
}

func (a Aabb) Intersects(b Aabb) bool {
	return a.Mins.LesserOrEqualThan(b.Maxs) && b.Mins.LesserOrEqualThan(a.Maxs)
}

func (a Aabb) Contains(b Aabb) bool {
	return a.Mins.LesserOrEqualThan(b.Mins) && b.Maxs.LesserOrEqualThan(a.Maxs)
}

func (a Aabb) Merged(b Aabb) Aabb {
	return Aabb{
		Mins: Min(a.Mins, b.Mins),
		Maxs: Max(a.Maxs, b.Maxs),
	}
}

// Translated returns the box moved by v.
func (a Aabb) Translated(v Vector3f) Aabb {
	return Aabb{
		Mins: Add(a.Mins, v),
		Maxs: Add(a.Maxs, v),
	}
}

var invalidAabbJSON = []byte(`"invalid"`)

// MarshalJSON writes the invalid box as the string "invalid" since JSON has no
// representation for infinities.
func (a Aabb) MarshalJSON() ([]byte, error) {
	if a == InvalidAabb() {
		return invalidAabbJSON, nil
	}

	type plain Aabb
	return json.Marshal(plain(a))
}

func (a *Aabb) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), invalidAabbJSON) {
		*a = InvalidAabb()
		return nil
	}

	type plain Aabb
	return json.Unmarshal(b, (*plain)(a))
}
