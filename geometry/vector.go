package geometry

import (
	"math"
)

func EqualWithEpsilon(a float32, b float32, epsilon float64) bool {
	return math.Abs((float64)(a-b)) <= epsilon
}

type Vector3f struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func NewVector3f(x, y, z float32) Vector3f {
	return Vector3f{x, y, z}
}

// Splat returns a vector with all components set to v.
func Splat(v float32) Vector3f {
	return Vector3f{v, v, v}
}

func (v1 Vector3f) EqualWithEpsilon(v2 Vector3f, epsilon float64) bool {
	return math.Abs((float64)(v1.X-v2.X)) <= epsilon &&
		math.Abs((float64)(v1.Y-v2.Y)) <= epsilon &&
		math.Abs((float64)(v1.Z-v2.Z)) <= epsilon
}

func (v1 Vector3f) LesserOrEqualThan(v2 Vector3f) bool {
	return v1.X <= v2.X && v1.Y <= v2.Y && v1.Z <= v2.Z
}

func (v1 Vector3f) LesserThan(v2 Vector3f) bool {
	return v1.X < v2.X && v1.Y < v2.Y && v1.Z < v2.Z
}

func (v1 *Vector3f) Add(v2 Vector3f) {
	v1.X += v2.X
	v1.Y += v2.Y
	v1.Z += v2.Z
}

func Add(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func Sub(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func Mul(a Vector3f, s float32) Vector3f {
	return Vector3f{a.X * s, a.Y * s, a.Z * s}
}

func Min(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{
		(float32)(math.Min((float64)(a.X), (float64)(b.X))),
		(float32)(math.Min((float64)(a.Y), (float64)(b.Y))),
		(float32)(math.Min((float64)(a.Z), (float64)(b.Z))),
	}
}

func Max(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{
		(float32)(math.Max((float64)(a.X), (float64)(b.X))),
		(float32)(math.Max((float64)(a.Y), (float64)(b.Y))),
		(float32)(math.Max((float64)(a.Z), (float64)(b.Z))),
	}
}

func (a Vector3f) Length() float64 {
	return math.Sqrt((float64)(a.X*a.X + a.Y*a.Y + a.Z*a.Z))
}
