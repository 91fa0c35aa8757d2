// Package diff implements the differencing convention shared by replicated
// primitive fields.
//
// A changed field is represented by its literal new value, never by an
// arithmetic delta, so every participant of a replication stream can apply a
// diff without knowing the value it was computed from. An unchanged field is
// represented by the neutral value returned by Identity, which carries no
// value and is a no-op when applied.
package diff

import (
	"github.com/segmentio/encoding/json"
)

// Number is the set of primitive types following the convention.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// Scalar is the diff representation of a primitive field.
type Scalar[T Number] struct {
	value   T
	changed bool
}

// Identity returns the neutral diff.
func Identity[T Number]() Scalar[T] {
	return Scalar[T]{}
}

// Set returns a diff overwriting the target with v.
func Set[T Number](v T) Scalar[T] {
	return Scalar[T]{value: v, changed: true}
}

// DiffScalar returns the literal new value when it differs from old, and the
// neutral diff otherwise.
func DiffScalar[T Number](old, new T) Scalar[T] {
	if old == new {
		return Identity[T]()
	}
	return Set(new)
}

func (s Scalar[T]) Changed() bool {
	return s.changed
}

// Value returns the carried value. It is the zero value for the neutral diff.
func (s Scalar[T]) Value() T {
	return s.value
}

// ApplyTo overwrites target when the diff carries a value.
func (s Scalar[T]) ApplyTo(target *T) {
	if s.changed {
		*target = s.value
	}
}

// MarshalJSON writes the literal value, or null for the neutral diff.
func (s Scalar[T]) MarshalJSON() ([]byte, error) {
	if !s.changed {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

func (s *Scalar[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Identity[T]()
		return nil
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Set(v)
	return nil
}
