package control

import (
	"fmt"
	"math"
)

// Quantity is a value the controller can smooth.
type Quantity[T any] interface {
	Add(T) T
	Sub(T) T
	Scale(float64) T
}

// Scalar is a one-dimensional quantity.
type Scalar float64

// Add returns s+o.
func (s Scalar) Add(o Scalar) Scalar { return s + o }

// Sub returns s-o.
func (s Scalar) Sub(o Scalar) Scalar { return s - o }

// Scale returns s*k.
func (s Scalar) Scale(k float64) Scalar { return Scalar(float64(s) * k) }

// Abs returns |s|.
func (s Scalar) Abs() float64 { return math.Abs(float64(s)) }

// Vec3 is a three-component vector. Attitude errors use X for heading,
// Y for pitch and Z for roll.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*k.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// Angle returns the angle in degrees between v and o, or 0 if either is zero.
func (v Vec3) Angle(o Vec3) float64 {
	l := v.Len() * o.Len()
	if l == 0 {
		return 0
	}
	c := v.Dot(o) / l
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// String implements fmt.Stringer.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}
