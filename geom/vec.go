/*package geom contains the geometric primitives used to locate points inside
a tetrahedral finite element mesh: vectors, tetrahedra, axis-aligned boxes and
a bucket grid over the mesh's bounding box.
*/
package geom

import (
	"math"
)

// Vec is a three dimensional vector. All lengths are in cm.
type Vec [3]float64

// Add returns v + u.
func (v Vec) Add(u Vec) Vec {
	return Vec{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Sub returns v - u.
func (v Vec) Sub(u Vec) Vec {
	return Vec{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// Scale returns k * v.
func (v Vec) Scale(k float64) Vec {
	return Vec{k * v[0], k * v[1], k * v[2]}
}

// Dot returns the dot product of v and u.
func (v Vec) Dot(u Vec) float64 {
	return v[0]*u[0] + v[1]*u[1] + v[2]*u[2]
}

// Cross returns the cross product v x u.
func (v Vec) Cross(u Vec) Vec {
	return Vec{
		v[1]*u[2] - v[2]*u[1],
		v[2]*u[0] - v[0]*u[2],
		v[0]*u[1] - v[1]*u[0],
	}
}

// Norm returns the Euclidean length of v.
func (v Vec) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Unit returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec) Unit() Vec {
	n := v.Norm()
	if n == 0 { return v }
	return v.Scale(1 / n)
}

// AddSelf adds u to v in place and returns v as a convenience.
func (v *Vec) AddSelf(u Vec) *Vec {
	v[0] += u[0]
	v[1] += u[1]
	v[2] += u[2]
	return v
}

// ScaleSelf multiplies v by k in place and returns v as a convenience.
func (v *Vec) ScaleSelf(k float64) *Vec {
	v[0] *= k
	v[1] *= k
	v[2] *= k
	return v
}

// IsFinite returns true if none of the components of v are NaN or infinite.
func (v Vec) IsFinite() bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) { return false }
	}
	return true
}

// Fold maps x into the primary period [lo, lo + width). Points which differ
// by an integer number of periods fold onto the same value.
func Fold(x, lo, width float64) float64 {
	m := math.Mod(x - lo, width)
	if m < 0 { m += width }
	// math.Mod can round up to exactly width for tiny negative inputs.
	if m >= width { m = 0 }
	return lo + m
}
