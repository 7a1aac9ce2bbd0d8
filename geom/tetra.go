package geom

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/phil-mansfield/tgem/mat"
)

// Tetra is a tetrahedron given by its four corners.
//
// NOTE: Tetra caches its volume. If Corners are modified directly, Init
// must be called again.
type Tetra struct {
	Corners [4]Vec
	volume  float64

	volumeValid bool
}

// BaryFrame converts points to the barycentric coordinates of a fixed
// tetrahedron. It is the inverse of the matrix
//
//     | 1  1  1  1  |
//     | x1 x2 x3 x4 |
//     | y1 y2 y3 y4 |
//     | z1 z2 z3 z4 |
//
// stored row-major, so that row i holds the affine coefficients of the
// i-th coordinate.
type BaryFrame struct {
	inv [16]float64
}

const (
	// Relative tolerance used by containment tests.
	eps = 1e-9
	// Tetrahedra with a volume below degenerateTol * L^3, L being the
	// longest edge from the first corner, have no barycentric frame.
	degenerateTol = 1e-12
)

// NewTetra creates a new tetrahedron with the given corners.
func NewTetra(c1, c2, c3, c4 Vec) *Tetra {
	t := &Tetra{}
	t.Init(c1, c2, c3, c4)
	return t
}

// Init sets the corners of a tetrahedron and clears its cached state.
func (t *Tetra) Init(c1, c2, c3, c4 Vec) {
	t.Corners = [4]Vec{c1, c2, c3, c4}
	t.volumeValid = false
}

// Volume computes the volume of a tetrahedron.
func (t *Tetra) Volume() float64 {
	if t.volumeValid {
		return t.volume
	}

	t.volume = math.Abs(signedVolume(
		t.Corners[0], t.Corners[1], t.Corners[2], t.Corners[3],
	))

	t.volumeValid = true
	return t.volume
}

func signedVolume(c1, c2, c3, c4 Vec) float64 {
	return c2.Sub(c1).Dot(c3.Sub(c1).Cross(c4.Sub(c1))) / 6.0
}

// Contains returns true if a tetrahedron contains the given point and false
// otherwise. Points on faces are contained.
func (t *Tetra) Contains(v Vec) bool {
	vol := t.Volume()
	c := &t.Corners

	// The four sub-tetrahedra formed with v have the same orientation as
	// the faces of t and fill it exactly if and only if v is inside.
	subs := [4]float64{
		signedVolume(v, c[1], c[2], c[3]),
		signedVolume(c[0], v, c[2], c[3]),
		signedVolume(c[0], c[1], v, c[3]),
		signedVolume(c[0], c[1], c[2], v),
	}

	sum := 0.0
	for _, s := range subs {
		sum += math.Abs(s)
	}
	return sum <= vol * (1 + eps)
}

// Barycenter computes the barycenter of a tetrahedron.
func (t *Tetra) Barycenter() Vec {
	b := t.Corners[0].Add(t.Corners[1]).Add(t.Corners[2]).Add(t.Corners[3])
	return b.Scale(0.25)
}

// Bounds returns the bounding box of a tetrahedron.
func (t *Tetra) Bounds() Box {
	b := Box{t.Corners[0], t.Corners[0]}
	for i := 1; i < 4; i++ {
		b.Expand(t.Corners[i])
	}
	return b
}

// Sample fills vecBuf with points generated uniformly at random from within
// a tetrahedron.
func (t *Tetra) Sample(gen *rand.Rand, vecBuf []Vec) {
	for i := range vecBuf {
		s, u, w := gen.Float64(), gen.Float64(), gen.Float64()

		// Fold the unit cube onto the unit simplex.
		if s + u > 1 {
			s, u = 1 - s, 1 - u
		}
		if u + w > 1 {
			u, w = 1 - w, 1 - s - u
		} else if s + u + w > 1 {
			s, w = 1 - u - w, s + u + w - 1
		}
		a := 1 - s - u - w

		c := &t.Corners
		vecBuf[i] = c[0].Scale(a).Add(c[1].Scale(s)).
			Add(c[2].Scale(u)).Add(c[3].Scale(w))
	}
}

// BaryFrame computes the barycentric frame of a tetrahedron. An error is
// returned if the tetrahedron is degenerate.
func (t *Tetra) BaryFrame() (*BaryFrame, error) {
	L := 0.0
	for i := 1; i < 4; i++ {
		L = math.Max(L, t.Corners[i].Sub(t.Corners[0]).Norm())
	}
	if t.Volume() <= degenerateTol * L*L*L {
		return nil, fmt.Errorf("degenerate tetrahedron %v: %w",
			t.Corners, mat.ErrSingular)
	}

	vals := make([]float64, 16)
	for j := 0; j < 4; j++ {
		vals[j] = 1
		for d := 0; d < 3; d++ {
			vals[(d+1)*4+j] = t.Corners[j][d]
		}
	}

	luf, err := mat.NewMatrix(vals, 4, 4).LU()
	if err != nil {
		return nil, fmt.Errorf("degenerate tetrahedron %v: %w", t.Corners, err)
	}

	f := &BaryFrame{}
	luf.Invert(mat.NewMatrix(f.inv[:], 4, 4))
	return f, nil
}

// Coords returns the four barycentric coordinates of v. They sum to one and
// are all non-negative if and only if v is inside the tetrahedron.
func (f *BaryFrame) Coords(v Vec) [4]float64 {
	var l [4]float64
	for i := 0; i < 4; i++ {
		row := f.inv[i*4 : i*4+4]
		l[i] = row[0] + row[1]*v[0] + row[2]*v[1] + row[3]*v[2]
	}
	return l
}

// Gradient returns the spatial gradient of the i-th barycentric coordinate.
// It is constant over the tetrahedron.
func (f *BaryFrame) Gradient(i int) Vec {
	return Vec{f.inv[i*4+1], f.inv[i*4+2], f.inv[i*4+3]}
}

// Inside returns true if the barycentric coordinates l describe a point
// inside the tetrahedron, allowing for a tolerance of tol.
func Inside(l [4]float64, tol float64) bool {
	for _, li := range l {
		if li < -tol { return false }
	}
	return true
}
