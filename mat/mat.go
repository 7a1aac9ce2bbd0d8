/*package mat implements the small dense linear algebra needed to build the
shape functions of mesh elements: LU factorisation with partial pivoting,
linear solves, inversion and determinants.
*/
package mat

import (
	"errors"
	"math"
)

// ErrSingular is returned when a matrix cannot be factorised.
var ErrSingular = errors.New("mat: singular matrix")

// Matrix is a dense row-major matrix.
type Matrix struct {
	Vals          []float64
	Width, Height int
}

// LUFactors holds the LU decomposition of a square matrix with its row
// permutation.
type LUFactors struct {
	lu    Matrix
	pivot []int
	d     float64
}

// NewMatrix wraps vals as a width x height matrix. vals is not copied.
func NewMatrix(vals []float64, width, height int) *Matrix {
	if width <= 0 {
		panic("width must be positive.")
	} else if height <= 0 {
		panic("height must be positive.")
	} else if width * height != len(vals) {
		panic("height * width must equal len(vals).")
	}

	return &Matrix{Vals: vals, Width: width, Height: height}
}

// At returns the element at row i and column j.
func (m *Matrix) At(i, j int) float64 { return m.Vals[i*m.Width+j] }

// NewLUFactors allocates the buffers for the factorisation of an n x n
// matrix.
func NewLUFactors(n int) *LUFactors {
	luf := new(LUFactors)

	luf.lu.Vals, luf.lu.Width, luf.lu.Height = make([]float64, n*n), n, n
	luf.pivot = make([]int, n)
	luf.d = 1

	return luf
}

// LU factorises m.
func (m *Matrix) LU() (*LUFactors, error) {
	if m.Width != m.Height { panic("m is non-square.") }

	luf := NewLUFactors(m.Width)
	if err := m.LUFactorsAt(luf); err != nil { return nil, err }
	return luf, nil
}

// LUFactorsAt factorises m into the buffers of luf. Rows are scaled
// implicitly when choosing pivots.
func (m *Matrix) LUFactorsAt(luf *LUFactors) error {
	if luf.lu.Width != m.Width || luf.lu.Height != m.Height {
		panic("luf has different dimensions than m.")
	}

	n := m.Width
	scale := make([]float64, n)
	lu := luf.lu.Vals
	luf.d = 1
	copy(lu, m.Vals)

	for i := 0; i < n; i++ {
		max := 0.0
		for j := 0; j < n; j++ {
			if tmp := math.Abs(lu[i*n+j]); tmp > max { max = tmp }
		}
		if max == 0 { return ErrSingular }
		scale[i] = 1 / max
	}

	for k := 0; k < n; k++ {
		max, maxi := -1.0, k
		for i := k; i < n; i++ {
			if tmp := scale[i] * math.Abs(lu[i*n+k]); tmp > max {
				max, maxi = tmp, i
			}
		}

		if k != maxi {
			for j := 0; j < n; j++ {
				lu[k*n+j], lu[maxi*n+j] = lu[maxi*n+j], lu[k*n+j]
			}
			luf.d = -luf.d
			scale[k], scale[maxi] = scale[maxi], scale[k]
		}
		luf.pivot[k] = maxi

		if lu[k*n+k] == 0 { return ErrSingular }

		for i := k + 1; i < n; i++ {
			lu[i*n+k] /= lu[k*n+k]
			tmp := lu[i*n+k]
			for j := k + 1; j < n; j++ {
				lu[i*n+j] -= tmp * lu[k*n+j]
			}
		}
	}

	return nil
}

// SolveVector solves M * xs = bs for xs.
//
// bs and xs may point to the same physical memory.
func (luf *LUFactors) SolveVector(bs, xs []float64) {
	n := luf.lu.Width
	if n != len(bs) {
		panic("len(b) != luf.Width")
	} else if n != len(xs) {
		panic("len(x) != luf.Width")
	}

	copy(xs, bs)
	for k := 0; k < n; k++ {
		p := luf.pivot[k]
		xs[k], xs[p] = xs[p], xs[k]
	}

	lu := luf.lu.Vals
	forwardSubst(n, lu, xs)
	backSubst(n, lu, xs)
}

// Solves L * y = b in place, L having a unit diagonal.
func forwardSubst(n int, lu, ys []float64) {
	for i := 1; i < n; i++ {
		sum := ys[i]
		for j := 0; j < i; j++ {
			sum -= lu[i*n+j] * ys[j]
		}
		ys[i] = sum
	}
}

// Solves U * x = y in place.
func backSubst(n int, lu, xs []float64) {
	for i := n - 1; i >= 0; i-- {
		sum := xs[i]
		for j := i + 1; j < n; j++ {
			sum -= lu[i*n+j] * xs[j]
		}
		xs[i] = sum / lu[i*n+i]
	}
}

// Invert writes the inverse of the factorised matrix to out.
func (luf *LUFactors) Invert(out *Matrix) {
	n := luf.lu.Width
	if out.Width != out.Height {
		panic("out matrix is non-square.")
	} else if n != out.Width {
		panic("out matrix different size than m matrix.")
	}

	col := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := range col { col[i] = 0 }
		col[j] = 1
		luf.SolveVector(col, col)
		for i := 0; i < n; i++ {
			out.Vals[i*n+j] = col[i]
		}
	}
}

// Determinant returns the determinant of the factorised matrix.
func (luf *LUFactors) Determinant() float64 {
	d := luf.d
	lu := luf.lu.Vals
	n := luf.lu.Width

	for i := 0; i < n; i++ {
		d *= lu[i*n+i]
	}
	return d
}
