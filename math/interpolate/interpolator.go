/*package interpolate contains 1D interpolators over tabulated data. They are
used for energy-dependent collision tables and for field-dependent ion
mobility curves.
*/
package interpolate

import (
	"fmt"
)

type Interpolator interface {
	Eval(x float64) float64
	// Bounds returns the smallest and largest x value which can be passed to
	// Eval.
	Bounds() (lo, hi float64)
}

var (
	_ Interpolator = &Spline{}
	_ Interpolator = &Linear{}
)

// Clamp evaluates intr at x after moving x into the interpolator's range.
func Clamp(intr Interpolator, x float64) float64 {
	lo, hi := intr.Bounds()
	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}
	return intr.Eval(x)
}

// searcher finds the table interval containing a point in a strictly
// monotonic table.
type searcher struct {
	xs   []float64
	incr bool
	n    int
}

func (s *searcher) init(xs []float64) {
	if len(xs) < 2 {
		panic(fmt.Sprintf("Table of length %d cannot be interpolated.", len(xs)))
	}

	s.xs, s.n = xs, len(xs)
	s.incr = xs[1] > xs[0]
	for i := 0; i < len(xs) - 1; i++ {
		if (xs[i+1] > xs[i]) != s.incr || xs[i+1] == xs[i] {
			panic("Table x values are not strictly monotonic.")
		}
	}
}

func (s *searcher) val(i int) float64 { return s.xs[i] }

func (s *searcher) bounds() (lo, hi float64) {
	lo, hi = s.val(0), s.val(s.n - 1)
	if lo > hi { lo, hi = hi, lo }
	return lo, hi
}

// search returns the index i such that x lies between val(i) and
// val(i + 1). It panics if x is outside the table.
func (s *searcher) search(x float64) int {
	if lo, hi := s.bounds(); x < lo || x > hi || x != x {
		panic(fmt.Sprintf("Point %g out of interpolation bounds [%g, %g].",
			x, lo, hi))
	}

	lo, hi := 0, s.n - 1
	for hi - lo > 1 {
		mid := (lo + hi) / 2
		if s.incr == (x >= s.xs[mid]) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
