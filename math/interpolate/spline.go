package interpolate

import (
	"fmt"
)

type splineCoeff struct {
	a, b, c, d float64
}

// Spline represents a 1D natural cubic spline which can be used to
// interpolate between points.
type Spline struct {
	xs      searcher
	ys, y2s []float64
	coeffs  []splineCoeff
}

// NewSpline creates a spline based off a table of x and y values. The values
// must be sorted in increasing or decreasing order in x.
//
// The table is copied.
func NewSpline(xs, ys []float64) *Spline {
	if len(xs) != len(ys) {
		panic(fmt.Sprintf(
			"Table given to NewSpline() has len(xs) = %d but len(ys) = %d.",
			len(xs), len(ys),
		))
	}

	sp := new(Spline)
	sp.xs.init(append([]float64{}, xs...))
	sp.ys = append([]float64{}, ys...)
	sp.y2s = make([]float64, len(xs))
	sp.coeffs = make([]splineCoeff, len(xs)-1)

	sp.calcY2s()
	sp.calcCoeffs()
	return sp
}

// Eval computes the value of the spline at the given point.
//
// x must be within the range of x values given to NewSpline().
func (sp *Spline) Eval(x float64) float64 {
	return sp.Diff(x, 0)
}

func (sp *Spline) Bounds() (lo, hi float64) { return sp.xs.bounds() }

// Diff computes the derivative of spline at the given point to the
// specified order.
//
// x must be within the range of x values given to NewSpline().
func (sp *Spline) Diff(x float64, order int) float64 {
	i := sp.xs.search(x)
	dx := x - sp.xs.val(i)
	a, b, c, d := sp.coeffs[i].a, sp.coeffs[i].b, sp.coeffs[i].c, sp.coeffs[i].d
	switch order {
	case 0:
		return ((a*dx + b)*dx + c)*dx + d
	case 1:
		return (3*a*dx + 2*b)*dx + c
	case 2:
		return 6*a*dx + 2*b
	case 3:
		return 6*a
	default:
		return 0
	}
}

// calcY2s computes the second derivative at every point in the table. The
// boundaries are set to zero.
func (sp *Spline) calcY2s() {
	n := sp.xs.n
	sp.y2s[0], sp.y2s[n-1] = 0, 0
	if n == 2 { return }

	as, bs := make([]float64, n-2), make([]float64, n-2)
	cs, rs := make([]float64, n-2), make([]float64, n-2)

	xs, ys := sp.xs.xs, sp.ys
	for i := range rs {
		// j indexes into xs and ys.
		j := i + 1

		as[i] = (xs[j] - xs[j-1]) / 6
		bs[i] = (xs[j+1] - xs[j-1]) / 3
		cs[i] = (xs[j+1] - xs[j]) / 6
		rs[i] = ((ys[j+1] - ys[j]) / (xs[j+1] - xs[j])) -
			((ys[j] - ys[j-1]) / (xs[j] - xs[j-1]))
	}

	TriDiagAt(as, bs, cs, rs, sp.y2s[1: n-1])
}

func (sp *Spline) calcCoeffs() {
	coeffs, xs, ys, y2s := sp.coeffs, sp.xs.xs, sp.ys, sp.y2s
	for i := range sp.coeffs {
		h := xs[i+1] - xs[i]
		coeffs[i].a = (y2s[i+1] - y2s[i]) / (6 * h)
		coeffs[i].b = y2s[i] / 2
		coeffs[i].c = (ys[i+1] - ys[i]) / h - h*(y2s[i]/3 + y2s[i+1]/6)
		coeffs[i].d = ys[i]
	}
}

// TriDiagAt solves the tridiagonal system with sub-diagonal as, diagonal
// bs, super-diagonal cs and right hand side rs, writing the solution to out.
// as[0] and cs[len(cs)-1] are ignored.
func TriDiagAt(as, bs, cs, rs, out []float64) {
	n := len(bs)
	if len(as) != n || len(cs) != n || len(rs) != n || len(out) != n {
		panic("Tridiagonal slices have different lengths.")
	}

	tmp := make([]float64, n)
	beta := bs[0]
	out[0] = rs[0] / beta
	for j := 1; j < n; j++ {
		tmp[j] = cs[j-1] / beta
		beta = bs[j] - as[j]*tmp[j]
		out[j] = (rs[j] - as[j]*out[j-1]) / beta
	}
	for j := n - 2; j >= 0; j-- {
		out[j] -= tmp[j+1] * out[j+1]
	}
}
