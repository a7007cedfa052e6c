package gam

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/neurogo/clustergam/pkg/errors"
)

const splineDegree = 3 // cubic

// basis is a fitted P-spline basis for one smooth covariate: cubic
// B-splines on quantile-spaced interior knots with a second-difference
// penalty.
type basis struct {
	name  string
	k     int       // number of basis functions
	knots []float64 // full knot vector, length k + degree + 1

	// colMeans holds training-sample column means, subtracted for
	// sum-to-zero identifiability when the model has an intercept.
	colMeans []float64
}

// newBasis places knots from the empirical quantiles of x and returns the
// basis. k is the number of basis functions.
func newBasis(name string, x []float64, k int) (*basis, error) {
	if len(x) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "gam.newBasis")
	}
	if k < splineDegree+1 {
		return nil, errors.NewValidationError("k", "basis dimension too small for a cubic basis", k)
	}

	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi-lo < 1e-12 {
		return nil, errors.NewValueError("gam.newBasis",
			fmt.Sprintf("smooth covariate %q is constant", name))
	}

	// k basis functions need k - degree - 1 interior knots, placed at
	// quantiles, plus repeated boundary knots.
	nInterior := k - splineDegree - 1
	knots := make([]float64, 0, k+splineDegree+1)
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, lo)
	}
	for i := 1; i <= nInterior; i++ {
		p := float64(i) / float64(nInterior+1)
		knots = append(knots, stat.Quantile(p, stat.Empirical, sorted, nil))
	}
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, hi)
	}

	return &basis{name: name, k: k, knots: knots}, nil
}

// eval fills one design-matrix row block: the k B-spline values at x.
// Values outside the training range are clamped to the boundary.
func (b *basis) eval(x float64, out []float64) {
	lo, hi := b.knots[0], b.knots[len(b.knots)-1]
	x = errors.ClipValue(x, lo, hi)

	for j := 0; j < b.k; j++ {
		out[j] = bspline(b.knots, j, splineDegree, x)
	}

	// At the right boundary all recursive terms vanish except the last
	// basis function, which is 1 by convention.
	if x == hi {
		for j := 0; j < b.k-1; j++ {
			out[j] = 0
		}
		out[b.k-1] = 1
	}

	if b.colMeans != nil {
		for j := range out {
			out[j] -= b.colMeans[j]
		}
	}
}

// matrix evaluates the basis over all observations, centering columns when
// center is true, and returns the n x k design block.
func (b *basis) matrix(x []float64, center bool) *mat.Dense {
	n := len(x)
	m := mat.NewDense(n, b.k, nil)
	row := make([]float64, b.k)
	for i, xi := range x {
		b.eval(xi, row)
		m.SetRow(i, row)
	}

	if center {
		means := make([]float64, b.k)
		for j := 0; j < b.k; j++ {
			means[j] = stat.Mean(mat.Col(nil, j, m), nil)
		}
		for i := 0; i < n; i++ {
			for j := 0; j < b.k; j++ {
				m.Set(i, j, m.At(i, j)-means[j])
			}
		}
		b.colMeans = means
	}

	return m
}

// penalty returns the k x k second-difference penalty matrix D'D.
func (b *basis) penalty() *mat.SymDense {
	k := b.k
	d := mat.NewDense(k-2, k, nil)
	for i := 0; i < k-2; i++ {
		d.Set(i, i, 1)
		d.Set(i, i+1, -2)
		d.Set(i, i+2, 1)
	}

	var dtd mat.Dense
	dtd.Mul(d.T(), d)

	s := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			s.SetSym(i, j, dtd.At(i, j))
		}
	}
	return s
}

// bspline evaluates the j-th B-spline of the given degree at x by the
// Cox-de Boor recursion.
func bspline(knots []float64, j, degree int, x float64) float64 {
	if degree == 0 {
		if knots[j] <= x && x < knots[j+1] {
			return 1
		}
		return 0
	}

	var left, right float64
	if den := knots[j+degree] - knots[j]; den > 0 {
		left = (x - knots[j]) / den * bspline(knots, j, degree-1, x)
	}
	if den := knots[j+degree+1] - knots[j+1]; den > 0 {
		right = (knots[j+degree+1] - x) / den * bspline(knots, j+1, degree-1, x)
	}
	return left + right
}
