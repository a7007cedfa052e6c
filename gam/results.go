package gam

import (
	"fmt"
	"strings"

	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/metrics"
	"github.com/neurogo/clustergam/pkg/errors"
)

// Coefficients returns the fitted coefficient vector, ordered intercept,
// linear terms, then smooth blocks in formula order.
func (g *GAM) Coefficients() []float64 { return g.coef }

// Fitted returns the fitted means on the response scale.
func (g *GAM) Fitted() []float64 { return g.fitted }

// Residuals returns the response residuals y - fitted.
func (g *GAM) Residuals() []float64 { return g.residuals }

// Lambda returns the smoothing parameter used by the selected fit.
func (g *GAM) Lambda() float64 { return g.lambda }

// EDF returns the total effective degrees of freedom of the fit.
func (g *GAM) EDF() float64 { return g.edf }

// SmoothEDF returns the effective degrees of freedom of the named smooth
// term, keyed as "s(name)".
func (g *GAM) SmoothEDF(term string) (float64, bool) {
	e, ok := g.edfSmooth[term]
	return e, ok
}

// Deviance returns the deviance of the fit.
func (g *GAM) Deviance() float64 { return g.deviance }

// NullDeviance returns the deviance of the intercept-only model.
func (g *GAM) NullDeviance() float64 { return g.nullDev }

// DevianceExplained returns 1 - deviance/nullDeviance.
func (g *GAM) DevianceExplained() float64 {
	if g.nullDev == 0 {
		return 0
	}
	return 1 - g.deviance/g.nullDev
}

// GCV returns the generalized cross-validation score of the selected fit.
func (g *GAM) GCV() float64 { return g.gcv }

// Scale returns the estimated (or fixed) scale parameter.
func (g *GAM) Scale() float64 { return g.scale }

// NObs returns the number of observations used in fitting.
func (g *GAM) NObs() int { return g.n }

// Predict evaluates the fitted model on new data. Every covariate of the
// formula must be present; the response column is not required. Smooth
// covariate values outside the training range are clamped to the boundary.
func (g *GAM) Predict(data *dataset.Dataset) ([]float64, error) {
	if !g.IsFitted() {
		return nil, errors.NewNotFittedError("GAM", "Predict")
	}

	n := data.NRows()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "GAM.Predict")
	}

	x, err := g.buildDesign(data, n, false)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var eta float64
		for j := 0; j < g.p; j++ {
			eta += x.At(i, j) * g.coef[j]
		}
		out[i] = g.cfg.Family.InvLink(eta)
	}
	return out, nil
}

// PartialEffect evaluates the centered contribution of the smooth term
// "s(name)" over m evenly spaced points of the training range of its
// covariate. Returns the grid and the effect values on the linear predictor
// scale.
func (g *GAM) PartialEffect(name string, m int) (grid, effect []float64, err error) {
	if !g.IsFitted() {
		return nil, nil, errors.NewNotFittedError("GAM", "PartialEffect")
	}
	if m < 2 {
		return nil, nil, errors.NewValidationError("m", "grid needs at least 2 points", m)
	}

	for _, blk := range g.blocks {
		if !blk.smooth || blk.basis.name != name {
			continue
		}
		lo := blk.basis.knots[0]
		hi := blk.basis.knots[len(blk.basis.knots)-1]
		grid = make([]float64, m)
		effect = make([]float64, m)
		row := make([]float64, blk.width)
		for i := range grid {
			grid[i] = lo + (hi-lo)*float64(i)/float64(m-1)
			blk.basis.eval(grid[i], row)
			for j, v := range row {
				effect[i] += v * g.coef[blk.start+j]
			}
		}
		return grid, effect, nil
	}

	return nil, nil, errors.NewValueError("GAM.PartialEffect", fmt.Sprintf("no smooth term s(%s) in model", name))
}

// Summary returns a text summary of the fit.
func (g *GAM) Summary() (string, error) {
	if !g.IsFitted() {
		return "", errors.NewNotFittedError("GAM", "Summary")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generalized additive model\n")
	fmt.Fprintf(&sb, "Formula:  %s\n", g.formula.String())
	fmt.Fprintf(&sb, "Family:   %s (link: %s)\n", g.cfg.Family.Type, g.cfg.Family.LinkName)
	fmt.Fprintf(&sb, "Num obs:  %d\n", g.n)
	fmt.Fprintf(&sb, "Lambda:   %g\n", g.lambda)
	fmt.Fprintf(&sb, "Scale:    %.6g\n", g.scale)
	fmt.Fprintf(&sb, "\nParametric coefficients:\n")
	for _, blk := range g.blocks {
		if blk.smooth {
			continue
		}
		fmt.Fprintf(&sb, "  %-16s %12.6f\n", blk.name, g.coef[blk.start])
	}
	if len(g.edfSmooth) > 0 {
		fmt.Fprintf(&sb, "\nSmooth terms:\n")
		for _, blk := range g.blocks {
			if !blk.smooth {
				continue
			}
			fmt.Fprintf(&sb, "  %-16s edf %7.3f\n", blk.name, g.edfSmooth[blk.name])
		}
	}
	fmt.Fprintf(&sb, "\nEDF: %.3f   Deviance explained: %.1f%%   GCV: %.6g\n",
		g.edf, 100*g.DevianceExplained(), g.gcv)
	if rmse, err := metrics.RMSE(g.y, g.fitted); err == nil {
		fmt.Fprintf(&sb, "RMSE (response scale): %.6g\n", rmse)
	}

	return sb.String(), nil
}
