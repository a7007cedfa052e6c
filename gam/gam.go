package gam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/neurogo/clustergam/core/model"
	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/formula"
	"github.com/neurogo/clustergam/pkg/errors"
	"github.com/neurogo/clustergam/pkg/log"
)

// Config carries the fitting options of a GAM.
type Config struct {
	// Family is the response family. Gaussian when nil.
	Family *Family

	// Lambda fixes the smoothing parameter for all smooths. When zero it is
	// chosen by GCV over LambdaGrid.
	Lambda float64

	// LambdaGrid is the log-spaced candidate grid for GCV selection. A nil
	// grid uses DefaultLambdaGrid().
	LambdaGrid []float64

	// MaxIter bounds the IRLS iterations per candidate. Defaults to 50.
	MaxIter int

	// Tol is the relative deviance-change convergence criterion.
	// Defaults to 1e-8.
	Tol float64
}

// DefaultLambdaGrid returns the GCV candidate grid, log-spaced over
// [1e-4, 1e4].
func DefaultLambdaGrid() []float64 {
	grid := make([]float64, 17)
	for i := range grid {
		grid[i] = math.Pow(10, -4+0.5*float64(i))
	}
	return grid
}

// termBlock maps a formula term to its columns in the design matrix.
type termBlock struct {
	name    string
	smooth  bool
	start   int // first column
	width   int
	basis   *basis        // nil for parametric terms
	penalty *mat.SymDense // nil for parametric terms
}

// GAM is a generalized additive model for one formula over a dataset.
type GAM struct {
	model.BaseEstimator

	cfg     Config
	formula formula.Formula

	blocks []termBlock
	p      int // total design columns

	// Fitted state.
	coef      []float64
	fitted    []float64
	residuals []float64
	y         []float64
	lambda    float64
	edf       float64
	edfSmooth map[string]float64
	deviance  float64
	nullDev   float64
	gcv       float64
	scale     float64
	n         int
}

var _ model.Regressor = (*GAM)(nil)

// New creates a GAM for the given formula.
func New(f formula.Formula, cfg Config) (*GAM, error) {
	if cfg.Family == nil {
		fam, err := NewFamily(Gaussian)
		if err != nil {
			return nil, err
		}
		cfg.Family = fam
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 50
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-8
	}
	if cfg.Lambda < 0 {
		return nil, errors.NewValidationError("Lambda", "must be non-negative", cfg.Lambda)
	}
	if cfg.Lambda == 0 && len(cfg.LambdaGrid) == 0 {
		cfg.LambdaGrid = DefaultLambdaGrid()
	}

	return &GAM{cfg: cfg, formula: f}, nil
}

// Formula returns the model formula.
func (g *GAM) Formula() formula.Formula { return g.formula }

// Family returns the response family.
func (g *GAM) Family() *Family { return g.cfg.Family }

// Fit estimates the model from the dataset named by the formula. The
// response and every covariate must be columns of data.
func (g *GAM) Fit(data *dataset.Dataset) (err error) {
	defer errors.Recover(&err, "GAM.Fit")

	y, err := data.Column(g.formula.Response)
	if err != nil {
		return errors.NewModelError("GAM.Fit", "missing response", err)
	}
	n := len(y)
	if n == 0 {
		return errors.Wrap(errors.ErrEmptyData, "GAM.Fit")
	}

	x, err := g.buildDesign(data, n, true)
	if err != nil {
		return err
	}
	if n <= g.p {
		return errors.NewValueError("GAM.Fit",
			fmt.Sprintf("%d observations cannot support %d coefficients", n, g.p))
	}

	pen := g.assemblePenalty()

	type candidate struct {
		lambda float64
		fit    *irlsFit
	}
	var best *candidate
	var lastErr error

	lambdas := g.cfg.LambdaGrid
	if g.cfg.Lambda > 0 {
		lambdas = []float64{g.cfg.Lambda}
	}
	if pen == nil {
		// Purely parametric model: the penalty is zero for every lambda.
		lambdas = lambdas[:1]
	}

	for _, lam := range lambdas {
		fit, ferr := g.runIRLS(x, y, pen, lam)
		if ferr != nil {
			lastErr = ferr
			continue
		}
		if best == nil || fit.gcv < best.fit.gcv {
			best = &candidate{lambda: lam, fit: fit}
		}
	}
	if best == nil {
		return errors.NewModelError("GAM.Fit", "no smoothing candidate produced a valid fit", lastErr)
	}

	g.installFit(y, best.lambda, best.fit)

	log.Logger().Debug().
		Str(log.ModelNameKey, "GAM").
		Str(log.OperationKey, "fit").
		Str(log.FormulaKey, g.formula.String()).
		Float64("lambda", g.lambda).
		Float64("edf", g.edf).
		Float64("gcv", g.gcv).
		Msg("fitted model")

	return nil
}

// buildDesign assembles the design matrix; on the training pass (train ==
// true) it also records term blocks, bases and penalties.
func (g *GAM) buildDesign(data *dataset.Dataset, n int, train bool) (*mat.Dense, error) {
	if train {
		g.blocks = g.blocks[:0]
		g.p = 0
		if g.formula.Intercept {
			g.blocks = append(g.blocks, termBlock{name: "(Intercept)", start: 0, width: 1})
			g.p = 1
		}
		for _, name := range g.formula.Linear {
			g.blocks = append(g.blocks, termBlock{name: name, start: g.p, width: 1})
			g.p++
		}
		for _, s := range g.formula.Smooths {
			col, err := data.Column(s.Name)
			if err != nil {
				return nil, errors.NewModelError("GAM.Fit", "missing covariate", err)
			}
			b, err := newBasis(s.Name, col, s.K)
			if err != nil {
				return nil, err
			}
			g.blocks = append(g.blocks, termBlock{
				name: "s(" + s.Name + ")", smooth: true, start: g.p, width: s.K,
				basis: b, penalty: b.penalty(),
			})
			g.p += s.K
		}
	}

	x := mat.NewDense(n, g.p, nil)
	for _, blk := range g.blocks {
		switch {
		case blk.name == "(Intercept)":
			for i := 0; i < n; i++ {
				x.Set(i, blk.start, 1)
			}
		case !blk.smooth:
			col, err := data.Column(blk.name)
			if err != nil {
				return nil, errors.NewModelError("GAM", "missing covariate", err)
			}
			if len(col) != n {
				return nil, errors.NewDimensionError("GAM", n, len(col), 0)
			}
			for i := 0; i < n; i++ {
				x.Set(i, blk.start, col[i])
			}
		default:
			name := blk.basis.name
			col, err := data.Column(name)
			if err != nil {
				return nil, errors.NewModelError("GAM", "missing covariate", err)
			}
			if len(col) != n {
				return nil, errors.NewDimensionError("GAM", n, len(col), 0)
			}
			if train {
				bm := blk.basis.matrix(col, g.formula.Intercept)
				x.Slice(0, n, blk.start, blk.start+blk.width).(*mat.Dense).Copy(bm)
			} else {
				row := make([]float64, blk.width)
				for i := 0; i < n; i++ {
					blk.basis.eval(col[i], row)
					for j, v := range row {
						x.Set(i, blk.start+j, v)
					}
				}
			}
		}
	}

	return x, nil
}

// assemblePenalty builds the block-diagonal base penalty, or nil when the
// model has no smooths.
func (g *GAM) assemblePenalty() *mat.SymDense {
	hasSmooth := false
	for _, blk := range g.blocks {
		if blk.smooth {
			hasSmooth = true
		}
	}
	if !hasSmooth {
		return nil
	}

	pen := mat.NewSymDense(g.p, nil)
	for _, blk := range g.blocks {
		if !blk.smooth {
			continue
		}
		for i := 0; i < blk.width; i++ {
			for j := i; j < blk.width; j++ {
				pen.SetSym(blk.start+i, blk.start+j, blk.penalty.At(i, j))
			}
		}
	}
	return pen
}

// irlsFit is the outcome of one penalized IRLS run.
type irlsFit struct {
	coef     []float64
	fitted   []float64
	edf      float64
	edfDiag  []float64 // per-coefficient effective degrees of freedom
	deviance float64
	gcv      float64
	iters    int
	warned   bool
}

// runIRLS fits the model at a fixed smoothing parameter by penalized
// iteratively reweighted least squares.
func (g *GAM) runIRLS(x *mat.Dense, y []float64, pen *mat.SymDense, lambda float64) (*irlsFit, error) {
	fam := g.cfg.Family
	n := len(y)

	eta := make([]float64, n)
	mu := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)

	// Initialize the mean at a slightly shrunk observation, standard for
	// IRLS starting values.
	for i, yi := range y {
		switch fam.Type {
		case Binomial:
			mu[i] = (yi + 0.5) / 2
		case Poisson:
			mu[i] = yi + 0.1
		default:
			mu[i] = yi
		}
		eta[i] = fam.Link(mu[i])
	}

	coef := make([]float64, g.p)
	dev := math.Inf(1)
	converged := false
	iter := 0

	var fit *solveResult
	for ; iter < g.cfg.MaxIter; iter++ {
		for i := range y {
			d := fam.DMuDEta(eta[i])
			z[i] = eta[i] + (y[i]-mu[i])/d
			w[i] = d * d / fam.Variance(mu[i])
		}

		var err error
		fit, err = solvePenalized(x, z, w, pen, lambda)
		if err != nil {
			return nil, err
		}
		copy(coef, fit.coef)

		for i := range eta {
			eta[i] = fit.fitted[i]
			mu[i] = fam.InvLink(eta[i])
		}

		newDev := fam.Deviance(y, mu)
		if err := errors.CheckScalar("GAM.Fit deviance", newDev, iter); err != nil {
			return nil, err
		}
		if math.Abs(newDev-dev) < g.cfg.Tol*(math.Abs(newDev)+0.1) {
			dev = newDev
			converged = true
			break
		}
		dev = newDev

		// Gaussian identity IRLS is a single weighted least squares solve.
		if fam.Type == Gaussian {
			converged = true
			break
		}
	}

	warned := false
	if !converged {
		warned = true
		errors.Warn(errors.NewConvergenceWarning("GAM.Fit (IRLS)", g.cfg.MaxIter,
			fmt.Sprintf("formula %s, lambda %g", g.formula.String(), lambda)))
	}

	fitted := make([]float64, n)
	copy(fitted, mu)

	// GCV = n * D / (n - edf)^2 (Craven & Wahba form).
	den := float64(n) - fit.edf
	if den <= 0 {
		return nil, errors.NewValueError("GAM.Fit", "effective degrees of freedom exhausted the sample")
	}
	gcv := float64(n) * dev / (den * den)

	return &irlsFit{
		coef:     coef,
		fitted:   fitted,
		edf:      fit.edf,
		edfDiag:  fit.edfDiag,
		deviance: dev,
		gcv:      gcv,
		iters:    iter + 1,
		warned:   warned,
	}, nil
}

// solveResult is one penalized weighted least squares solve.
type solveResult struct {
	coef    []float64
	fitted  []float64 // linear predictor X*coef
	edf     float64
	edfDiag []float64
}

// solvePenalized solves (X'WX + lambda*S) b = X'Wz and returns the
// coefficients, linear predictor, and effective degrees of freedom
// tr[(X'WX + lambda*S)^-1 X'WX].
func solvePenalized(x *mat.Dense, z, w []float64, pen *mat.SymDense, lambda float64) (*solveResult, error) {
	n, p := x.Dims()

	// Row-scale by sqrt(w) so X'WX = Xw'Xw.
	xw := mat.NewDense(n, p, nil)
	zw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, sw*x.At(i, j))
		}
		zw.SetVec(i, sw*z[i])
	}

	var xtwxDense mat.Dense
	xtwxDense.Mul(xw.T(), xw)
	xtwx := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			xtwx.SetSym(i, j, xtwxDense.At(i, j))
		}
	}

	a := mat.NewSymDense(p, nil)
	a.CopySym(xtwx)
	if pen != nil && lambda > 0 {
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				a.SetSym(i, j, a.At(i, j)+lambda*pen.At(i, j))
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "GAM.Fit: penalized normal equations")
	}

	var xtwz mat.VecDense
	xtwz.MulVec(xw.T(), zw)

	var coefVec mat.VecDense
	if err := chol.SolveVecTo(&coefVec, &xtwz); err != nil {
		return nil, errors.Wrap(err, "GAM.Fit: solve")
	}

	coef := make([]float64, p)
	for j := 0; j < p; j++ {
		coef[j] = coefVec.AtVec(j)
	}

	var fittedVec mat.VecDense
	fittedVec.MulVec(x, &coefVec)
	fitted := make([]float64, n)
	for i := 0; i < n; i++ {
		fitted[i] = fittedVec.AtVec(i)
	}

	// edf = tr(A^-1 X'WX); the diagonal gives each coefficient's share.
	var ainvXtwx mat.Dense
	if err := chol.SolveTo(&ainvXtwx, xtwx); err != nil {
		return nil, errors.Wrap(err, "GAM.Fit: edf solve")
	}
	edfDiag := make([]float64, p)
	edf := 0.0
	for j := 0; j < p; j++ {
		edfDiag[j] = ainvXtwx.At(j, j)
		edf += edfDiag[j]
	}

	return &solveResult{coef: coef, fitted: fitted, edf: edf, edfDiag: edfDiag}, nil
}

// installFit stores a chosen candidate on the model and derives the summary
// quantities.
func (g *GAM) installFit(y []float64, lambda float64, fit *irlsFit) {
	n := len(y)
	g.n = n
	g.y = append([]float64(nil), y...)
	g.coef = fit.coef
	g.fitted = fit.fitted
	g.lambda = lambda
	g.edf = fit.edf
	g.deviance = fit.deviance
	g.gcv = fit.gcv

	g.residuals = make([]float64, n)
	for i := range y {
		g.residuals[i] = y[i] - g.fitted[i]
	}

	// Null deviance against the mean-only model.
	var ybar float64
	for _, yi := range y {
		ybar += yi
	}
	ybar /= float64(n)
	null := make([]float64, n)
	for i := range null {
		null[i] = ybar
	}
	g.nullDev = g.cfg.Family.Deviance(y, null)

	if g.cfg.Family.HasFixedScale() {
		g.scale = 1
	} else {
		var rss float64
		for _, r := range g.residuals {
			rss += r * r
		}
		g.scale = rss / (float64(n) - g.edf)
	}

	// Per-smooth EDF is the trace of the influence matrix restricted to the
	// smooth's coefficient block.
	g.edfSmooth = make(map[string]float64)
	for _, blk := range g.blocks {
		if !blk.smooth {
			continue
		}
		var e float64
		for j := blk.start; j < blk.start+blk.width; j++ {
			e += fit.edfDiag[j]
		}
		g.edfSmooth[blk.name] = e
	}

	g.SetFitted()
}
