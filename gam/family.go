// Package gam implements penalized generalized additive models: linear
// terms plus P-spline smooths, fitted by penalized IRLS with GCV smoothing
// selection.
package gam

import (
	"math"

	"github.com/neurogo/clustergam/pkg/errors"
)

// FamilyType identifies an exponential-family response distribution.
type FamilyType int

const (
	// Gaussian is the normal family with identity link.
	Gaussian FamilyType = iota
	// Binomial is the binomial family with logit link.
	Binomial
	// Poisson is the Poisson family with log link.
	Poisson
)

// String returns the family name.
func (t FamilyType) String() string {
	switch t {
	case Gaussian:
		return "Gaussian"
	case Binomial:
		return "Binomial"
	case Poisson:
		return "Poisson"
	default:
		return "Unknown"
	}
}

// Family bundles the canonical link, variance function, and deviance of a
// response distribution.
type Family struct {
	Type FamilyType

	// LinkName is the canonical link used, for display.
	LinkName string
}

// NewFamily returns the family with its canonical link.
func NewFamily(t FamilyType) (*Family, error) {
	switch t {
	case Gaussian:
		return &Family{Type: t, LinkName: "identity"}, nil
	case Binomial:
		return &Family{Type: t, LinkName: "logit"}, nil
	case Poisson:
		return &Family{Type: t, LinkName: "log"}, nil
	default:
		return nil, errors.NewValueError("gam.NewFamily", "unknown family")
	}
}

// Link maps a mean to the linear predictor scale.
func (f *Family) Link(mu float64) float64 {
	switch f.Type {
	case Binomial:
		mu = errors.ClipValue(mu, 1e-10, 1-1e-10)
		return math.Log(mu / (1 - mu))
	case Poisson:
		return errors.StabilizeLog(mu)
	default:
		return mu
	}
}

// InvLink maps a linear predictor to the mean scale.
func (f *Family) InvLink(eta float64) float64 {
	switch f.Type {
	case Binomial:
		return 1 / (1 + errors.StabilizeExp(-eta))
	case Poisson:
		return errors.StabilizeExp(eta)
	default:
		return eta
	}
}

// DMuDEta is the derivative of the mean with respect to the linear
// predictor.
func (f *Family) DMuDEta(eta float64) float64 {
	switch f.Type {
	case Binomial:
		mu := f.InvLink(eta)
		return math.Max(mu*(1-mu), 1e-10)
	case Poisson:
		return math.Max(errors.StabilizeExp(eta), 1e-10)
	default:
		return 1
	}
}

// Variance is the variance function V(mu).
func (f *Family) Variance(mu float64) float64 {
	switch f.Type {
	case Binomial:
		mu = errors.ClipValue(mu, 1e-10, 1-1e-10)
		return mu * (1 - mu)
	case Poisson:
		return math.Max(mu, 1e-10)
	default:
		return 1
	}
}

// Deviance returns the total deviance of observations y against means mu.
func (f *Family) Deviance(y, mu []float64) float64 {
	var dev float64
	switch f.Type {
	case Binomial:
		for i, yi := range y {
			mi := errors.ClipValue(mu[i], 1e-10, 1-1e-10)
			if yi > 0 {
				dev += yi * math.Log(yi/mi)
			}
			if yi < 1 {
				dev += (1 - yi) * math.Log((1-yi)/(1-mi))
			}
		}
		return 2 * dev
	case Poisson:
		for i, yi := range y {
			mi := math.Max(mu[i], 1e-10)
			if yi > 0 {
				dev += yi*math.Log(yi/mi) - (yi - mi)
			} else {
				dev += mi
			}
		}
		return 2 * dev
	default:
		for i, yi := range y {
			r := yi - mu[i]
			dev += r * r
		}
		return dev
	}
}

// HasFixedScale reports whether the family's scale parameter is 1 by
// definition rather than estimated.
func (f *Family) HasFixedScale() bool {
	return f.Type == Binomial || f.Type == Poisson
}
