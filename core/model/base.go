// Package model provides the fitted-state plumbing shared by clustergam
// estimators.
package model

// EstimatorState tracks whether a model has been fitted.
type EstimatorState int

const (
	// NotFitted is the state before a successful Fit.
	NotFitted EstimatorState = iota
	// Fitted is the state after a successful Fit.
	Fitted
)

// BaseEstimator is embedded by every model to carry its fitted state.
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted reports whether the model has completed a successful Fit.
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted marks the model as fitted.
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset returns the model to the unfitted state.
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}
