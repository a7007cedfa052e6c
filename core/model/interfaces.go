package model

import "github.com/neurogo/clustergam/dataset"

// Fitter is a model that learns from a named-column dataset.
type Fitter interface {
	Fit(data *dataset.Dataset) error
}

// Predictor produces predictions on new datasets.
type Predictor interface {
	Predict(data *dataset.Dataset) ([]float64, error)
}

// Regressor is the interface satisfied by fitted regression models.
type Regressor interface {
	Fitter
	Predictor

	// Coefficients returns the fitted coefficient vector.
	Coefficients() []float64
}
