// Package metrics implements goodness-of-fit measures for fitted models.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/neurogo/clustergam/pkg/errors"
)

// MSE computes the mean squared error between observed and fitted values.
func MSE(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("MSE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i, yt := range yTrue {
		d := yt - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE computes the root mean squared error.
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE computes the mean absolute error.
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("MAE", yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i, yt := range yTrue {
		sum += math.Abs(yt - yPred[i])
	}
	return sum / float64(len(yTrue)), nil
}

// R2 computes the coefficient of determination, 1 - RSS/TSS. It fails when
// yTrue has no variance, since R2 is undefined for a constant response.
func R2(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("R2", yTrue, yPred); err != nil {
		return 0, err
	}
	mean := stat.Mean(yTrue, nil)
	var tss, rss float64
	for i, yt := range yTrue {
		tss += (yt - mean) * (yt - mean)
		d := yt - yPred[i]
		rss += d * d
	}
	if tss == 0 {
		return 0, errors.NewValueError("R2", "no variance in observed values")
	}
	return 1 - rss/tss, nil
}

// ExplainedVariance computes 1 - Var(yTrue - yPred) / Var(yTrue). Unlike R2
// it is insensitive to a constant bias in the predictions.
func ExplainedVariance(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("ExplainedVariance", yTrue, yPred); err != nil {
		return 0, err
	}
	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)

	varTrue := stat.Variance(yTrue, nil)
	if varTrue == 0 {
		return 0, errors.NewValueError("ExplainedVariance", "no variance in observed values")
	}
	return 1 - stat.Variance(diff, nil)/varTrue, nil
}

func checkPair(op string, yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty input")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}
