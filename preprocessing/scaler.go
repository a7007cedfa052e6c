// Package preprocessing implements covariate transforms applied to a dataset
// before model fitting. Standardizing covariates improves the conditioning of
// the penalized least squares problems solved during fitting.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/neurogo/clustergam/core/model"
	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/pkg/errors"
)

// Standardizer centers and scales named dataset columns to mean 0 and
// standard deviation 1. Columns not named in Fit pass through unchanged.
type Standardizer struct {
	model.BaseEstimator

	// WithMean controls whether the column mean is subtracted.
	WithMean bool

	// WithStd controls whether the column is divided by its standard
	// deviation.
	WithStd bool

	columns []string
	mean    []float64
	scale   []float64
}

// NewStandardizer creates a standardizer that both centers and scales.
func NewStandardizer() *Standardizer {
	return &Standardizer{WithMean: true, WithStd: true}
}

// Fit computes the mean and standard deviation of each named column.
func (s *Standardizer) Fit(data *dataset.Dataset, columns ...string) error {
	if len(columns) == 0 {
		return errors.NewValueError("Standardizer.Fit", "no columns named")
	}
	if data.NRows() == 0 {
		return errors.NewModelError("Standardizer.Fit", "empty data", errors.ErrEmptyData)
	}

	s.columns = append([]string(nil), columns...)
	s.mean = make([]float64, len(columns))
	s.scale = make([]float64, len(columns))

	for i, name := range columns {
		col, err := data.Column(name)
		if err != nil {
			return err
		}
		if s.WithMean {
			s.mean[i] = stat.Mean(col, nil)
		}
		s.scale[i] = 1
		if s.WithStd {
			sd := stat.PopStdDev(col, nil)
			// Constant columns keep scale 1 to avoid division by zero.
			if sd > 1e-8 {
				s.scale[i] = sd
			}
		}
	}

	s.SetFitted()
	return nil
}

// Transform returns a dataset in which the fitted columns are replaced by
// their standardized values. The input dataset is not modified.
func (s *Standardizer) Transform(data *dataset.Dataset) (*dataset.Dataset, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("Standardizer", "Transform")
	}
	return s.apply(data, func(v float64, i int) float64 {
		return (v - s.mean[i]) / s.scale[i]
	})
}

// FitTransform fits on the data and returns the transformed copy.
func (s *Standardizer) FitTransform(data *dataset.Dataset, columns ...string) (*dataset.Dataset, error) {
	if err := s.Fit(data, columns...); err != nil {
		return nil, err
	}
	return s.Transform(data)
}

// InverseTransform maps standardized columns back to their original scale.
func (s *Standardizer) InverseTransform(data *dataset.Dataset) (*dataset.Dataset, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("Standardizer", "InverseTransform")
	}
	return s.apply(data, func(v float64, i int) float64 {
		return v*s.scale[i] + s.mean[i]
	})
}

// Mean returns the fitted mean of a column.
func (s *Standardizer) Mean(name string) (float64, bool) {
	for i, c := range s.columns {
		if c == name {
			return s.mean[i], true
		}
	}
	return 0, false
}

// Scale returns the fitted scale of a column.
func (s *Standardizer) Scale(name string) (float64, bool) {
	for i, c := range s.columns {
		if c == name {
			return s.scale[i], true
		}
	}
	return 0, false
}

func (s *Standardizer) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("Standardizer(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("Standardizer(with_mean=%t, with_std=%t, columns=%d)",
		s.WithMean, s.WithStd, len(s.columns))
}

func (s *Standardizer) apply(data *dataset.Dataset, fn func(v float64, i int) float64) (*dataset.Dataset, error) {
	out := data.Clone()
	for i, name := range s.columns {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		scaled := make([]float64, len(col))
		for j, v := range col {
			scaled[j] = fn(v, i)
		}
		if err := out.ReplaceColumn(name, scaled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RangeScaler maps named dataset columns linearly onto a target interval,
// [0, 1] by default.
type RangeScaler struct {
	model.BaseEstimator

	// Lo and Hi bound the target interval.
	Lo, Hi float64

	columns []string
	min     []float64
	span    []float64
}

// NewRangeScaler creates a scaler targeting [0, 1].
func NewRangeScaler() *RangeScaler {
	return &RangeScaler{Lo: 0, Hi: 1}
}

// Fit records the observed range of each named column.
func (r *RangeScaler) Fit(data *dataset.Dataset, columns ...string) error {
	if len(columns) == 0 {
		return errors.NewValueError("RangeScaler.Fit", "no columns named")
	}
	if data.NRows() == 0 {
		return errors.NewModelError("RangeScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if r.Hi <= r.Lo {
		return errors.NewValidationError("Hi", "target interval is empty", r.Hi)
	}

	r.columns = append([]string(nil), columns...)
	r.min = make([]float64, len(columns))
	r.span = make([]float64, len(columns))

	for i, name := range columns {
		col, err := data.Column(name)
		if err != nil {
			return err
		}
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		r.min[i] = lo
		r.span[i] = hi - lo
		if r.span[i] < 1e-8 {
			r.span[i] = 1
		}
	}

	r.SetFitted()
	return nil
}

// Transform returns a dataset with the fitted columns mapped onto [Lo, Hi].
func (r *RangeScaler) Transform(data *dataset.Dataset) (*dataset.Dataset, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("RangeScaler", "Transform")
	}
	width := r.Hi - r.Lo
	out := data.Clone()
	for i, name := range r.columns {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		scaled := make([]float64, len(col))
		for j, v := range col {
			scaled[j] = (v-r.min[i])/r.span[i]*width + r.Lo
		}
		if err := out.ReplaceColumn(name, scaled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FitTransform fits on the data and returns the transformed copy.
func (r *RangeScaler) FitTransform(data *dataset.Dataset, columns ...string) (*dataset.Dataset, error) {
	if err := r.Fit(data, columns...); err != nil {
		return nil, err
	}
	return r.Transform(data)
}
