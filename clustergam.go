package clustergam

import (
	"context"
	"time"

	"github.com/neurogo/clustergam/cluster"
	"github.com/neurogo/clustergam/core/parallel"
	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/formula"
	"github.com/neurogo/clustergam/gam"
	"github.com/neurogo/clustergam/nifti"
	"github.com/neurogo/clustergam/pkg/errors"
	"github.com/neurogo/clustergam/pkg/log"
	"github.com/neurogo/clustergam/preprocessing"
)

// Config describes one per-cluster fitting run. Exactly one of Data,
// DataPath, or DataPaths must be set, and exactly one of Labels or
// LabelPath.
type Config struct {
	// Data is an in-memory 3D/4D data image.
	Data *nifti.Image

	// DataPath is a single .nii/.nii.gz file holding the 4D data.
	DataPath string

	// DataPaths are per-timepoint files merged along the volume axis in
	// the given order.
	DataPaths []string

	// Labels is an in-memory 3D label image.
	Labels *nifti.Image

	// LabelPath is a .nii/.nii.gz file holding the 3D cluster map.
	LabelPath string

	// Covariates is the subject-level covariate table; its rows must match
	// the data image's volumes, in order.
	Covariates *dataset.Dataset

	// Template is the model right-hand side applied to every cluster.
	Template formula.Template

	// Model carries family and smoothing options passed to every fit.
	Model gam.Config

	// Standardize centers and scales the formula covariates before fitting.
	// Coefficients are then reported on the standardized scale.
	Standardize bool

	// NJobs is the fixed worker count for fitting; <= 0 means GOMAXPROCS.
	NJobs int
}

// FitPerCluster loads the data and label volumes, reduces the data image to
// per-cluster mean intensity series, builds one model formula per cluster
// from the template, and fits the models across a worker pool.
//
// Per-cluster fit failures are recorded on the Result, not returned as the
// top-level error; ctx cancellation surfaces on the clusters whose fits
// never started.
func FitPerCluster(ctx context.Context, cfg Config) (*Result, error) {
	start := time.Now()

	data, labels, err := loadInputs(cfg)
	if err != nil {
		return nil, err
	}

	if err := cluster.CheckGrid(data, labels); err != nil {
		return nil, err
	}
	if cfg.Covariates == nil {
		return nil, errors.NewValidationError("Covariates", "must be provided", nil)
	}
	if cfg.Covariates.NRows() != data.NVolumes() {
		return nil, errors.NewDimensionError("FitPerCluster", data.NVolumes(), cfg.Covariates.NRows(), 0)
	}
	if cfg.Template.String() == "" {
		return nil, errors.NewValidationError("Template", "must be a parsed formula template", nil)
	}

	clusters, err := cluster.Extract(labels)
	if err != nil {
		return nil, err
	}

	means, err := cluster.MeanSeries(data, clusters)
	if err != nil {
		return nil, err
	}

	// Append one response column per cluster to a copy of the table.
	table := cfg.Covariates.Clone()
	if cfg.Standardize {
		if vars := cfg.Template.Covariates(); len(vars) > 0 {
			table, err = preprocessing.NewStandardizer().FitTransform(table, vars...)
			if err != nil {
				return nil, err
			}
		}
	}
	for j, c := range clusters {
		col := make([]float64, data.NVolumes())
		for t := range col {
			col[t] = means.At(t, j)
		}
		if err := table.AddColumn(c.ColumnName(), col); err != nil {
			return nil, err
		}
	}

	res := &Result{
		clusters: clusters,
		models:   make([]*gam.GAM, len(clusters)),
	}

	log.Logger().Info().
		Str(log.OperationKey, "fit_per_cluster").
		Int(log.ClustersKey, len(clusters)).
		Int(log.VolumesKey, data.NVolumes()).
		Int(log.WorkersKey, cfg.NJobs).
		Str(log.FormulaKey, cfg.Template.String()).
		Msg("dispatching per-cluster fits")

	res.errs = parallel.MapN(ctx, len(clusters), cfg.NJobs, func(i int) error {
		f := cfg.Template.WithResponse(clusters[i].ColumnName())
		m, err := gam.New(f, cfg.Model)
		if err != nil {
			return err
		}
		if err := m.Fit(table); err != nil {
			log.Logger().Warn().
				Int(log.ClusterKey, clusters[i].Label).
				Err(err).
				Msg("cluster fit failed")
			return err
		}
		res.models[i] = m
		return nil
	})

	log.Logger().Info().
		Str(log.OperationKey, "fit_per_cluster").
		Int("ok", res.NumOK()).
		Int("failed", res.NumFailed()).
		Int64(log.DurationMsKey, time.Since(start).Milliseconds()).
		Msg("per-cluster fitting finished")

	return res, nil
}

// loadInputs resolves the data and label images from the config, merging
// multi-file data along the volume axis.
func loadInputs(cfg Config) (data, labels *nifti.Image, err error) {
	nData := 0
	if cfg.Data != nil {
		nData++
		data = cfg.Data
	}
	if cfg.DataPath != "" {
		nData++
	}
	if len(cfg.DataPaths) > 0 {
		nData++
	}
	if nData != 1 {
		return nil, nil, errors.NewValidationError("Data",
			"exactly one of Data, DataPath, DataPaths must be set", nData)
	}

	if cfg.DataPath != "" {
		data, err = nifti.Load(cfg.DataPath)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(cfg.DataPaths) > 0 {
		imgs := make([]*nifti.Image, len(cfg.DataPaths))
		for i, p := range cfg.DataPaths {
			imgs[i], err = nifti.Load(p)
			if err != nil {
				return nil, nil, err
			}
		}
		data, err = nifti.Merge(imgs...)
		if err != nil {
			return nil, nil, err
		}
	}

	nLabel := 0
	if cfg.Labels != nil {
		nLabel++
		labels = cfg.Labels
	}
	if cfg.LabelPath != "" {
		nLabel++
	}
	if nLabel != 1 {
		return nil, nil, errors.NewValidationError("Labels",
			"exactly one of Labels, LabelPath must be set", nLabel)
	}
	if cfg.LabelPath != "" {
		labels, err = nifti.Load(cfg.LabelPath)
		if err != nil {
			return nil, nil, err
		}
	}

	return data, labels, nil
}
