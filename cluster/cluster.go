// Package cluster extracts labeled regions from a cluster map and reduces a
// 4D data image to one mean-intensity series per region.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/neurogo/clustergam/core/parallel"
	"github.com/neurogo/clustergam/nifti"
	"github.com/neurogo/clustergam/pkg/errors"
	"github.com/neurogo/clustergam/pkg/log"
)

// Cluster is one labeled region of a cluster map.
type Cluster struct {
	// Label is the positive integer value identifying the region.
	Label int

	// Voxels holds flat voxel indices (x-fastest order) belonging to the
	// region.
	Voxels []int
}

// Size returns the number of voxels in the cluster.
func (c *Cluster) Size() int { return len(c.Voxels) }

// ColumnName returns the response column name used for this cluster in the
// covariate table, "cluster_<label>".
func (c *Cluster) ColumnName() string { return fmt.Sprintf("cluster_%d", c.Label) }

// Extract scans a 3D label image and returns its clusters ordered by label.
// Voxel values are rounded to the nearest integer; zero and negative values
// are background. An all-background image yields ErrNoClusters.
func Extract(labels *nifti.Image) ([]*Cluster, error) {
	if labels.NVolumes() != 1 {
		return nil, errors.NewValueError("cluster.Extract",
			fmt.Sprintf("label image must be 3D, got %d volumes", labels.NVolumes()))
	}

	byLabel := make(map[int][]int)
	for i, v := range labels.Volume(0) {
		lbl := int(math.Round(v))
		if lbl <= 0 {
			continue
		}
		byLabel[lbl] = append(byLabel[lbl], i)
	}
	if len(byLabel) == 0 {
		return nil, errors.Wrap(errors.ErrNoClusters, "cluster.Extract")
	}

	clusters := make([]*Cluster, 0, len(byLabel))
	for lbl, vox := range byLabel {
		clusters = append(clusters, &Cluster{Label: lbl, Voxels: vox})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Label < clusters[j].Label })

	log.Logger().Debug().
		Int(log.ClustersKey, len(clusters)).
		Str(log.OperationKey, "extract").
		Msg("extracted clusters from label image")

	return clusters, nil
}

// MeanSeries reduces the data image to per-cluster mean intensities: the
// result is an nVolumes x nClusters matrix whose column j holds the mean
// intensity of clusters[j] in each volume. Volumes are reduced in parallel.
func MeanSeries(data *nifti.Image, clusters []*Cluster) (*mat.Dense, error) {
	if len(clusters) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "cluster.MeanSeries")
	}

	nt := data.NVolumes()
	out := mat.NewDense(nt, len(clusters), nil)

	const parallelThreshold = 4
	parallel.ParallelizeWithThreshold(nt, parallelThreshold, func(start, end int) {
		for t := start; t < end; t++ {
			vol := data.Volume(t)
			for j, c := range clusters {
				var sum float64
				for _, idx := range c.Voxels {
					sum += vol[idx]
				}
				out.Set(t, j, sum/float64(c.Size()))
			}
		}
	})

	log.Logger().Debug().
		Int(log.VolumesKey, nt).
		Int(log.ClustersKey, len(clusters)).
		Str(log.OperationKey, "reduce").
		Msg("computed per-cluster mean series")

	return out, nil
}

// CheckGrid verifies that the label image and data image share spatial dims.
func CheckGrid(data, labels *nifti.Image) error {
	if !data.SameGrid(labels) {
		dx, dy, dz, _ := data.Dims()
		lx, ly, lz, _ := labels.Dims()
		return errors.NewValueError("cluster.CheckGrid",
			fmt.Sprintf("label grid %dx%dx%d does not match data grid %dx%dx%d", lx, ly, lz, dx, dy, dz))
	}
	return nil
}
