package cluster

import (
	"math"
	"testing"

	"github.com/neurogo/clustergam/nifti"
	"github.com/neurogo/clustergam/pkg/errors"
)

// labelImage builds a 4x1x1 map with voxels labeled 1, 1, 2, 0.
func labelImage(t *testing.T) *nifti.Image {
	t.Helper()
	img, err := nifti.NewImage(4, 1, 1, 1, []float64{1, 1, 2, 0})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	return img
}

func TestExtract(t *testing.T) {
	clusters, err := Extract(labelImage(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if clusters[0].Label != 1 || clusters[0].Size() != 2 {
		t.Errorf("cluster 0 = label %d size %d, want label 1 size 2", clusters[0].Label, clusters[0].Size())
	}
	if clusters[1].Label != 2 || clusters[1].Size() != 1 {
		t.Errorf("cluster 1 = label %d size %d, want label 2 size 1", clusters[1].Label, clusters[1].Size())
	}
	if clusters[0].ColumnName() != "cluster_1" {
		t.Errorf("ColumnName = %q, want cluster_1", clusters[0].ColumnName())
	}
}

func TestExtractRoundsLabels(t *testing.T) {
	// Label maps written as float32 carry tiny representation error.
	img, err := nifti.NewImage(2, 1, 1, 1, []float64{1.0000001, 1.9999999})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	clusters, err := Extract(img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(clusters) != 2 || clusters[0].Label != 1 || clusters[1].Label != 2 {
		t.Errorf("labels not rounded: %+v", clusters)
	}
}

func TestExtractAllBackground(t *testing.T) {
	img, err := nifti.NewImage(2, 1, 1, 1, []float64{0, -3})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	if _, err := Extract(img); !errors.Is(err, errors.ErrNoClusters) {
		t.Errorf("expected ErrNoClusters, got %v", err)
	}
}

func TestExtractRejects4D(t *testing.T) {
	img, err := nifti.NewImage(2, 1, 1, 2, []float64{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	if _, err := Extract(img); err == nil {
		t.Error("Extract of a 4D label image should fail")
	}
}

func TestMeanSeries(t *testing.T) {
	clusters, err := Extract(labelImage(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Two volumes over the same 4-voxel grid.
	data, err := nifti.NewImage(4, 1, 1, 2, []float64{
		1, 3, 10, 100, // volume 0: cluster 1 mean 2, cluster 2 mean 10
		5, 7, 20, 100, // volume 1: cluster 1 mean 6, cluster 2 mean 20
	})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}

	means, err := MeanSeries(data, clusters)
	if err != nil {
		t.Fatalf("MeanSeries failed: %v", err)
	}

	r, c := means.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("means dims = (%d,%d), want (2,2)", r, c)
	}
	want := [][]float64{{2, 10}, {6, 20}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if math.Abs(means.At(i, j)-want[i][j]) > 1e-12 {
				t.Errorf("means[%d][%d] = %f, want %f", i, j, means.At(i, j), want[i][j])
			}
		}
	}
}

func TestCheckGrid(t *testing.T) {
	a, _ := nifti.NewImage(2, 2, 1, 3, make([]float64, 12))
	b, _ := nifti.NewImage(2, 2, 1, 1, make([]float64, 4))
	c, _ := nifti.NewImage(3, 2, 1, 1, make([]float64, 6))

	if err := CheckGrid(a, b); err != nil {
		t.Errorf("matching grids should pass: %v", err)
	}
	if err := CheckGrid(a, c); err == nil {
		t.Error("mismatched grids should fail")
	}
}
