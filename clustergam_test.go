package clustergam

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/formula"
	"github.com/neurogo/clustergam/gam"
	"github.com/neurogo/clustergam/nifti"
	"github.com/neurogo/clustergam/pkg/errors"
)

// synthetic builds an 8-voxel grid with clusters 1 and 2 and a 4D image
// where cluster 1's intensity is 2*age+1 and cluster 2's is constant 5.
func synthetic(t *testing.T, nt int) (data, labels *nifti.Image, covs *dataset.Dataset) {
	t.Helper()

	labelVals := []float64{1, 1, 0, 2, 2, 1, 0, 1}
	labels, err := nifti.NewImage(4, 2, 1, 1, labelVals)
	if err != nil {
		t.Fatalf("labels: %v", err)
	}

	age := make([]float64, nt)
	vox := make([]float64, 0, 8*nt)
	for s := 0; s < nt; s++ {
		age[s] = 20 + 40*float64(s)/float64(nt-1)
		for _, lbl := range labelVals {
			switch lbl {
			case 1:
				vox = append(vox, 2*age[s]+1)
			case 2:
				vox = append(vox, 5)
			default:
				vox = append(vox, 1000) // background, must be ignored
			}
		}
	}
	data, err = nifti.NewImage(4, 2, 1, nt, vox)
	if err != nil {
		t.Fatalf("data: %v", err)
	}

	covs, err = dataset.New([]string{"age"}, [][]float64{age})
	if err != nil {
		t.Fatalf("covariates: %v", err)
	}
	return data, labels, covs
}

func mustTemplate(t *testing.T, src string) formula.Template {
	t.Helper()
	tpl, err := formula.NewTemplate(src)
	if err != nil {
		t.Fatalf("NewTemplate(%q) failed: %v", src, err)
	}
	return tpl
}

func TestFitPerCluster(t *testing.T) {
	data, labels, covs := synthetic(t, 20)

	res, err := FitPerCluster(context.Background(), Config{
		Data:       data,
		Labels:     labels,
		Covariates: covs,
		Template:   mustTemplate(t, "age"),
		NJobs:      2,
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}

	wantLabels := []int{1, 2}
	got := res.Labels()
	if len(got) != 2 || got[0] != wantLabels[0] || got[1] != wantLabels[1] {
		t.Fatalf("Labels = %v, want %v", got, wantLabels)
	}
	if res.NumOK() != 2 || res.NumFailed() != 0 {
		t.Fatalf("ok/failed = %d/%d, want 2/0", res.NumOK(), res.NumFailed())
	}

	m1, err := res.Model(1)
	if err != nil {
		t.Fatalf("Model(1) failed: %v", err)
	}
	coef := m1.Coefficients()
	if math.Abs(coef[0]-1) > 1e-6 || math.Abs(coef[1]-2) > 1e-6 {
		t.Errorf("cluster 1 coefficients = %v, want [1 2]", coef)
	}

	m2, err := res.Model(2)
	if err != nil {
		t.Fatalf("Model(2) failed: %v", err)
	}
	coef = m2.Coefficients()
	if math.Abs(coef[0]-5) > 1e-6 || math.Abs(coef[1]) > 1e-6 {
		t.Errorf("cluster 2 coefficients = %v, want [5 0]", coef)
	}

	if _, err := res.Model(99); err == nil {
		t.Error("Model(99) should fail for an unknown label")
	}

	seen := 0
	res.Each(func(label int, m *gam.GAM, err error) {
		if err != nil || m == nil {
			t.Errorf("cluster %d: unexpected failure: %v", label, err)
		}
		seen++
	})
	if seen != 2 {
		t.Errorf("Each visited %d clusters, want 2", seen)
	}
}

func TestFitPerClusterStandardize(t *testing.T) {
	data, labels, covs := synthetic(t, 20)

	res, err := FitPerCluster(context.Background(), Config{
		Data:        data,
		Labels:      labels,
		Covariates:  covs,
		Template:    mustTemplate(t, "age"),
		Standardize: true,
		NJobs:       1,
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}

	m, err := res.Model(1)
	if err != nil {
		t.Fatalf("Model(1) failed: %v", err)
	}

	// Standardizing the covariate changes the coefficients but not the fit:
	// the fitted values still reproduce 2*age + 1.
	age, _ := covs.Column("age")
	for i, f := range m.Fitted() {
		want := 2*age[i] + 1
		if math.Abs(f-want) > 1e-6 {
			t.Fatalf("fitted[%d] = %g, want %g", i, f, want)
		}
	}
	// The intercept absorbs the covariate mean.
	if coef := m.Coefficients(); math.Abs(coef[0]-81) > 1e-6 {
		t.Errorf("intercept on standardized scale = %g, want 81", coef[0])
	}
}

func TestFitPerClusterFromFiles(t *testing.T) {
	data, labels, covs := synthetic(t, 12)

	dir := t.TempDir()
	dataPath := filepath.Join(dir, "bold.nii.gz")
	labelPath := filepath.Join(dir, "clusters.nii")
	if err := nifti.Save(dataPath, data); err != nil {
		t.Fatalf("Save data: %v", err)
	}
	if err := nifti.Save(labelPath, labels); err != nil {
		t.Fatalf("Save labels: %v", err)
	}

	res, err := FitPerCluster(context.Background(), Config{
		DataPath:   dataPath,
		LabelPath:  labelPath,
		Covariates: covs,
		Template:   mustTemplate(t, "age"),
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}
	if res.NumOK() != 2 {
		t.Errorf("NumOK = %d, want 2", res.NumOK())
	}

	m1, err := res.Model(1)
	if err != nil {
		t.Fatalf("Model(1) failed: %v", err)
	}
	// float32 storage costs some precision relative to the in-memory run.
	if got := m1.Coefficients()[1]; math.Abs(got-2) > 1e-3 {
		t.Errorf("cluster 1 slope = %f, want ~2", got)
	}
}

func TestFitPerClusterMergesDataPaths(t *testing.T) {
	data, labels, covs := synthetic(t, 10)

	// Split the 10 volumes into two 5-volume files.
	nx, ny, nz, _ := data.Dims()
	half := data.NVoxels() * 5
	first, err := nifti.NewImage(nx, ny, nz, 5, data.Data()[:half])
	if err != nil {
		t.Fatalf("first half: %v", err)
	}
	second, err := nifti.NewImage(nx, ny, nz, 5, data.Data()[half:])
	if err != nil {
		t.Fatalf("second half: %v", err)
	}

	dir := t.TempDir()
	p1 := filepath.Join(dir, "run1.nii")
	p2 := filepath.Join(dir, "run2.nii")
	if err := nifti.Save(p1, first); err != nil {
		t.Fatalf("Save run1: %v", err)
	}
	if err := nifti.Save(p2, second); err != nil {
		t.Fatalf("Save run2: %v", err)
	}

	res, err := FitPerCluster(context.Background(), Config{
		DataPaths:  []string{p1, p2},
		Labels:     labels,
		Covariates: covs,
		Template:   mustTemplate(t, "age"),
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}
	if res.NumOK() != 2 {
		t.Errorf("NumOK = %d, want 2", res.NumOK())
	}
}

func TestFitPerClusterValidation(t *testing.T) {
	data, labels, covs := synthetic(t, 10)
	tpl := mustTemplate(t, "age")

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no data source", cfg: Config{Labels: labels, Covariates: covs, Template: tpl}},
		{name: "two data sources", cfg: Config{Data: data, DataPath: "x.nii", Labels: labels, Covariates: covs, Template: tpl}},
		{name: "no labels", cfg: Config{Data: data, Covariates: covs, Template: tpl}},
		{name: "no covariates", cfg: Config{Data: data, Labels: labels, Template: tpl}},
		{name: "empty template", cfg: Config{Data: data, Labels: labels, Covariates: covs}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FitPerCluster(context.Background(), tt.cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestFitPerClusterRowMismatch(t *testing.T) {
	data, labels, _ := synthetic(t, 10)
	covs, err := dataset.New([]string{"age"}, [][]float64{{1, 2, 3}})
	if err != nil {
		t.Fatalf("covariates: %v", err)
	}

	_, err = FitPerCluster(context.Background(), Config{
		Data: data, Labels: labels, Covariates: covs,
		Template: mustTemplate(t, "age"),
	})
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestFitPerClusterGridMismatch(t *testing.T) {
	data, _, covs := synthetic(t, 10)
	badLabels, err := nifti.NewImage(2, 2, 1, 1, []float64{1, 1, 2, 2})
	if err != nil {
		t.Fatalf("labels: %v", err)
	}

	if _, err := FitPerCluster(context.Background(), Config{
		Data: data, Labels: badLabels, Covariates: covs,
		Template: mustTemplate(t, "age"),
	}); err == nil {
		t.Error("expected a grid mismatch error")
	}
}

func TestFitPerClusterRecordsPerClusterFailures(t *testing.T) {
	data, labels, _ := synthetic(t, 10)

	// A constant covariate cannot support a smooth basis, so every
	// cluster's fit fails, but the run itself succeeds.
	covs, err := dataset.New([]string{"age"}, [][]float64{{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}})
	if err != nil {
		t.Fatalf("covariates: %v", err)
	}

	res, err := FitPerCluster(context.Background(), Config{
		Data: data, Labels: labels, Covariates: covs,
		Template: mustTemplate(t, "s(age)"),
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}
	if res.NumFailed() != 2 || res.NumOK() != 0 {
		t.Fatalf("ok/failed = %d/%d, want 0/2", res.NumOK(), res.NumFailed())
	}
	if res.Err(1) == nil || res.Err(2) == nil {
		t.Error("per-cluster errors should be recorded")
	}
	if _, err := res.Model(1); err == nil {
		t.Error("Model on a failed cluster should return its error")
	}
}

func TestFitPerClusterCanceledContext(t *testing.T) {
	data, labels, covs := synthetic(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := FitPerCluster(ctx, Config{
		Data: data, Labels: labels, Covariates: covs,
		Template: mustTemplate(t, "age"),
	})
	if err != nil {
		t.Fatalf("FitPerCluster failed: %v", err)
	}
	if res.NumFailed() != 2 {
		t.Fatalf("NumFailed = %d, want 2", res.NumFailed())
	}
	if !errors.Is(res.Err(1), context.Canceled) {
		t.Errorf("Err(1) = %v, want context.Canceled", res.Err(1))
	}
}
