package preprocessing

import (
	"math"
	"testing"

	"github.com/neurogo/clustergam/dataset"
	"github.com/neurogo/clustergam/pkg/errors"
)

func newTable(t *testing.T) *dataset.Dataset {
	t.Helper()
	d, err := dataset.New(
		[]string{"age", "sex", "score"},
		[][]float64{
			{20, 30, 40, 50},
			{0, 1, 0, 1},
			{1, 1, 1, 1},
		},
	)
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	return d
}

func TestStandardizerTransform(t *testing.T) {
	d := newTable(t)

	s := NewStandardizer()
	out, err := s.FitTransform(d, "age")
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}

	col, err := out.Column("age")
	if err != nil {
		t.Fatal(err)
	}
	var sum, sumSq float64
	for _, v := range col {
		sum += v
		sumSq += v * v
	}
	if math.Abs(sum) > 1e-10 {
		t.Errorf("standardized mean = %g, want 0", sum/4)
	}
	if math.Abs(sumSq/4-1) > 1e-10 {
		t.Errorf("standardized variance = %g, want 1", sumSq/4)
	}

	// The input dataset is untouched.
	orig, _ := d.Column("age")
	if orig[0] != 20 {
		t.Errorf("input mutated: age[0] = %g", orig[0])
	}

	if mean, ok := s.Mean("age"); !ok || math.Abs(mean-35) > 1e-10 {
		t.Errorf("Mean(age) = %g, %t; want 35, true", mean, ok)
	}
}

func TestStandardizerRoundTrip(t *testing.T) {
	d := newTable(t)

	s := NewStandardizer()
	scaled, err := s.FitTransform(d, "age", "sex")
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	back, err := s.InverseTransform(scaled)
	if err != nil {
		t.Fatalf("InverseTransform: %v", err)
	}

	want, _ := d.Column("age")
	got, _ := back.Column("age")
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-10 {
			t.Errorf("round trip age[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestStandardizerConstantColumn(t *testing.T) {
	d := newTable(t)

	out, err := NewStandardizer().FitTransform(d, "score")
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	col, _ := out.Column("score")
	// Scale falls back to 1, so a constant column only gets centered.
	for i, v := range col {
		if math.Abs(v) > 1e-10 {
			t.Errorf("score[%d] = %g, want 0", i, v)
		}
	}
}

func TestStandardizerErrors(t *testing.T) {
	d := newTable(t)

	s := NewStandardizer()
	if _, err := s.Transform(d); err == nil {
		t.Error("Transform before Fit should fail")
	} else {
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("want NotFittedError, got %v", err)
		}
	}

	if err := s.Fit(d); err == nil {
		t.Error("Fit with no columns should fail")
	}
	if err := s.Fit(d, "missing"); err == nil {
		t.Error("Fit with unknown column should fail")
	}
}

func TestRangeScaler(t *testing.T) {
	d := newTable(t)

	r := NewRangeScaler()
	out, err := r.FitTransform(d, "age")
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	col, _ := out.Column("age")
	want := []float64{0, 1.0 / 3, 2.0 / 3, 1}
	for i := range want {
		if math.Abs(col[i]-want[i]) > 1e-10 {
			t.Errorf("age[%d] = %g, want %g", i, col[i], want[i])
		}
	}
}

func TestRangeScalerEmptyInterval(t *testing.T) {
	d := newTable(t)

	r := NewRangeScaler()
	r.Hi = r.Lo
	if err := r.Fit(d, "age"); err == nil {
		t.Error("empty target interval should fail")
	}
}
