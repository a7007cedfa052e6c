package clustergam

import (
	"github.com/neurogo/clustergam/cluster"
	"github.com/neurogo/clustergam/gam"
	"github.com/neurogo/clustergam/pkg/errors"
)

// Result holds the per-cluster fits of one FitPerCluster run, ordered by
// cluster label.
type Result struct {
	clusters []*cluster.Cluster
	models   []*gam.GAM
	errs     []error
}

// Labels returns the cluster labels in fit order.
func (r *Result) Labels() []int {
	labels := make([]int, len(r.clusters))
	for i, c := range r.clusters {
		labels[i] = c.Label
	}
	return labels
}

// Model returns the fitted model for a cluster label.
func (r *Result) Model(label int) (*gam.GAM, error) {
	i, ok := r.find(label)
	if !ok {
		return nil, errors.Newf("clustergam: no cluster with label %d", label)
	}
	if r.errs[i] != nil {
		return nil, r.errs[i]
	}
	return r.models[i], nil
}

// Err returns the fitting error for a cluster label, nil when the fit
// succeeded.
func (r *Result) Err(label int) error {
	if i, ok := r.find(label); ok {
		return r.errs[i]
	}
	return errors.Newf("clustergam: no cluster with label %d", label)
}

// NumOK returns the number of clusters whose fit succeeded.
func (r *Result) NumOK() int {
	n := 0
	for _, err := range r.errs {
		if err == nil {
			n++
		}
	}
	return n
}

// NumFailed returns the number of clusters whose fit failed.
func (r *Result) NumFailed() int {
	return len(r.errs) - r.NumOK()
}

// Each calls fn for every cluster in label order with its model (nil when
// the fit failed) and error.
func (r *Result) Each(fn func(label int, m *gam.GAM, err error)) {
	for i, c := range r.clusters {
		fn(c.Label, r.models[i], r.errs[i])
	}
}

func (r *Result) find(label int) (int, bool) {
	for i, c := range r.clusters {
		if c.Label == label {
			return i, true
		}
	}
	return 0, false
}
