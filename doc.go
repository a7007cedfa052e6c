// Package clustergam fits one generalized additive model per labeled
// cluster of a neuroimaging volume. The response for each cluster is the
// mean intensity of its voxels across the volumes of a 4D image; the
// predictors come from a subject-level covariate table and a user-supplied
// formula template whose response side is substituted per cluster.
//
// A minimal run:
//
//	tpl, _ := formula.NewTemplate("s(age) + sex")
//	res, err := clustergam.FitPerCluster(ctx, clustergam.Config{
//	    DataPath:   "bold.nii.gz",
//	    LabelPath:  "clusters.nii.gz",
//	    Covariates: covs,
//	    Template:   tpl,
//	    NJobs:      4,
//	})
//
// Each cluster's fit is independent; fits are dispatched across a fixed-size
// worker pool and a failure in one cluster is recorded on its slot without
// aborting the others.
package clustergam
