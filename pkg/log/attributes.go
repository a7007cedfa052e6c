package log

// Standard attribute keys used across clustergam logging. Hierarchical names
// keep per-cluster fit logs filterable in aggregate.
const (
	// ModelNameKey identifies the model type, e.g. "GAM".
	ModelNameKey = "model.name"

	// OperationKey names the operation, e.g. "fit", "predict", "reduce".
	OperationKey = "op"

	// ClusterKey is the integer label of the cluster being fitted.
	ClusterKey = "cluster.label"

	// ClustersKey is the number of clusters in a run.
	ClustersKey = "cluster.count"

	// VolumesKey is the number of volumes/timepoints in the data image.
	VolumesKey = "data.volumes"

	// VoxelsKey is the number of voxels contributing to a reduction.
	VoxelsKey = "data.voxels"

	// FormulaKey carries the model formula string.
	FormulaKey = "model.formula"

	// WorkersKey is the size of the fitting worker pool.
	WorkersKey = "pool.workers"

	// DurationMsKey is elapsed wall time in milliseconds.
	DurationMsKey = "duration_ms"
)
