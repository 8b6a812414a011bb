// Package l6objects owns Layer 6 (Objects) of the segmentation data model.
//
// Responsibilities: turning clusters of voxels into per-point predicted
// instance ids through the voxel trace, and scoring predictions against
// ground-truth instance labels (precision, recall, F-score under one-to-one
// IoU matching).
// Key types: Metrics.
//
// Dependency rule: L6 may depend on L2-L4, but never on ncut or pipeline.
// No SQL/database code is allowed in this package.
package l6objects
