// Package l4perception owns Layer 4 (Perception) of the segmentation data model.
//
// Responsibilities: projecting the world-frame map into camera images to
// build the per-view instance matrix, point filters (not-zero, in-cube,
// statistical outlier), voxel downsampling with a provenance trace,
// pairwise distances, and a DBSCAN baseline clusterer.
// Key types: Point, InstanceMatrix, VoxelResult, SpatialIndex.
//
// Filters return kept indices; callers subset every parallel array with
// the same indices so points, instance rows and labels stay aligned.
//
// Dependency rule: L4 may depend on L2 and masks, but never on ncut or L6+.
// No SQL/database code is allowed in this package.
package l4perception
