// Package ncut owns the point-similarity graph of the segmentation pipeline.
//
// Responsibilities: building the affinity matrix from multi-view instance
// labels and physical distance, conditioning the graph (isolated point
// removal, largest connected component extraction), and recursive
// normalized-cut bipartitioning (Shi & Malik 2000).
// Key types: Graph, AffinityParams, Params, CutStep.
//
// Dependency rule: ncut sits above l4perception but never imports it;
// instance labels arrive through the InstanceLabels interface and points
// are carried as an opaque type parameter.
// No logging, file or SQL code is allowed in this package.
package ncut
