package l4perception

import (
	"fmt"
	"sort"
)

// Constants for clustering configuration
const (
	// DefaultDBSCANEps is the default neighborhood radius in meters for DBSCAN
	DefaultDBSCANEps = 0.6
	// DefaultDBSCANMinPts is the default minimum points to form a cluster
	DefaultDBSCANMinPts = 5
)

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps    float64 // Neighborhood radius in meters
	MinPts int     // Minimum points to form a cluster
}

// DefaultDBSCANParams returns default DBSCAN parameters for voxel clouds.
func DefaultDBSCANParams() DBSCANParams {
	return DBSCANParams{
		Eps:    DefaultDBSCANEps,
		MinPts: DefaultDBSCANMinPts,
	}
}

// DBSCANClusterer is the density baseline.
type DBSCANClusterer struct {
	Params DBSCANParams
}

// Name implements Clusterer.
func (d DBSCANClusterer) Name() string { return "dbscan" }

// Cluster implements Clusterer.
func (d DBSCANClusterer) Cluster(points []Point) ([][]int, error) {
	if !(d.Params.Eps > 0) || d.Params.MinPts < 1 {
		return nil, fmt.Errorf("invalid dbscan params %+v", d.Params)
	}
	return DBSCAN(points, d.Params), nil
}

// DBSCAN performs density-based clustering with 3D Euclidean distance.
// Returns the member indices of each cluster in cluster-id order; noise
// points are in no cluster.
func DBSCAN(points []Point, params DBSCANParams) [][]int {
	if len(points) == 0 {
		return nil
	}

	n := len(points)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0

	lo, _ := Bounds(points)
	spatialIndex := NewSpatialIndex(params.Eps, lo)
	spatialIndex.Build(points)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue // Already processed
		}

		neighbors := spatialIndex.RegionQuery(points, i, params.Eps)

		if len(neighbors) < params.MinPts {
			labels[i] = -1 // Mark as noise
			continue
		}

		clusterID++
		expandCluster(points, spatialIndex, labels, i, neighbors, clusterID, params.Eps, params.MinPts)
	}

	return groupLabels(labels, clusterID)
}

// expandCluster expands a cluster from a core point.
func expandCluster(points []Point, si *SpatialIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {

	labels[seedIdx] = clusterID

	// Use a queue-based approach for expansion
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // Noise becomes border point
		}

		if labels[idx] != 0 {
			continue // Already processed
		}

		labels[idx] = clusterID
		newNeighbors := si.RegionQuery(points, idx, eps)

		if len(newNeighbors) >= minPts {
			// Core point - add its neighbors to the queue
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

func groupLabels(labels []int, maxClusterID int) [][]int {
	clusters := make([][]int, maxClusterID)
	for i, label := range labels {
		if label > 0 {
			clusters[label-1] = append(clusters[label-1], i)
		}
	}
	for _, c := range clusters {
		sort.Ints(c)
	}
	return clusters
}
