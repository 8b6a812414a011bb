package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/mapseg/internal/lidar/l4perception"
)

// Cluster is the stored geometry of one output cluster of a window.
type Cluster struct {
	RunID        string
	StartIndex   int
	ClusterIndex int
	VoxelCount   int
	PointsCount  int
	CentroidX    float64
	CentroidY    float64
	CentroidZ    float64
	MinX         float64
	MinY         float64
	MinZ         float64
	MaxX         float64
	MaxY         float64
	MaxZ         float64
	HeightP95    float64
}

// ClusterFromSummary builds a storable row from a cluster summary.
func ClusterFromSummary(runID string, startIndex, clusterIndex, voxelCount int, s l4perception.ClusterSummary) Cluster {
	return Cluster{
		RunID:        runID,
		StartIndex:   startIndex,
		ClusterIndex: clusterIndex,
		VoxelCount:   voxelCount,
		PointsCount:  s.PointsCount,
		CentroidX:    s.Centroid.X,
		CentroidY:    s.Centroid.Y,
		CentroidZ:    s.Centroid.Z,
		MinX:         s.Min.X,
		MinY:         s.Min.Y,
		MinZ:         s.Min.Z,
		MaxX:         s.Max.X,
		MaxY:         s.Max.Y,
		MaxZ:         s.Max.Z,
		HeightP95:    s.HeightP95,
	}
}

// ClusterStore provides persistence for output clusters.
type ClusterStore struct {
	db *sql.DB
}

// NewClusterStore creates a new ClusterStore.
func NewClusterStore(db *sql.DB) *ClusterStore {
	return &ClusterStore{db: db}
}

// InsertBatch persists a window's clusters in one transaction.
func (s *ClusterStore) InsertBatch(clusters []Cluster) error {
	if len(clusters) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO segmentation_clusters (
				run_id, start_index, cluster_index, voxel_count, points_count,
				centroid_x, centroid_y, centroid_z,
				min_x, min_y, min_z, max_x, max_y, max_z, height_p95
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range clusters {
			if _, err := stmt.Exec(
				c.RunID, c.StartIndex, c.ClusterIndex, c.VoxelCount, c.PointsCount,
				c.CentroidX, c.CentroidY, c.CentroidZ,
				c.MinX, c.MinY, c.MinZ, c.MaxX, c.MaxY, c.MaxZ, c.HeightP95,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListByWindow returns the clusters of one window in cluster order.
func (s *ClusterStore) ListByWindow(runID string, startIndex int) ([]Cluster, error) {
	rows, err := s.db.Query(`
		SELECT run_id, start_index, cluster_index, voxel_count, points_count,
		       centroid_x, centroid_y, centroid_z,
		       min_x, min_y, min_z, max_x, max_y, max_z, height_p95
		FROM segmentation_clusters
		WHERE run_id = ? AND start_index = ?
		ORDER BY cluster_index`, runID, startIndex)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(
			&c.RunID, &c.StartIndex, &c.ClusterIndex, &c.VoxelCount, &c.PointsCount,
			&c.CentroidX, &c.CentroidY, &c.CentroidZ,
			&c.MinX, &c.MinY, &c.MinZ, &c.MaxX, &c.MaxY, &c.MaxZ, &c.HeightP95,
		); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
