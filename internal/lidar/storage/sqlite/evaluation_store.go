package sqlite

import (
	"database/sql"
	"fmt"
)

// Evaluation is one window's score within a run.
type Evaluation struct {
	RunID          string  `json:"run_id"`
	StartIndex     int     `json:"start_index"`
	EndIndex       int     `json:"end_index"`
	Skipped        bool    `json:"skipped"` // No ground-truth instances in the window
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	FScore         float64 `json:"fscore"`
	GTInstances    int     `json:"gt_instances"`
	PredInstances  int     `json:"pred_instances"`
	ClusterCount   int     `json:"cluster_count"`
	MapPoints      int     `json:"map_points"`
	FilteredPoints int     `json:"filtered_points"`
	VoxelCount     int     `json:"voxel_count"`
}

// EvaluationStore provides persistence for per-window evaluations.
type EvaluationStore struct {
	db *sql.DB
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(db *sql.DB) *EvaluationStore {
	return &EvaluationStore{db: db}
}

// Insert persists an evaluation. A second insert for the same run and
// window replaces the first.
func (s *EvaluationStore) Insert(e *Evaluation) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO segmentation_evaluations (
				run_id, start_index, end_index, skipped,
				precision, recall, fscore,
				gt_instances, pred_instances, cluster_count,
				map_points, filtered_points, voxel_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RunID, e.StartIndex, e.EndIndex, e.Skipped,
			e.Precision, e.Recall, e.FScore,
			e.GTInstances, e.PredInstances, e.ClusterCount,
			e.MapPoints, e.FilteredPoints, e.VoxelCount,
		)
		return err
	})
}

// ListByRun returns a run's evaluations in window order.
func (s *EvaluationStore) ListByRun(runID string) ([]*Evaluation, error) {
	rows, err := s.db.Query(`
		SELECT run_id, start_index, end_index, skipped,
		       precision, recall, fscore,
		       gt_instances, pred_instances, cluster_count,
		       map_points, filtered_points, voxel_count
		FROM segmentation_evaluations
		WHERE run_id = ?
		ORDER BY start_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(
			&e.RunID, &e.StartIndex, &e.EndIndex, &e.Skipped,
			&e.Precision, &e.Recall, &e.FScore,
			&e.GTInstances, &e.PredInstances, &e.ClusterCount,
			&e.MapPoints, &e.FilteredPoints, &e.VoxelCount,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		evals = append(evals, &e)
	}
	return evals, rows.Err()
}
