package sqlite

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mapseg/internal/lidar/l4perception"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "segment.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertRun(t *testing.T, db *sql.DB) *Run {
	t.Helper()
	run := &Run{
		Sequence:   "00",
		Algorithm:  "ncut",
		StartFrame: 0,
		EndFrame:   8,
		ParamsJSON: json.RawMessage(`{"alpha":5}`),
	}
	require.NoError(t, NewRunStore(db).Insert(run))
	return run
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := MigrateVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// Migrating again is a no-op.
	require.NoError(t, MigrateUp(db))
}

func TestOpen_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.db")
	db, err := Open(path)
	require.NoError(t, err)
	run := &Run{Sequence: "05", Algorithm: "dbscan", EndFrame: 4}
	require.NoError(t, NewRunStore(db).Insert(run))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := NewRunStore(db).Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "dbscan", got.Algorithm)
}

func TestRunStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)
	run := insertRun(t, db)

	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAt)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	second := &Run{Sequence: "00", Algorithm: "dbscan", EndFrame: 8, CreatedAt: run.CreatedAt + 1}
	require.NoError(t, store.Insert(second))
	assert.Nil(t, second.ParamsJSON)

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID, "newest first")

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Insert(&Run{RunID: run.RunID, Sequence: "00", Algorithm: "ncut"}), "duplicate id")
}

func TestRunStore_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	run := insertRun(t, db)
	evals := NewEvaluationStore(db)
	clusters := NewClusterStore(db)

	require.NoError(t, evals.Insert(&Evaluation{RunID: run.RunID, StartIndex: 0, EndIndex: 4}))
	require.NoError(t, clusters.InsertBatch([]Cluster{{RunID: run.RunID, ClusterIndex: 0}}))

	store := NewRunStore(db)
	require.NoError(t, store.Delete(run.RunID))
	assert.ErrorIs(t, store.Delete(run.RunID), ErrNotFound)

	left, err := evals.ListByRun(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, left)
	rows, err := clusters.ListByWindow(run.RunID, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEvaluationStore(t *testing.T) {
	db := setupTestDB(t)
	run := insertRun(t, db)
	store := NewEvaluationStore(db)

	second := &Evaluation{
		RunID: run.RunID, StartIndex: 4, EndIndex: 8,
		Precision: 0.5, Recall: 1, FScore: 2.0 / 3.0,
		GTInstances: 2, PredInstances: 4, ClusterCount: 5,
		MapPoints: 1000, FilteredPoints: 400, VoxelCount: 120,
	}
	first := &Evaluation{RunID: run.RunID, StartIndex: 0, EndIndex: 4, Skipped: true}
	require.NoError(t, store.Insert(second))
	require.NoError(t, store.Insert(first))

	got, err := store.ListByRun(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])

	// Re-inserting a window replaces it.
	second.FScore = 0.9
	require.NoError(t, store.Insert(second))
	got, err = store.ListByRun(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.9, got[1].FScore)

	err = store.Insert(&Evaluation{RunID: "no-such-run", StartIndex: 0, EndIndex: 4})
	assert.Error(t, err, "foreign key enforced")
}

func TestClusterStore(t *testing.T) {
	db := setupTestDB(t)
	run := insertRun(t, db)
	store := NewClusterStore(db)

	points := []l4perception.Point{
		{X: 0, Y: 0, Z: 0},
		{X: 2, Y: 1, Z: 1},
		{X: 1, Y: 0, Z: 2},
	}
	summary := l4perception.SummarizeCluster(points, []int{0, 1, 2})
	rows := []Cluster{
		ClusterFromSummary(run.RunID, 4, 1, 2, summary),
		ClusterFromSummary(run.RunID, 4, 0, 3, summary),
	}
	require.NoError(t, store.InsertBatch(rows))
	require.NoError(t, store.InsertBatch(nil))

	got, err := store.ListByWindow(run.RunID, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ClusterIndex)
	assert.Equal(t, rows[1], got[0])
	assert.Equal(t, 3, got[0].PointsCount)
	assert.InDelta(t, 1.0, got[0].CentroidX, 1e-12)
	assert.Equal(t, 2.0, got[0].MaxX)

	other, err := store.ListByWindow(run.RunID, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSummarize(t *testing.T) {
	db := setupTestDB(t)
	run := insertRun(t, db)
	store := NewEvaluationStore(db)

	for _, e := range []*Evaluation{
		{StartIndex: 0, Precision: 1, Recall: 1, FScore: 1},
		{StartIndex: 4, Precision: 0.5, Recall: 0, FScore: 0},
		{StartIndex: 8, Skipped: true},
		{StartIndex: 12, Precision: 0, Recall: 0.5, FScore: 0},
		{StartIndex: 16, Precision: 1, Recall: 0.5, FScore: 2.0 / 3.0},
	} {
		e.RunID = run.RunID
		e.EndIndex = e.StartIndex + 4
		require.NoError(t, store.Insert(e))
	}

	sum, err := store.Summarize(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Windows)
	assert.Equal(t, 1, sum.Skipped)

	assert.InDelta(t, 0.625, sum.Precision.Mean, 1e-12)
	assert.Equal(t, 0.5, sum.Precision.ShareOne)
	assert.Equal(t, 0.25, sum.Precision.ShareZero)

	assert.InDelta(t, 0.5, sum.Recall.Mean, 1e-12)
	assert.Equal(t, 0.25, sum.Recall.ShareOne)
	assert.Equal(t, 0.25, sum.Recall.ShareZero)

	assert.InDelta(t, (1+2.0/3.0)/4, sum.FScore.Mean, 1e-12)
	assert.Equal(t, 0.25, sum.FScore.ShareOne)
	assert.Equal(t, 0.5, sum.FScore.ShareZero)
}

func TestSummarizeEvaluations_AllSkipped(t *testing.T) {
	sum := SummarizeEvaluations("r", []*Evaluation{{Skipped: true}})
	assert.Equal(t, 1, sum.Windows)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, ScoreSummary{}, sum.FScore)
}
