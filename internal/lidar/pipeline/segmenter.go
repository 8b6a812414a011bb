package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/mapseg/internal/config"
	"github.com/banshee-data/mapseg/internal/lidar/dataset"
	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
	"github.com/banshee-data/mapseg/internal/lidar/l4perception"
	"github.com/banshee-data/mapseg/internal/lidar/l6objects"
	"github.com/banshee-data/mapseg/internal/lidar/masks"
	"github.com/banshee-data/mapseg/internal/lidar/ncut"
)

// Point is the point type flowing through the pipeline.
type Point = l4perception.Point

// SegmenterConfig holds dependencies for a Segmenter.
type SegmenterConfig struct {
	Dataset dataset.Dataset
	Tuning  *config.TuningConfig

	// GroundTruth, when non-nil, enables evaluation. Labels are subset by
	// the same filters as the points.
	GroundTruth dataset.GroundTruth

	// Baseline, when non-nil, also clusters the voxel cloud with this
	// algorithm so both results can be compared on the same window.
	Baseline l4perception.Clusterer

	// OnCut, when non-nil, receives every evaluated bipartition.
	OnCut func(window Window, step ncut.CutStep)
}

// Segmenter runs the window pipeline. It holds no per-window state.
type Segmenter struct {
	cfg SegmenterConfig
}

// NewSegmenter validates the configuration and returns a Segmenter.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if cfg.Dataset == nil {
		return nil, errors.New("segmenter: dataset is required")
	}
	if cfg.Tuning == nil {
		cfg.Tuning = config.DefaultTuningConfig()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("segmenter: %w", err)
	}
	return &Segmenter{cfg: cfg}, nil
}

// BaselineResult is the baseline clusterer's output on the same voxels.
type BaselineResult struct {
	Name      string
	Clusters  [][]int // Indices into Result.Voxels
	Predicted []int   // Aligned with Result.Points
	Metrics   *l6objects.Metrics
}

// Result is everything one window produced.
type Result struct {
	Window Window

	MapPoints int     // Assembled map size before filtering
	Points    []Point // Filtered cloud the voxels were built from
	Voxels    []Point // Voxel centroids
	// VoxelTrace[i] lists the Points merged into Voxels[i].
	VoxelTrace [][]int

	// Graph is the conditioned graph that was partitioned. Its trace
	// indexes Points.
	Graph    ncut.Graph[Point]
	Clusters [][]int // Indices into Graph.Points
	Cuts     []ncut.CutStep

	// Ground truth aligned with Points; nil without a GroundTruth source.
	GTSemantic []int
	GTInstance []int

	Predicted []int // Aligned with Points; nil without ground truth
	Metrics   *l6objects.Metrics

	// Skipped is set when the window has no ground-truth instances, so
	// there is nothing to score.
	Skipped bool

	Baseline *BaselineResult
}

// Run segments one window.
func (s *Segmenter) Run(ctx context.Context, w Window) (*Result, error) {
	t := s.cfg.Tuning
	offset := t.GetImageOffset()
	if err := config.ValidateWindow(w.Start, w.End, offset); err != nil {
		return nil, err
	}
	res := &Result{Window: w}

	scans, err := dataset.LoadScans(s.cfg.Dataset, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	points := l2frames.AssembleMap(scans)
	res.MapPoints = len(points)

	views, err := s.buildViews(w.Start-offset, w.End)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	instances, err := l4perception.BuildInstanceMatrix(points, views, t.GetVisibilityTolerance())
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}

	if s.cfg.GroundTruth != nil {
		res.GTSemantic, res.GTInstance, err = dataset.LoadWindowLabels(s.cfg.GroundTruth, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		if len(res.GTInstance) != len(points) {
			return nil, fmt.Errorf("window %s: %d labels for %d points", w, len(res.GTInstance), len(points))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Filters. Every parallel array is subset with the same indices.
	keep := func(idx []int) {
		points = l4perception.Subset(points, idx)
		instances = instances.Subset(idx)
		if res.GTInstance != nil {
			res.GTSemantic = l4perception.Subset(res.GTSemantic, idx)
			res.GTInstance = l4perception.Subset(res.GTInstance, idx)
		}
	}
	keep(l4perception.NotZeroIndices(instances))

	firstCamera, err := dataset.CameraPose(s.cfg.Dataset, t.GetCamName(), w.Start)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	inCube, err := l4perception.InCubeIndices(points, firstCamera, t.GetCubeRadius())
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	keep(inCube)

	inliers, err := l4perception.StatisticalOutlierIndices(points, t.GetNbNeighbors(), t.GetStdRatio())
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	keep(inliers)
	res.Points = points

	voxels, err := l4perception.VoxelDownsample(points, instances, t.GetVoxelSize())
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	res.Voxels = voxels.Points
	res.VoxelTrace = voxels.Trace
	diagf("window %s: %d points -> %d filtered -> %d voxels", w, res.MapPoints, len(points), len(voxels.Points))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.segment(w, voxels, res); err != nil {
		return nil, fmt.Errorf("window %s: %w", w, err)
	}
	if s.cfg.Baseline != nil {
		if err := s.runBaseline(voxels, res); err != nil {
			return nil, fmt.Errorf("window %s baseline: %w", w, err)
		}
	}

	if res.Metrics != nil {
		diagf("window %s: %d clusters, precision=%.3f recall=%.3f fscore=%.3f",
			w, len(res.Clusters), res.Metrics.Precision, res.Metrics.Recall, res.Metrics.FScore)
	} else {
		diagf("window %s: %d clusters", w, len(res.Clusters))
	}
	return res, nil
}

// buildViews loads, reduces and rasterises the masks of images [first, end).
// An image without masks becomes a view that labels nothing.
func (s *Segmenter) buildViews(first, end int) ([]l4perception.View, error) {
	t := s.cfg.Tuning
	cam, err := s.cfg.Dataset.Camera(t.GetCamName())
	if err != nil {
		return nil, err
	}

	views := make([]l4perception.View, 0, end-first)
	for img := first; img < end; img++ {
		ms, err := s.cfg.Dataset.ImageInstances(cam.Name, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", img, err)
		}
		if len(ms) == 0 {
			opsf("image %d of %s has no masks", img, cam.Name)
			views = append(views, l4perception.View{})
			continue
		}
		reduced := masks.ReduceDetail(ms, t.GetUnionThreshold(), t.GetMaskThreshold())
		tracef("image %d: %d masks -> %d after reduction", img, len(ms), len(reduced))

		camPose, err := dataset.CameraPose(s.cfg.Dataset, cam.Name, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", img, err)
		}
		worldToCamera, err := camPose.Inverse()
		if err != nil {
			return nil, fmt.Errorf("image %d camera pose: %w", img, err)
		}
		views = append(views, l4perception.View{
			Labels:        masks.ToLabelImage(reduced, ms[0].Width, ms[0].Height),
			WorldToCamera: worldToCamera,
			K:             cam.K,
		})
	}
	return views, nil
}

// segment builds the affinity graph over voxels, conditions it, partitions
// it and scores the clusters.
func (s *Segmenter) segment(w Window, voxels l4perception.VoxelResult, res *Result) error {
	t := s.cfg.Tuning

	distance := l4perception.PairwiseDistances(voxels.Points)
	affinity, _, err := ncut.BuildAffinity(voxels.Instances, distance, ncut.AffinityParams{
		ProximityThreshold: t.GetProximityThreshold(),
		Beta:               t.GetBeta(),
		Alpha:              t.GetAlpha(),
	})
	if err != nil {
		return err
	}

	g, err := ncut.Condition(
		ncut.Graph[Point]{Affinity: affinity, Points: voxels.Points, Trace: voxels.Trace},
		ncut.RemoveIsolated[Point],
		ncut.ExtractLargestComponent[Point],
	)
	if err != nil {
		return err
	}
	res.Graph = g
	diagf("window %s: graph %d -> %d vertices after conditioning", w, len(voxels.Points), g.Len())

	vertices := make([]int, g.Len())
	for i := range vertices {
		vertices[i] = i
	}
	params := ncut.Params{
		Threshold:        t.GetNCutThreshold(),
		EigenvaluesCount: t.GetEigenvaluesCount(),
		NumCuts:          t.GetNumCuts(),
		OnCut: func(step ncut.CutStep) {
			res.Cuts = append(res.Cuts, step)
			tracef("window %s: cut depth=%d size=%d cost=%.4f split=%v", w, step.Depth, step.Size, step.Cost, step.Split)
			if s.cfg.OnCut != nil {
				s.cfg.OnCut(w, step)
			}
		},
	}
	res.Clusters, err = ncut.Partition(g.Affinity, vertices, params)
	if err != nil {
		return err
	}

	if res.GTInstance == nil {
		return nil
	}
	if !l6objects.HasInstances(res.GTInstance) {
		res.Skipped = true
		opsf("window %s: no ground-truth instances, skipping evaluation", w)
		return nil
	}
	res.Predicted, res.Metrics, err = s.evaluate(res.GTInstance, res.Clusters, g.Trace)
	return err
}

// ClusterPoints maps each ncut cluster to the filtered-point indices it
// covers, in ascending order.
func (r *Result) ClusterPoints() [][]int {
	return expandTrace(r.Clusters, r.Graph.Trace)
}

// BaselinePoints maps each baseline cluster to the filtered-point indices
// it covers. Nil when no baseline ran.
func (r *Result) BaselinePoints() [][]int {
	if r.Baseline == nil {
		return nil
	}
	return expandTrace(r.Baseline.Clusters, r.VoxelTrace)
}

func expandTrace(clusters, trace [][]int) [][]int {
	out := make([][]int, len(clusters))
	for i, c := range clusters {
		var pts []int
		for _, v := range c {
			pts = append(pts, trace[v]...)
		}
		sort.Ints(pts)
		out[i] = pts
	}
	return out
}

func (s *Segmenter) runBaseline(voxels l4perception.VoxelResult, res *Result) error {
	clusters, err := s.cfg.Baseline.Cluster(voxels.Points)
	if err != nil {
		return err
	}
	b := &BaselineResult{Name: s.cfg.Baseline.Name(), Clusters: clusters}
	res.Baseline = b
	if res.GTInstance == nil || res.Skipped {
		return nil
	}
	b.Predicted, b.Metrics, err = s.evaluate(res.GTInstance, clusters, voxels.Trace)
	return err
}

func (s *Segmenter) evaluate(gt []int, clusters, trace [][]int) ([]int, *l6objects.Metrics, error) {
	t := s.cfg.Tuning
	pred, err := l6objects.PredictedInstances(gt, clusters, trace, t.GetInstanceThreshold())
	if err != nil {
		return nil, nil, err
	}
	m, err := l6objects.Evaluate(pred, gt, t.GetIoUThreshold())
	if err != nil {
		return nil, nil, err
	}
	return pred, &m, nil
}
