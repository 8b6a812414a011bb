// Command segment runs map instance segmentation over a KITTI sequence.
// Each window of consecutive scans is assembled, filtered, partitioned by
// normalized cut and, when labels are present, scored against the ground
// truth. Results are stored in SQLite and optionally charted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/mapseg/internal/config"
	"github.com/banshee-data/mapseg/internal/lidar/dataset"
	"github.com/banshee-data/mapseg/internal/lidar/l4perception"
	"github.com/banshee-data/mapseg/internal/lidar/l6objects"
	"github.com/banshee-data/mapseg/internal/lidar/monitor"
	"github.com/banshee-data/mapseg/internal/lidar/ncut"
	"github.com/banshee-data/mapseg/internal/lidar/pipeline"
	"github.com/banshee-data/mapseg/internal/lidar/storage/sqlite"
	"github.com/banshee-data/mapseg/internal/version"
)

// Config holds the command-line configuration.
type Config struct {
	Root       string
	Sequence   string
	MasksDir   string
	ConfigPath string
	DBPath     string
	From       int
	To         int
	Baseline   bool
	NoEval     bool
	ChartDir   string
	Verbose    bool
	Version    bool
}

func main() {
	cfg := parseFlags()
	if cfg.Version {
		fmt.Println(version.String("segment"))
		return
	}
	if cfg.Root == "" || cfg.MasksDir == "" {
		log.Fatal("-root and -masks are required")
	}

	tuning := config.DefaultTuningConfig()
	if cfg.ConfigPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(cfg.ConfigPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if cfg.Verbose {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, tuning); err != nil {
		log.Fatalf("Segmentation failed: %v", err)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Root, "root", "", "KITTI odometry root (contains sequences/ and poses/)")
	flag.StringVar(&cfg.Sequence, "seq", "00", "Sequence name")
	flag.StringVar(&cfg.MasksDir, "masks", "", "Directory of per-camera instance masks")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config (.json or .yaml); defaults when empty")
	flag.StringVar(&cfg.DBPath, "db", "segment.db", "SQLite database for runs and evaluations")
	flag.IntVar(&cfg.From, "from", -1, "First frame; defaults to the image offset")
	flag.IntVar(&cfg.To, "to", -1, "End frame (exclusive); defaults to the sequence length")
	flag.BoolVar(&cfg.Baseline, "baseline", false, "Also run the DBSCAN baseline on every window")
	flag.BoolVar(&cfg.NoEval, "no-eval", false, "Skip ground-truth evaluation")
	flag.StringVar(&cfg.ChartDir, "charts", "", "Write cluster pages and the cut-cost plot to this directory")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable diagnostic and trace logging")
	flag.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, cfg Config, tuning *config.TuningConfig) error {
	ds, err := dataset.OpenKitti(dataset.KittiOptions{
		Root:     cfg.Root,
		Sequence: cfg.Sequence,
		MasksDir: cfg.MasksDir,
	})
	if err != nil {
		return err
	}

	from, to := cfg.From, cfg.To
	if from < 0 {
		from = tuning.GetImageOffset()
	}
	if to < 0 || to > ds.Len() {
		to = ds.Len()
	}
	windows, err := pipeline.Windows(from, to, tuning.GetWindowSize())
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	recorder := monitor.NewCutRecorder()
	segCfg := pipeline.SegmenterConfig{
		Dataset: ds,
		Tuning:  tuning,
		OnCut: func(w pipeline.Window, step ncut.CutStep) {
			recorder.Record(w.String(), step)
		},
	}
	if !cfg.NoEval {
		segCfg.GroundTruth = ds
	}
	if cfg.Baseline {
		segCfg.Baseline = l4perception.DBSCANClusterer{Params: l4perception.DBSCANParams{
			Eps:    tuning.GetDBSCANEps(),
			MinPts: tuning.GetDBSCANMinPts(),
		}}
	}
	seg, err := pipeline.NewSegmenter(segCfg)
	if err != nil {
		return err
	}

	params, err := json.Marshal(tuning)
	if err != nil {
		return fmt.Errorf("marshal tuning: %w", err)
	}
	runs := sqlite.NewRunStore(db)
	ncutRun := &sqlite.Run{Sequence: cfg.Sequence, Algorithm: "ncut", StartFrame: from, EndFrame: to, ParamsJSON: params}
	if err := runs.Insert(ncutRun); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	var baselineRun *sqlite.Run
	if segCfg.Baseline != nil {
		baselineRun = &sqlite.Run{Sequence: cfg.Sequence, Algorithm: segCfg.Baseline.Name(), StartFrame: from, EndFrame: to, ParamsJSON: params}
		if err := runs.Insert(baselineRun); err != nil {
			return fmt.Errorf("insert baseline run: %w", err)
		}
	}
	log.Printf("Run %s: sequence %s frames [%d,%d) in %d windows", ncutRun.RunID, cfg.Sequence, from, to, len(windows))

	w := &resultWriter{
		evals:    sqlite.NewEvaluationStore(db),
		clusters: sqlite.NewClusterStore(db),
		chartDir: cfg.ChartDir,
	}
	for _, win := range windows {
		res, err := seg.Run(ctx, win)
		if err != nil {
			return err
		}
		log.Printf("window start=%d end=%d: %d points -> %d voxels, %d clusters",
			win.Start, win.End, len(res.Points), len(res.Voxels), len(res.Clusters))

		if err := w.write(ncutRun.RunID, res, res.Clusters, res.ClusterPoints(), res.Graph.Points, res.Metrics); err != nil {
			return err
		}
		if baselineRun != nil && res.Baseline != nil {
			if err := w.write(baselineRun.RunID, res, res.Baseline.Clusters, res.BaselinePoints(), res.Voxels, res.Baseline.Metrics); err != nil {
				return err
			}
		}
	}

	if cfg.ChartDir != "" {
		path := filepath.Join(cfg.ChartDir, "cut_costs.png")
		if err := recorder.SavePlot(path, tuning.GetNCutThreshold()); err != nil {
			log.Printf("Warning: cut plot not written: %v", err)
		} else {
			log.Printf("Cut-cost plot written to %s", path)
		}
		stats := recorder.Stats()
		log.Printf("Cuts: %d evaluated, %d splits, %d degenerate, max depth %d",
			stats.Total, stats.Splits, stats.Degenerate, stats.MaxDepth)
	}

	for _, r := range []*sqlite.Run{ncutRun, baselineRun} {
		if r == nil {
			continue
		}
		sum, err := w.evals.Summarize(r.RunID)
		if err != nil {
			return err
		}
		printSummary(r, sum)
	}
	return nil
}

// resultWriter persists and charts one algorithm's output for a window.
type resultWriter struct {
	evals    *sqlite.EvaluationStore
	clusters *sqlite.ClusterStore
	chartDir string
}

// write stores the evaluation row and per-cluster geometry. clusters
// index vertices, which are the points charted; members index res.Points.
func (w *resultWriter) write(runID string, res *pipeline.Result, clusters, members [][]int, vertices []pipeline.Point, m *l6objects.Metrics) error {
	e := &sqlite.Evaluation{
		RunID:          runID,
		StartIndex:     res.Window.Start,
		EndIndex:       res.Window.End,
		Skipped:        res.Skipped || m == nil,
		ClusterCount:   len(clusters),
		MapPoints:      res.MapPoints,
		FilteredPoints: len(res.Points),
		VoxelCount:     len(res.Voxels),
	}
	if m != nil {
		e.Precision, e.Recall, e.FScore = m.Precision, m.Recall, m.FScore
		e.GTInstances, e.PredInstances = m.GTInstances, m.PredInstances
	}
	if err := w.evals.Insert(e); err != nil {
		return fmt.Errorf("window %s: insert evaluation: %w", res.Window, err)
	}

	rows := make([]sqlite.Cluster, len(clusters))
	for i, c := range clusters {
		summary := l4perception.SummarizeCluster(res.Points, members[i])
		rows[i] = sqlite.ClusterFromSummary(runID, res.Window.Start, i, len(c), summary)
	}
	if err := w.clusters.InsertBatch(rows); err != nil {
		return fmt.Errorf("window %s: insert clusters: %w", res.Window, err)
	}

	if w.chartDir == "" {
		return nil
	}
	path := filepath.Join(w.chartDir, runID, fmt.Sprintf("window_%06d.html", res.Window.Start))
	subtitle := fmt.Sprintf("clusters=%d voxels=%d", len(clusters), len(vertices))
	if m != nil {
		subtitle += fmt.Sprintf(" P=%.2f R=%.2f F=%.2f", m.Precision, m.Recall, m.FScore)
	}
	return monitor.WriteClusterPage(path, vertices, clusters, monitor.ClusterPageOptions{
		Title:    "Window " + res.Window.String(),
		Subtitle: subtitle,
	})
}

func printSummary(r *sqlite.Run, s *sqlite.Summary) {
	fmt.Printf("%s (%s): %d windows, %d skipped\n", r.Algorithm, r.RunID, s.Windows, s.Skipped)
	for _, row := range []struct {
		name string
		s    sqlite.ScoreSummary
	}{
		{"precision", s.Precision},
		{"recall", s.Recall},
		{"fscore", s.FScore},
	} {
		fmt.Printf("  %-9s mean=%.4f  =1: %.1f%%  =0: %.1f%%\n", row.name, row.s.Mean, 100*row.s.ShareOne, 100*row.s.ShareZero)
	}
}
