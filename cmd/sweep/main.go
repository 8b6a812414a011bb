// Command sweep runs the segmenter over a grid of tuning parameters on a
// KITTI sequence and ranks the combinations by mean F-score. Every combo is
// stored as its own run so eval-summary can inspect it afterwards.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/mapseg/internal/config"
	"github.com/banshee-data/mapseg/internal/lidar/dataset"
	"github.com/banshee-data/mapseg/internal/lidar/pipeline"
	"github.com/banshee-data/mapseg/internal/lidar/storage/sqlite"
	"github.com/banshee-data/mapseg/internal/lidar/sweep"
	"github.com/banshee-data/mapseg/internal/version"
)

// paramFlags collects repeated -param values.
type paramFlags []string

func (p *paramFlags) String() string     { return strings.Join(*p, " ") }
func (p *paramFlags) Set(v string) error { *p = append(*p, v); return nil }

func main() {
	root := flag.String("root", "", "KITTI odometry root (contains sequences/ and poses/)")
	seq := flag.String("seq", "00", "Sequence name")
	masksDir := flag.String("masks", "", "Directory of per-camera instance masks")
	configPath := flag.String("config", "", "Base tuning config (.json or .yaml); defaults when empty")
	dbPath := flag.String("db", "", "Store every combo as a run in this SQLite database")
	output := flag.String("output", "", "Output CSV filename (defaults to sweep-<timestamp>.csv)")
	from := flag.Int("from", -1, "First frame; defaults to the image offset")
	to := flag.Int("to", -1, "End frame (exclusive); defaults to the sequence length")
	top := flag.Int("top", 10, "Print this many best combos")
	var params paramFlags
	flag.Var(&params, "param", "Swept field as name=min:max:step or name=v1,v2 (repeatable)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("sweep"))
		return
	}
	if *root == "" || *masksDir == "" {
		log.Fatal("-root and -masks are required")
	}

	base := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		base, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	var parsed []sweep.Param
	for _, p := range params {
		sp, err := sweep.ParseParam(p)
		if err != nil {
			log.Fatalf("Invalid -param: %v", err)
		}
		parsed = append(parsed, sp)
	}
	combos, err := sweep.Expand(parsed)
	if err != nil {
		log.Fatalf("Invalid sweep: %v", err)
	}

	ds, err := dataset.OpenKitti(dataset.KittiOptions{Root: *root, Sequence: *seq, MasksDir: *masksDir})
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	start, end := *from, *to
	if start < 0 {
		start = base.GetImageOffset()
	}
	if end < 0 || end > ds.Len() {
		end = ds.Len()
	}
	windows, err := pipeline.Windows(start, end, base.GetWindowSize())
	if err != nil {
		log.Fatalf("Invalid frame range: %v", err)
	}

	runner := &sweep.Runner{
		Base:    base,
		Windows: windows,
		NewSegmenter: func(cfg *config.TuningConfig) (sweep.WindowRunner, error) {
			seg, err := pipeline.NewSegmenter(pipeline.SegmenterConfig{Dataset: ds, GroundTruth: ds, Tuning: cfg})
			if err != nil {
				return nil, err
			}
			return seg, nil
		},
	}
	if *dbPath != "" {
		db, err := sqlite.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		attachStore(runner, sqlite.NewRunStore(db), sqlite.NewEvaluationStore(db), *seq, start, end)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Sweeping %d combos over %d windows of sequence %s", len(combos), len(windows), *seq)
	results, err := runner.Run(ctx, combos)
	if err != nil {
		// Rank whatever finished.
		log.Printf("Sweep stopped after %d combos: %v", len(results), err)
	}
	ranked := sweep.RankResults(results, sweep.DefaultObjectiveWeights())

	outPath := *output
	if outPath == "" {
		outPath = fmt.Sprintf("sweep-%s.csv", time.Now().Format("20060102-150405"))
	}
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	if err := writeCSV(f, paramNames(parsed), ranked); err != nil {
		f.Close()
		log.Fatalf("Failed to write CSV: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}
	log.Printf("Results written to %s", outPath)

	for i, r := range ranked {
		if i >= *top {
			break
		}
		fmt.Printf("%2d. %-40s fscore=%.4f±%.4f precision=%.4f recall=%.4f clusters=%.1f\n",
			i+1, r.ParamValues, r.FScoreMean, r.FScoreStddev, r.PrecisionMean, r.RecallMean, r.ClustersMean)
	}
}

// attachStore records each combo as a run and each window as an evaluation.
func attachStore(r *sweep.Runner, runs *sqlite.RunStore, evals *sqlite.EvaluationStore, seq string, start, end int) {
	var runID string
	r.OnComboStart = func(c sweep.Combo, cfg *config.TuningConfig) error {
		params, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		run := &sqlite.Run{Sequence: seq, Algorithm: "ncut", StartFrame: start, EndFrame: end, ParamsJSON: params}
		if err := runs.Insert(run); err != nil {
			return err
		}
		runID = run.RunID
		return nil
	}
	r.OnWindow = func(_ sweep.Combo, res *pipeline.Result) error {
		e := &sqlite.Evaluation{
			RunID:          runID,
			StartIndex:     res.Window.Start,
			EndIndex:       res.Window.End,
			Skipped:        res.Metrics == nil,
			ClusterCount:   len(res.Clusters),
			MapPoints:      res.MapPoints,
			FilteredPoints: len(res.Points),
			VoxelCount:     len(res.Voxels),
		}
		if m := res.Metrics; m != nil {
			e.Precision, e.Recall, e.FScore = m.Precision, m.Recall, m.FScore
			e.GTInstances, e.PredInstances = m.GTInstances, m.PredInstances
		}
		return evals.Insert(e)
	}
}

func paramNames(params []sweep.Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

func writeCSV(w io.Writer, names []string, ranked []sweep.ScoredResult) error {
	cw := csv.NewWriter(w)
	header := append([]string{"rank", "score"}, names...)
	header = append(header, "windows", "scored",
		"precision_mean", "precision_stddev", "recall_mean", "recall_stddev",
		"fscore_mean", "fscore_stddev", "clusters_mean")
	if err := cw.Write(header); err != nil {
		return err
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i, r := range ranked {
		row := []string{strconv.Itoa(i + 1), ff(r.Score)}
		for _, n := range names {
			row = append(row, strconv.FormatFloat(r.ParamValues[n], 'g', -1, 64))
		}
		row = append(row, strconv.Itoa(r.Windows), strconv.Itoa(r.Scored),
			ff(r.PrecisionMean), ff(r.PrecisionStddev), ff(r.RecallMean), ff(r.RecallStddev),
			ff(r.FScoreMean), ff(r.FScoreStddev), ff(r.ClustersMean))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
