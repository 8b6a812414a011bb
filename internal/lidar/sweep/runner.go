package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mapseg/internal/config"
	"github.com/banshee-data/mapseg/internal/lidar/pipeline"
)

// WindowRunner segments one window. *pipeline.Segmenter satisfies it.
type WindowRunner interface {
	Run(ctx context.Context, w pipeline.Window) (*pipeline.Result, error)
}

// SegmenterFactory builds a runner for one combo's tuning.
type SegmenterFactory func(cfg *config.TuningConfig) (WindowRunner, error)

// Runner sweeps combos over a fixed set of windows.
type Runner struct {
	Base         *config.TuningConfig // Fields not in a combo come from here
	NewSegmenter SegmenterFactory
	Windows      []pipeline.Window

	// OnComboStart and OnWindow, when set, let callers persist progress.
	// An error from either aborts the sweep.
	OnComboStart func(c Combo, cfg *config.TuningConfig) error
	OnWindow     func(c Combo, res *pipeline.Result) error

	// Logger receives one line per combo; nil uses log.Default().
	Logger *log.Logger
}

// ComboResult aggregates one combo's windows.
type ComboResult struct {
	ParamValues Combo `json:"param_values"`

	Windows int `json:"windows"`
	Scored  int `json:"scored"` // Windows with metrics

	PrecisionMean   float64 `json:"precision_mean"`
	PrecisionStddev float64 `json:"precision_stddev"`
	RecallMean      float64 `json:"recall_mean"`
	RecallStddev    float64 `json:"recall_stddev"`
	FScoreMean      float64 `json:"fscore_mean"`
	FScoreStddev    float64 `json:"fscore_stddev"`
	ClustersMean    float64 `json:"clusters_mean"`
}

// Run evaluates every combo in order. A cancelled context stops the
// sweep and returns the results completed so far with the context error.
func (r *Runner) Run(ctx context.Context, combos []Combo) ([]ComboResult, error) {
	if r.NewSegmenter == nil {
		return nil, errors.New("sweep: segmenter factory is required")
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}

	results := make([]ComboResult, 0, len(combos))
	for i, c := range combos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.runCombo(ctx, c)
		if err != nil {
			return results, fmt.Errorf("combo %d (%s): %w", i, c, err)
		}
		logger.Printf("[sweep] %d/%d %s: fscore=%.4f±%.4f over %d/%d windows",
			i+1, len(combos), c, res.FScoreMean, res.FScoreStddev, res.Scored, res.Windows)
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runCombo(ctx context.Context, c Combo) (ComboResult, error) {
	cfg, err := c.Apply(r.Base)
	if err != nil {
		return ComboResult{}, err
	}
	seg, err := r.NewSegmenter(cfg)
	if err != nil {
		return ComboResult{}, err
	}
	if r.OnComboStart != nil {
		if err := r.OnComboStart(c, cfg); err != nil {
			return ComboResult{}, err
		}
	}

	out := ComboResult{ParamValues: c, Windows: len(r.Windows)}
	var precision, recall, fscore, clusters []float64
	for _, w := range r.Windows {
		res, err := seg.Run(ctx, w)
		if err != nil {
			return ComboResult{}, err
		}
		if r.OnWindow != nil {
			if err := r.OnWindow(c, res); err != nil {
				return ComboResult{}, err
			}
		}
		clusters = append(clusters, float64(len(res.Clusters)))
		if res.Metrics == nil {
			continue
		}
		precision = append(precision, res.Metrics.Precision)
		recall = append(recall, res.Metrics.Recall)
		fscore = append(fscore, res.Metrics.FScore)
	}

	out.Scored = len(fscore)
	out.PrecisionMean, out.PrecisionStddev = meanStddev(precision)
	out.RecallMean, out.RecallStddev = meanStddev(recall)
	out.FScoreMean, out.FScoreStddev = meanStddev(fscore)
	out.ClustersMean, _ = meanStddev(clusters)
	return out, nil
}

// meanStddev returns the mean and sample standard deviation; the
// deviation is 0 for fewer than two values.
func meanStddev(xs []float64) (mean, std float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}
