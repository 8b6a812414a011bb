package sqlite

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ScoreSummary aggregates one metric over the scored windows of a run.
type ScoreSummary struct {
	Mean      float64 `json:"mean"`
	ShareOne  float64 `json:"share_one"`  // fraction of windows scoring exactly 1
	ShareZero float64 `json:"share_zero"` // fraction of windows scoring exactly 0
}

// Summary is the run-level rollup of per-window evaluations.
type Summary struct {
	RunID     string       `json:"run_id"`
	Windows   int          `json:"windows"`
	Skipped   int          `json:"skipped"`
	Precision ScoreSummary `json:"precision"`
	Recall    ScoreSummary `json:"recall"`
	FScore    ScoreSummary `json:"fscore"`
}

// Summarize rolls up a run's evaluations. Skipped windows count toward
// Windows and Skipped but not toward any score.
func (s *EvaluationStore) Summarize(runID string) (*Summary, error) {
	evals, err := s.ListByRun(runID)
	if err != nil {
		return nil, fmt.Errorf("summarize run %s: %w", runID, err)
	}
	return SummarizeEvaluations(runID, evals), nil
}

// SummarizeEvaluations computes a Summary from in-memory evaluations.
func SummarizeEvaluations(runID string, evals []*Evaluation) *Summary {
	sum := &Summary{RunID: runID, Windows: len(evals)}
	var p, r, f []float64
	for _, e := range evals {
		if e.Skipped {
			sum.Skipped++
			continue
		}
		p = append(p, e.Precision)
		r = append(r, e.Recall)
		f = append(f, e.FScore)
	}
	sum.Precision = summarizeScores(p)
	sum.Recall = summarizeScores(r)
	sum.FScore = summarizeScores(f)
	return sum
}

func summarizeScores(xs []float64) ScoreSummary {
	if len(xs) == 0 {
		return ScoreSummary{}
	}
	var ones, zeros int
	for _, x := range xs {
		switch x {
		case 1:
			ones++
		case 0:
			zeros++
		}
	}
	n := float64(len(xs))
	return ScoreSummary{
		Mean:      stat.Mean(xs, nil),
		ShareOne:  float64(ones) / n,
		ShareZero: float64(zeros) / n,
	}
}
