package sweep

import (
	"math"
	"sort"
)

// ObjectiveWeights defines weights for ranking combos.
type ObjectiveWeights struct {
	FScore    float64 `json:"fscore"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`

	// Clusters weighs log(mean cluster count); negative favours fewer clusters.
	Clusters float64 `json:"clusters"`
}

// DefaultObjectiveWeights ranks by mean F-score alone.
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{FScore: 1}
}

// ScoreResult computes a scalar score for a ComboResult.
func ScoreResult(r ComboResult, w ObjectiveWeights) float64 {
	score := w.FScore*r.FScoreMean + w.Precision*r.PrecisionMean + w.Recall*r.RecallMean
	if r.ClustersMean > 0 {
		score += w.Clusters * math.Log(r.ClustersMean)
	}
	return score
}

// ScoredResult pairs a ComboResult with its objective score.
type ScoredResult struct {
	ComboResult
	Score float64 `json:"score"`
}

// RankResults scores results and sorts them highest first. Ties keep the
// sweep order. Combos with no scored windows sort last.
func RankResults(results []ComboResult, w ObjectiveWeights) []ScoredResult {
	scored := make([]ScoredResult, len(results))
	for i, r := range results {
		s := ScoreResult(r, w)
		if r.Scored == 0 {
			s = -math.MaxFloat64
		}
		scored[i] = ScoredResult{ComboResult: r, Score: s}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
