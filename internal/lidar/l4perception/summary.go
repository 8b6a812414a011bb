package l4perception

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ClusterSummary holds the geometry of one output cluster.
type ClusterSummary struct {
	PointsCount int
	Centroid    Point
	Min, Max    Point   // Axis-aligned bounds
	HeightP95   float64 // 95th percentile of Z
	Density     float64 // Points per cubic meter of the bounds; 0 for flat clusters
}

// SummarizeCluster computes the summary of points[members].
// An empty member list yields the zero summary.
func SummarizeCluster(points []Point, members []int) ClusterSummary {
	if len(members) == 0 {
		return ClusterSummary{}
	}
	sub := Subset(points, members)
	n := float64(len(sub))

	var sum Point
	heights := make([]float64, len(sub))
	for i, p := range sub {
		sum.X += p.X
		sum.Y += p.Y
		sum.Z += p.Z
		heights[i] = p.Z
	}
	lo, hi := Bounds(sub)

	sort.Float64s(heights)
	s := ClusterSummary{
		PointsCount: len(sub),
		Centroid:    Point{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n},
		Min:         lo,
		Max:         hi,
		HeightP95:   stat.Quantile(0.95, stat.Empirical, heights, nil),
	}

	volume := (hi.X - lo.X) * (hi.Y - lo.Y) * (hi.Z - lo.Z)
	if volume > 0 {
		s.Density = n / volume
	}
	return s
}
