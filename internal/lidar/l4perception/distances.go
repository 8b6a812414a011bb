package l4perception

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PairwiseDistances returns the N×N Euclidean distance matrix.
func PairwiseDistances(points []Point) *mat.SymDense {
	n := len(points)
	if n == 0 {
		return &mat.SymDense{}
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, math.Sqrt(squaredDistance(points[i], points[j])))
		}
	}
	return d
}
