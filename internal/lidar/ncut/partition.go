package ncut

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// Constants for normalized cut configuration
const (
	// DefaultThreshold is the default ncut stopping threshold
	DefaultThreshold = 0.03
	// DefaultEigenvaluesCount is the default number of eigenpairs kept near zero
	DefaultEigenvaluesCount = 2
	// DefaultNumCuts is the default number of candidate thresholds per bipartition
	DefaultNumCuts = 10

	// Tolerances for treating the Fiedler vector as constant
	constantVectorAbsTol = 1e-8
	constantVectorRelTol = 1e-5

	// Graphs up to this size use the dense eigen solver
	denseEigenLimit = 64
	// Extra block vectors carried by the subspace iteration
	subspaceGuard = 4
	// Iteration cap and relative residual tolerance of the subspace iteration
	subspaceMaxIter = 500
	subspaceTol     = 1e-9
	// Shift below zero, relative to the mean diagonal of A
	shiftScale = 1e-3
)

// CutStep describes one node of the bipartition tree.
type CutStep struct {
	Depth      int     // Distance from the root graph
	Size       int     // Vertices in the graph being cut
	Cost       float64 // Minimum normalized cut cost; +Inf when not evaluated
	Split      bool    // True when Cost < Threshold and the graph was divided
	Degenerate bool    // True when the eigenvector was constant
}

// Params configures Partition.
type Params struct {
	Threshold        float64 // Split only when the best ncut cost is strictly below this
	EigenvaluesCount int     // Eigenpairs nearest zero to retain (>= 2)
	NumCuts          int     // Evenly spaced thresholds scanned along the eigenvector

	// OnCut, if set, is called once per evaluated graph with more than two vertices.
	OnCut func(CutStep)
}

// DefaultParams returns the production-default normalized cut parameters.
func DefaultParams() Params {
	return Params{
		Threshold:        DefaultThreshold,
		EigenvaluesCount: DefaultEigenvaluesCount,
		NumCuts:          DefaultNumCuts,
	}
}

// Validate checks the normalized cut parameters.
func (p Params) Validate() error {
	if p.Threshold < 0 || math.IsNaN(p.Threshold) {
		return fmt.Errorf("%w: threshold must be non-negative, got %v", ErrInvalidParams, p.Threshold)
	}
	if p.EigenvaluesCount < 2 {
		return fmt.Errorf("%w: eigenvalues count must be at least 2, got %d", ErrInvalidParams, p.EigenvaluesCount)
	}
	if p.NumCuts < 1 {
		return fmt.Errorf("%w: num cuts must be at least 1, got %d", ErrInvalidParams, p.NumCuts)
	}
	return nil
}

type partitionTask[L any] struct {
	w      mat.Symmetric
	labels []L
	depth  int
}

// Partition recursively bipartitions labels using the normalized cut of
// the affinity graph and returns the leaf clusters.
//
// labels[i] names row i of affinity. The returned groups are a set
// partition of labels: nothing is lost or duplicated. A graph with two or
// fewer vertices is never divided. Recursion is driven by an explicit
// stack; clusters come out in depth-first order with the side above the
// threshold (ev > t) first.
func Partition[L any](affinity mat.Symmetric, labels []L, p Params) ([][]L, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := 0
	if affinity != nil {
		n = affinity.SymmetricDim()
	}
	if n != len(labels) {
		return nil, fmt.Errorf("%w: %d labels, %dx%[2]d affinity", ErrShapeMismatch, len(labels), n)
	}

	if n == 0 {
		// An empty graph is one empty cluster.
		return [][]L{labels}, nil
	}
	// Every task builds its own matrices, so the input is only read.
	var clusters [][]L
	stack := []partitionTask[L]{{w: affinity, labels: labels}}
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		size := len(task.labels)
		if size <= 2 {
			clusters = append(clusters, task.labels)
			continue
		}

		mask, cost, degenerate, err := bestBipartition(task.w, p.EigenvaluesCount, p.NumCuts)
		if err != nil {
			return nil, fmt.Errorf("bipartition at depth %d (%d vertices): %w", task.depth, size, err)
		}
		split := cost < p.Threshold
		if p.OnCut != nil {
			p.OnCut(CutStep{Depth: task.depth, Size: size, Cost: cost, Split: split, Degenerate: degenerate})
		}
		if !split {
			clusters = append(clusters, task.labels)
			continue
		}

		inside, outside := splitIndices(mask)
		// Push the complement first so the masked side is emitted first.
		stack = append(stack,
			partitionTask[L]{w: SubMatrix(task.w, outside), labels: gather(task.labels, outside), depth: task.depth + 1},
			partitionTask[L]{w: SubMatrix(task.w, inside), labels: gather(task.labels, inside), depth: task.depth + 1},
		)
	}

	return clusters, nil
}

// bestBipartition computes the Fiedler-like vector of w and returns the
// minimum normalized cut mask among evenly spaced thresholds along it.
// A constant vector yields an all-false mask and +Inf cost.
func bestBipartition(w mat.Symmetric, eigenvaluesCount, numCuts int) (mask []bool, cost float64, degenerate bool, err error) {
	a, d := normalizedOperator(w)
	ev, err := fiedlerVector(a, eigenvaluesCount)
	if err != nil {
		return nil, 0, false, err
	}

	mask, cost = minNormalizedCut(ev, d, w, numCuts)
	return mask, cost, math.IsInf(cost, 1), nil
}

// normalizedOperator returns A = D⁻¹ (D − W) D⁻¹ and the degrees d of
// W = w + I. d is strictly positive thanks to the self loop.
func normalizedOperator(w mat.Symmetric) (*mat.SymDense, []float64) {
	n := w.SymmetricDim()
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d[i] += w.At(i, j)
		}
		d[i]++
	}

	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var lij float64
			if i == j {
				lij = d[i] - (w.At(i, i) + 1)
			} else {
				lij = -w.At(i, j)
			}
			a.SetSym(i, j, lij/(d[i]*d[j]))
		}
	}
	return a, d
}

// fiedlerVector returns the eigenvector of the second smallest eigenvalue
// among the k eigenvalues of smallest magnitude, oriented so its largest
// magnitude entry is positive. Small graphs, and any graph where the
// shift-invert iteration fails, use the dense solver.
func fiedlerVector(a *mat.SymDense, k int) ([]float64, error) {
	if a.SymmetricDim() > denseEigenLimit {
		if ev, ok := shiftInvertFiedler(a, k); ok {
			return orient(ev), nil
		}
	}
	ev, err := denseFiedler(a, k)
	if err != nil {
		return nil, err
	}
	return orient(ev), nil
}

func orient(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	if -floats.Min(v) > floats.Max(v) {
		floats.Scale(-1, v)
	}
	return v
}

// denseFiedler computes the full spectrum of a.
func denseFiedler(a *mat.SymDense, k int) ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(a, true); !ok {
		return nil, fmt.Errorf("eigen decomposition did not converge")
	}
	values := es.Values(nil)
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	// Nearest to zero first, as a shift-invert solve around 0 would return them.
	sort.SliceStable(order, func(x, y int) bool {
		return math.Abs(values[order[x]]) < math.Abs(values[order[y]])
	})
	if k > len(order) {
		k = len(order)
	}
	nearest := order[:k]
	sort.SliceStable(nearest, func(x, y int) bool {
		return values[nearest[x]] < values[nearest[y]]
	})

	return mat.Col(nil, nearest[1], &vectors), nil
}

// shiftInvertFiedler finds the k eigenpairs of a nearest zero by subspace
// iteration on (A − σI)⁻¹ with σ slightly below zero. A = D⁻¹LD⁻¹ is
// positive semidefinite, so A − σI is positive definite and is factored
// once with a Cholesky decomposition. The shift is applied to a in place
// and undone before returning. The result is false when the factorization
// or the iteration fails.
func shiftInvertFiedler(a *mat.SymDense, k int) ([]float64, bool) {
	n := a.SymmetricDim()
	if k > n {
		k = n
	}
	p := min(k+subspaceGuard, n)

	var trace float64
	for i := 0; i < n; i++ {
		trace += a.At(i, i)
	}
	if !(trace > 0) {
		return nil, false
	}
	sigma := -shiftScale * trace / float64(n)

	norm := mat.Norm(a, 1)
	shiftDiagonal(a, -sigma)
	defer shiftDiagonal(a, sigma)
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, false
	}

	// Deterministic start block.
	rng := rand.New(rand.NewSource(1))
	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, rng.Float64()-0.5)
		}
	}

	var y, ax, h, ritz, aRitz mat.Dense
	for iter := 0; iter < subspaceMaxIter; iter++ {
		if err := chol.SolveTo(&y, x); err != nil {
			return nil, false
		}
		if !orthonormalize(&y) {
			return nil, false
		}

		// Rayleigh-Ritz on the new basis; a holds A − σI here.
		ax.Mul(a, &y)
		ax.Apply(func(i, j int, v float64) float64 { return v + sigma*y.At(i, j) }, &ax)
		h.Mul(y.T(), &ax)
		hs := mat.NewSymDense(p, nil)
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				hs.SetSym(i, j, (h.At(i, j)+h.At(j, i))/2)
			}
		}
		var es mat.EigenSym
		if ok := es.Factorize(hs, true); !ok {
			return nil, false
		}
		values := es.Values(nil) // Ascending
		var v mat.Dense
		es.VectorsTo(&v)
		ritz.Mul(&y, &v)
		aRitz.Mul(&ax, &v)

		converged := true
		for j := 0; j < k && converged; j++ {
			var res float64
			for i := 0; i < n; i++ {
				r := aRitz.At(i, j) - values[j]*ritz.At(i, j)
				res += r * r
			}
			converged = math.Sqrt(res) <= subspaceTol*norm
		}
		if converged {
			return mat.Col(nil, 1, &ritz), true
		}
		x.CloneFrom(&ritz)
	}
	return nil, false
}

func shiftDiagonal(a *mat.SymDense, by float64) {
	n := a.SymmetricDim()
	for i := 0; i < n; i++ {
		a.SetSym(i, i, a.At(i, i)+by)
	}
}

// orthonormalize runs modified Gram-Schmidt twice over the columns of m.
// It reports false when a column collapses.
func orthonormalize(m *mat.Dense) bool {
	_, p := m.Dims()
	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = mat.Col(nil, j, m)
	}
	for pass := 0; pass < 2; pass++ {
		for j := range cols {
			for i := 0; i < j; i++ {
				floats.AddScaled(cols[j], -floats.Dot(cols[i], cols[j]), cols[i])
			}
			nrm := floats.Norm(cols[j], 2)
			if !(nrm > 1e-300) {
				return false
			}
			floats.Scale(1/nrm, cols[j])
		}
	}
	for j, c := range cols {
		m.SetCol(j, c)
	}
	return true
}

// minNormalizedCut scans numCuts thresholds over [min(ev), max(ev)) and
// returns the bipartition with the lowest normalized cut cost.
func minNormalizedCut(ev, d []float64, w mat.Symmetric, numCuts int) ([]bool, float64) {
	minMask := make([]bool, len(ev))
	minCost := math.Inf(1)

	lo, hi := floats.Min(ev), floats.Max(ev)
	if scalar.EqualWithinAbsOrRel(lo, hi, constantVectorAbsTol, constantVectorRelTol) {
		return minMask, minCost
	}

	step := (hi - lo) / float64(numCuts)
	for k := 0; k < numCuts; k++ {
		t := lo + float64(k)*step
		mask := make([]bool, len(ev))
		for i, v := range ev {
			mask[i] = v > t
		}
		if cost := normalizedCutCost(w, d, mask); cost < minCost {
			minMask = mask
			minCost = cost
		}
	}
	return minMask, minCost
}

// normalizedCutCost returns cut/assoc(A) + cut/assoc(B) for the
// bipartition A = mask, B = ¬mask.
func normalizedCutCost(w mat.Symmetric, d []float64, mask []bool) float64 {
	var cut, assocA, assocB float64
	for i, in := range mask {
		if in {
			assocA += d[i]
		} else {
			assocB += d[i]
		}
		if !in {
			continue
		}
		for j, other := range mask {
			if !other {
				cut += w.At(i, j)
			}
		}
	}
	return cut/assocA + cut/assocB
}

func splitIndices(mask []bool) (inside, outside []int) {
	for i, in := range mask {
		if in {
			inside = append(inside, i)
		} else {
			outside = append(outside, i)
		}
	}
	return inside, outside
}

func gather[L any](labels []L, idx []int) []L {
	out := make([]L, len(idx))
	for k, i := range idx {
		out[k] = labels[i]
	}
	return out
}
