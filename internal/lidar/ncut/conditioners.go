package ncut

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
	"gonum.org/v1/gonum/mat"
)

// Graph is an affinity matrix together with the points it was built from
// and their provenance trace. Row i of Affinity, Points[i] and Trace[i]
// always describe the same vertex.
type Graph[P any] struct {
	Affinity *mat.SymDense
	Points   []P
	Trace    [][]int // Original point indices per vertex; may be nil
}

// Len returns the vertex count.
func (g Graph[P]) Len() int {
	return len(g.Points)
}

// Validate checks that all parallel structures have the same length.
func (g Graph[P]) Validate() error {
	n := len(g.Points)
	dim := 0
	if g.Affinity != nil {
		dim = g.Affinity.SymmetricDim()
	}
	if dim != n {
		return fmt.Errorf("%w: %d points, %dx%[2]d affinity", ErrShapeMismatch, n, dim)
	}
	if g.Trace != nil && len(g.Trace) != n {
		return fmt.Errorf("%w: %d points, %d trace entries", ErrShapeMismatch, n, len(g.Trace))
	}
	return nil
}

// Subset returns a new graph holding the given vertices in the given order.
// The receiver is not modified.
func (g Graph[P]) Subset(keep []int) Graph[P] {
	out := Graph[P]{
		Affinity: SubMatrix(g.Affinity, keep),
		Points:   make([]P, len(keep)),
	}
	for k, i := range keep {
		out.Points[k] = g.Points[i]
	}
	if g.Trace != nil {
		out.Trace = make([][]int, len(keep))
		for k, i := range keep {
			out.Trace[k] = append([]int(nil), g.Trace[i]...)
		}
	}
	return out
}

// SubMatrix gathers the rows and columns listed in keep into a new matrix.
func SubMatrix(w mat.Symmetric, keep []int) *mat.SymDense {
	if len(keep) == 0 {
		return &mat.SymDense{}
	}
	sub := mat.NewSymDense(len(keep), nil)
	for a, i := range keep {
		for b := a; b < len(keep); b++ {
			sub.SetSym(a, b, w.At(i, keep[b]))
		}
	}
	return sub
}

// Conditioner reduces a graph while keeping it internally consistent.
type Conditioner[P any] func(Graph[P]) (Graph[P], error)

// Condition applies the conditioners in order.
func Condition[P any](g Graph[P], steps ...Conditioner[P]) (Graph[P], error) {
	for _, step := range steps {
		var err error
		if g, err = step(g); err != nil {
			return Graph[P]{}, err
		}
	}
	return g, nil
}

// RemoveIsolated drops every vertex whose off-diagonal affinities are all zero.
func RemoveIsolated[P any](g Graph[P]) (Graph[P], error) {
	if err := g.Validate(); err != nil {
		return Graph[P]{}, err
	}
	n := g.Len()
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && g.Affinity.At(i, j) != 0 {
				keep = append(keep, i)
				break
			}
		}
	}
	return g.Subset(keep), nil
}

// ExtractLargestComponent keeps the vertices reachable from the first
// start vertex whose depth-first traversal covers at least half of the
// graph (floor(N/2)). Start vertices are tried in index order, skipping
// those already reached. If no traversal gets there, the component
// containing the last vertex is kept.
//
// This is an early-exit approximation: with several mid-sized components
// the kept one is not guaranteed to be the largest.
func ExtractLargestComponent[P any](g Graph[P]) (Graph[P], error) {
	if err := g.Validate(); err != nil {
		return Graph[P]{}, err
	}
	n := g.Len()
	if n == 0 {
		return g.Subset(nil), nil
	}

	adj := adjacencyGraph(g.Affinity)
	half := n / 2
	reached := make([]bool, n)

	walk := func(start int) []int {
		var visited []int
		dfs := traverse.DepthFirst{
			Visit: func(node graph.Node) {
				id := int(node.ID())
				reached[id] = true
				visited = append(visited, id)
			},
		}
		dfs.Walk(adj, adj.Node(int64(start)), nil)
		return visited
	}

	var component []int
	found := false
	for start := 0; start < n && !found; start++ {
		if reached[start] {
			continue
		}
		component = walk(start)
		found = len(component) >= half
	}
	if !found {
		component = walk(n - 1)
	}

	// Keep original index order.
	inComponent := make([]bool, n)
	for _, id := range component {
		inComponent[id] = true
	}
	keep := make([]int, 0, len(component))
	for i := 0; i < n; i++ {
		if inComponent[i] {
			keep = append(keep, i)
		}
	}
	return g.Subset(keep), nil
}

// adjacencyGraph links i and j when affinity[i,j] > 0. Self loops are ignored.
func adjacencyGraph(w mat.Symmetric) *simple.UndirectedGraph {
	n := w.SymmetricDim()
	adj := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		adj.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if w.At(i, j) > 0 {
				adj.SetEdge(adj.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}
	return adj
}
