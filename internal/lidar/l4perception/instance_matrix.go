package l4perception

import "fmt"

// InstanceMatrix is an N×V matrix of per-view instance ids, row-major.
// 0 means the point is not labeled in that view.
type InstanceMatrix struct {
	points, views int
	data          []int
}

// NewInstanceMatrix returns a zeroed points×views matrix.
func NewInstanceMatrix(points, views int) *InstanceMatrix {
	return &InstanceMatrix{points: points, views: views, data: make([]int, points*views)}
}

// InstanceMatrixFromRows copies rows into a matrix. All rows must have
// the same length.
func InstanceMatrixFromRows(rows [][]int) (*InstanceMatrix, error) {
	if len(rows) == 0 {
		return NewInstanceMatrix(0, 0), nil
	}
	m := NewInstanceMatrix(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != m.views {
			return nil, fmt.Errorf("row %d has %d views, want %d", i, len(r), m.views)
		}
		copy(m.data[i*m.views:], r)
	}
	return m, nil
}

// Dims returns the point and view counts.
func (m *InstanceMatrix) Dims() (points, views int) {
	return m.points, m.views
}

// At returns the id of point p in view v.
func (m *InstanceMatrix) At(p, v int) int {
	return m.data[p*m.views+v]
}

// Set stores the id of point p in view v.
func (m *InstanceMatrix) Set(p, v, id int) {
	m.data[p*m.views+v] = id
}

// Row returns point p's ids. The slice aliases the matrix.
func (m *InstanceMatrix) Row(p int) []int {
	return m.data[p*m.views : (p+1)*m.views]
}

// Subset returns a new matrix holding the given rows in order.
func (m *InstanceMatrix) Subset(rows []int) *InstanceMatrix {
	out := NewInstanceMatrix(len(rows), m.views)
	for k, r := range rows {
		copy(out.Row(k), m.Row(r))
	}
	return out
}

// Subset gathers items at the given indices into a new slice. It is how
// callers keep every parallel array aligned with a filter's output.
func Subset[T any](items []T, idx []int) []T {
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = items[i]
	}
	return out
}
