package l4perception

import (
	"math"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
)

// Point is a world-frame point. Index position is its only identity.
type Point = l2frames.Point

// EstimatedPointsPerCell is used for initial spatial index capacity estimation
const EstimatedPointsPerCell = 4

// CellKey is the integer coordinate of a grid cell.
type CellKey struct {
	X, Y, Z int64
}

// SpatialIndex buckets points into a regular 3D grid.
// Cell size should approximately match the query radius.
type SpatialIndex struct {
	CellSize float64
	Origin   Point
	Grid     map[int64][]int // Cell ID → point indices, in insertion order
}

// NewSpatialIndex creates a spatial index with the specified cell size and
// grid origin.
func NewSpatialIndex(cellSize float64, origin Point) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Origin:   origin,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the spatial index from a set of points.
func (si *SpatialIndex) Build(points []Point) {
	si.Grid = make(map[int64][]int, len(points)/EstimatedPointsPerCell)
	for i, p := range points {
		id := cellID(si.Cell(p))
		si.Grid[id] = append(si.Grid[id], i)
	}
}

// Cell returns floor((p − origin) / cellSize) per axis.
func (si *SpatialIndex) Cell(p Point) CellKey {
	return CellKey{
		X: int64(math.Floor((p.X - si.Origin.X) / si.CellSize)),
		Y: int64(math.Floor((p.Y - si.Origin.Y) / si.CellSize)),
		Z: int64(math.Floor((p.Z - si.Origin.Z) / si.CellSize)),
	}
}

// CellID returns the grid bucket id of p.
func (si *SpatialIndex) CellID(p Point) int64 {
	return cellID(si.Cell(p))
}

// zigzag maps signed integers to non-negative ones.
func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// szudzik is Szudzik's elegant pairing function.
func szudzik(a, b int64) int64 {
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// cellID combines the three cell coordinates with nested Szudzik pairing.
// Ids are unique while the paired values stay within int64.
func cellID(c CellKey) int64 {
	return szudzik(szudzik(zigzag(c.X), zigzag(c.Y)), zigzag(c.Z))
}

// RegionQuery returns indices of all points within eps (3D Euclidean) of
// points[idx], including idx itself.
func (si *SpatialIndex) RegionQuery(points []Point, idx int, eps float64) []int {
	p := points[idx]
	neighbors := []int{}
	eps2 := eps * eps // Use squared distance to avoid sqrt

	base := si.Cell(p)
	reach := int64(math.Ceil(eps / si.CellSize))

	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				id := cellID(CellKey{X: base.X + dx, Y: base.Y + dy, Z: base.Z + dz})
				for _, candidateIdx := range si.Grid[id] {
					if squaredDistance(points[candidateIdx], p) <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}

	return neighbors
}

func squaredDistance(a, b Point) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

// Bounds returns the per-axis minimum and maximum of points.
func Bounds(points []Point) (lo, hi Point) {
	if len(points) == 0 {
		return Point{}, Point{}
	}
	lo, hi = points[0], points[0]
	for _, p := range points[1:] {
		lo.X, hi.X = math.Min(lo.X, p.X), math.Max(hi.X, p.X)
		lo.Y, hi.Y = math.Min(lo.Y, p.Y), math.Max(hi.Y, p.Y)
		lo.Z, hi.Z = math.Min(lo.Z, p.Z), math.Max(hi.Z, p.Z)
	}
	return lo, hi
}
