package l4perception

import "fmt"

// DefaultVoxelSize is the default voxel edge in meters
const DefaultVoxelSize = 0.25

// VoxelResult is a downsampled cloud with its provenance.
type VoxelResult struct {
	Points    []Point         // Centroid per voxel
	Instances *InstanceMatrix // Most frequent member row per voxel
	Trace     [][]int         // Input indices per voxel, ascending
}

// VoxelDownsample collapses points into voxels of the given edge length,
// anchored at the cloud's minimum bound. Voxels are numbered in order of
// their first member. Each voxel's instance row is the most frequent row
// among its members; ties go to the row seen first.
func VoxelDownsample(points []Point, instances *InstanceMatrix, voxelSize float64) (VoxelResult, error) {
	if !(voxelSize > 0) {
		return VoxelResult{}, fmt.Errorf("voxel size must be positive, got %v", voxelSize)
	}
	n, views := instances.Dims()
	if n != len(points) {
		return VoxelResult{}, fmt.Errorf("%d points but %d instance rows", len(points), n)
	}
	if n == 0 {
		return VoxelResult{Instances: NewInstanceMatrix(0, views)}, nil
	}

	lo, _ := Bounds(points)
	index := NewSpatialIndex(voxelSize, lo)

	slot := make(map[CellKey]int)
	var trace [][]int
	for i, p := range points {
		key := index.Cell(p)
		s, ok := slot[key]
		if !ok {
			s = len(trace)
			slot[key] = s
			trace = append(trace, nil)
		}
		trace[s] = append(trace[s], i)
	}

	res := VoxelResult{
		Points:    make([]Point, len(trace)),
		Instances: NewInstanceMatrix(len(trace), views),
		Trace:     trace,
	}
	for s, members := range trace {
		var c Point
		for _, i := range members {
			c.X += points[i].X
			c.Y += points[i].Y
			c.Z += points[i].Z
		}
		k := float64(len(members))
		res.Points[s] = Point{X: c.X / k, Y: c.Y / k, Z: c.Z / k}
		copy(res.Instances.Row(s), modeRow(instances, members))
	}
	return res, nil
}

// modeRow returns the most frequent row among members, first seen on ties.
func modeRow(m *InstanceMatrix, members []int) []int {
	keys := make([]string, len(members))
	counts := make(map[string]int, len(members))
	for k, i := range members {
		keys[k] = fmt.Sprint(m.Row(i))
		counts[keys[k]]++
	}
	best, bestCount := members[0], 0
	for k, i := range members {
		if counts[keys[k]] > bestCount {
			best, bestCount = i, counts[keys[k]]
		}
	}
	return m.Row(best)
}
