package l4perception

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
)

// Constants for point filtering
const (
	// DefaultCubeRadius is the default half-depth of the kept slab in meters
	DefaultCubeRadius = 18.0
	// DefaultNbNeighbors is the default neighbour count for outlier statistics
	DefaultNbNeighbors = 25
	// DefaultStdRatio is the default outlier cut in standard deviations
	DefaultStdRatio = 5.0
)

// NotZeroIndices returns the points labeled in at least one view.
func NotZeroIndices(m *InstanceMatrix) []int {
	n, views := m.Dims()
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		for v := 0; v < views; v++ {
			if m.At(i, v) != 0 {
				keep = append(keep, i)
				break
			}
		}
	}
	return keep
}

// InCubeIndices returns the points whose |z| in the frame of center is
// strictly below radius. With center set to the first camera pose this
// keeps the slab in front of and behind the camera.
func InCubeIndices(points []Point, center l2frames.Pose, radius float64) ([]int, error) {
	toCenter, err := center.Inverse()
	if err != nil {
		return nil, fmt.Errorf("in-cube center: %w", err)
	}
	keep := make([]int, 0, len(points))
	for i, p := range points {
		if math.Abs(toCenter.ApplyPoint(p).Z) < radius {
			keep = append(keep, i)
		}
	}
	return keep, nil
}

// StatisticalOutlierIndices drops points whose mean distance to their
// nbNeighbors nearest neighbours (the point itself included) is not below
// mean + stdRatio·std over the whole cloud. Points whose neighbours all
// coincide with them (mean distance 0) are dropped as well.
func StatisticalOutlierIndices(points []Point, nbNeighbors int, stdRatio float64) ([]int, error) {
	if nbNeighbors < 1 {
		return nil, fmt.Errorf("nb_neighbors must be positive, got %d", nbNeighbors)
	}
	if stdRatio <= 0 {
		return nil, fmt.Errorf("std_ratio must be positive, got %v", stdRatio)
	}
	if len(points) == 0 {
		return nil, nil
	}

	// kdtree.New reorders its input, so the tree gets its own slice.
	treePoints := make(kdtree.Points, len(points))
	for i, p := range points {
		treePoints[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	tree := kdtree.New(treePoints, false)

	avg := make([]float64, len(points))
	for i, p := range points {
		keeper := kdtree.NewNKeeper(nbNeighbors)
		tree.NearestSet(keeper, kdtree.Point{p.X, p.Y, p.Z})

		var sum float64
		count := 0
		for _, c := range keeper.Heap {
			if c.Comparable == nil {
				continue // sentinel left when the cloud has fewer points than nbNeighbors
			}
			sum += math.Sqrt(c.Dist)
			count++
		}
		avg[i] = sum / float64(count)
	}

	mean, std := stat.MeanStdDev(avg, nil)
	if len(avg) < 2 {
		std = 0
	}
	threshold := mean + stdRatio*std

	keep := make([]int, 0, len(points))
	for i, d := range avg {
		if d > 0 && d < threshold {
			keep = append(keep, i)
		}
	}
	return keep, nil
}
