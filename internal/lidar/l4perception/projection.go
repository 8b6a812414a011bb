package l4perception

import (
	"fmt"
	"math"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
	"github.com/banshee-data/mapseg/internal/lidar/masks"
)

// View is one camera image used to label the map.
type View struct {
	Labels *masks.LabelImage
	// WorldToCamera moves world points into the camera frame (z forward).
	WorldToCamera l2frames.Pose
	// K is the 3×3 row-major intrinsic matrix.
	K [9]float64
}

// Project maps a camera-frame point to pixel coordinates. ok is false
// when the point is behind the camera.
func Project(K [9]float64, p Point) (u, v float64, ok bool) {
	x := K[0]*p.X + K[1]*p.Y + K[2]*p.Z
	y := K[3]*p.X + K[4]*p.Y + K[5]*p.Z
	w := K[6]*p.X + K[7]*p.Y + K[8]*p.Z
	if !(w > 0) {
		return 0, 0, false
	}
	return x / w, y / w, true
}

// BuildInstanceMatrix labels every point with the instance id of the pixel
// it projects to in each view.
//
// A point is labeled in a view when it lands inside the image in front of
// the camera and lies within visibilityTolerance meters of the nearest
// point projecting to the same pixel. The depth test stands in for hidden
// point removal; pass math.Inf(1) to disable it.
func BuildInstanceMatrix(points []Point, views []View, visibilityTolerance float64) (*InstanceMatrix, error) {
	if visibilityTolerance < 0 || math.IsNaN(visibilityTolerance) {
		return nil, fmt.Errorf("visibility tolerance must be non-negative, got %v", visibilityTolerance)
	}
	m := NewInstanceMatrix(len(points), len(views))

	type hit struct {
		pixel int
		depth float64
	}
	for v, view := range views {
		if view.Labels == nil {
			continue
		}
		w, h := view.Labels.Width, view.Labels.Height

		hits := make([]hit, len(points))
		nearest := make(map[int]float64)
		for i, p := range points {
			hits[i].pixel = -1
			c := view.WorldToCamera.ApplyPoint(p)
			u, vv, ok := Project(view.K, c)
			if !ok || u < 0 || vv < 0 || u >= float64(w) || vv >= float64(h) {
				continue
			}
			pixel := int(vv)*w + int(u)
			hits[i] = hit{pixel: pixel, depth: c.Z}
			if d, seen := nearest[pixel]; !seen || c.Z < d {
				nearest[pixel] = c.Z
			}
		}

		for i, ht := range hits {
			if ht.pixel < 0 || ht.depth > nearest[ht.pixel]+visibilityTolerance {
				continue
			}
			m.Set(i, v, view.Labels.Pix[ht.pixel])
		}
	}
	return m, nil
}
