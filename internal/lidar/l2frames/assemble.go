package l2frames

// Scan is one LiDAR sweep in its sensor frame with the pose that takes it
// into the world frame.
type Scan struct {
	Index  int // Frame index within the sequence
	Points []Point
	Pose   Pose
}

// AssembleMap transforms every scan into the world frame and concatenates
// them in scan order.
func AssembleMap(scans []Scan) []Point {
	total := 0
	for _, s := range scans {
		total += len(s.Points)
	}
	if total == 0 {
		return nil
	}

	world := make([]Point, 0, total)
	for _, s := range scans {
		for _, p := range s.Points {
			world = append(world, s.Pose.ApplyPoint(p))
		}
	}
	return world
}
