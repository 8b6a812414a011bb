package masks

// Constants for mask reduction
const (
	// DefaultUnionThreshold is the default bbox intersection-over-union merge ratio
	DefaultUnionThreshold = 0.5
	// DefaultMaskThreshold is the default share of a mask covered by the intersection
	DefaultMaskThreshold = 0.6
)

// ReduceDetail merges over-segmented masks.
//
// Masks i < j are merged when the box intersection over box union is at
// least unionThreshold, or when the pixel intersection covers at least
// maskThreshold of either mask. A mask keeps absorbing later masks in the
// same pass, so merges chain. Untouched masks come first in input order,
// followed by the merged unions in the order of the mask that started them.
//
// Passes repeat until one merges nothing, so the result is a fixed point:
// reducing it again returns the same masks. A single pass can leave a mask
// that only overlaps another once that one has grown; those are merged by
// the next pass rather than returned separately. The input slice and its
// segmentations are never modified.
func ReduceDetail(ms []Mask, unionThreshold, maskThreshold float64) []Mask {
	out := append([]Mask(nil), ms...)
	for {
		next, merged := reducePass(out, unionThreshold, maskThreshold)
		if !merged {
			return out
		}
		out = next
	}
}

func reducePass(ms []Mask, unionThreshold, maskThreshold float64) ([]Mask, bool) {
	work := append([]Mask(nil), ms...)
	merged := make([]bool, len(work))
	var unions []Mask

	for i := range work {
		if merged[i] {
			continue
		}
		// The box area of i is taken before it starts absorbing others.
		boxAreaI := float64(work[i].BBox.Area())

		absorbed := false
		for j := i + 1; j < len(work); j++ {
			if merged[j] {
				continue
			}
			inter, ok := Intersection(work[i], work[j])
			if !ok {
				continue
			}
			interArea := float64(inter.Area)
			interBox := float64(inter.BBox.Area())
			unionBox := boxAreaI + float64(work[j].BBox.Area()) - interBox

			// Zero denominators yield NaN or Inf; NaN never passes a threshold.
			if interBox/unionBox >= unionThreshold ||
				interArea/float64(work[i].Area) >= maskThreshold ||
				interArea/float64(work[j].Area) >= maskThreshold {
				work[i] = Union(work[i], work[j])
				merged[j] = true
				absorbed = true
			}
		}
		if absorbed {
			merged[i] = true
			unions = append(unions, work[i])
		}
	}

	if len(unions) == 0 {
		return ms, false
	}
	result := make([]Mask, 0, len(work))
	for i, m := range work {
		if !merged[i] {
			result = append(result, m)
		}
	}
	return append(result, unions...), true
}
