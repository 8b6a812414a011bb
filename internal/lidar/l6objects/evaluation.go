package l6objects

import (
	"fmt"
	"sort"
)

// Default evaluation thresholds
const (
	// DefaultInstanceThreshold is the percentage of a cluster's voxels that
	// must hold a ground-truth instance point for the cluster to count as
	// a predicted instance.
	DefaultInstanceThreshold = 50.0
	// DefaultIoUThreshold is the minimum IoU of a true-positive match.
	DefaultIoUThreshold = 0.5
)

// Metrics scores one window's predicted instances against ground truth.
type Metrics struct {
	Precision     float64
	Recall        float64
	FScore        float64
	GTInstances   int // Distinct non-zero ground-truth ids
	PredInstances int // Distinct non-zero predicted ids
	TruePositives int
}

// PredictedInstances expands clusters of voxels into a per-point predicted
// instance array aligned with gtInstances (the labels of the points the
// trace indexes). A cluster becomes instance k (numbered from 1 in cluster
// order) when at least thresholdPct percent of its voxels contain a point
// with a non-zero ground-truth instance; every point traced by its voxels
// then gets id k. Points of rejected clusters keep 0. Empty clusters are
// skipped.
func PredictedInstances(gtInstances []int, clusters [][]int, trace [][]int, thresholdPct float64) ([]int, error) {
	pred := make([]int, len(gtInstances))
	nextID := 1
	for c, cluster := range clusters {
		if len(cluster) == 0 {
			continue
		}
		inGT := 0
		for _, voxel := range cluster {
			if voxel < 0 || voxel >= len(trace) {
				return nil, fmt.Errorf("cluster %d: voxel %d outside trace of %d", c, voxel, len(trace))
			}
			hit := false
			for _, p := range trace[voxel] {
				if p < 0 || p >= len(gtInstances) {
					return nil, fmt.Errorf("voxel %d: point %d outside %d labels", voxel, p, len(gtInstances))
				}
				if gtInstances[p] > 0 {
					hit = true
					break
				}
			}
			if hit {
				inGT++
			}
		}

		share := float64(inGT) / float64(len(cluster)) * 100
		if share < thresholdPct {
			continue
		}
		for _, voxel := range cluster {
			for _, p := range trace[voxel] {
				pred[p] = nextID
			}
		}
		nextID++
	}
	return pred, nil
}

// Evaluate matches predicted and ground-truth instances one-to-one and
// reports precision (matches / predicted), recall (matches / ground truth)
// and their harmonic mean. A pair may match only when its IoU over points
// is at least iouThreshold; among admissible pairings the assignment with
// the most matches wins. Label 0 is unlabeled in both arrays.
func Evaluate(pred, gt []int, iouThreshold float64) (Metrics, error) {
	if len(pred) != len(gt) {
		return Metrics{}, fmt.Errorf("%d predicted labels but %d ground-truth labels", len(pred), len(gt))
	}
	if !(iouThreshold > 0) || iouThreshold > 1 {
		return Metrics{}, fmt.Errorf("iou threshold must be in (0, 1], got %v", iouThreshold)
	}

	predIDs, predSize := instanceSizes(pred)
	gtIDs, gtSize := instanceSizes(gt)
	m := Metrics{GTInstances: len(gtIDs), PredInstances: len(predIDs)}
	if len(predIDs) == 0 || len(gtIDs) == 0 {
		return m, nil
	}

	predRow := indexOf(predIDs)
	gtCol := indexOf(gtIDs)
	overlap := make([][]int, len(predIDs))
	for i := range overlap {
		overlap[i] = make([]int, len(gtIDs))
	}
	for k := range pred {
		if pred[k] != 0 && gt[k] != 0 {
			overlap[predRow[pred[k]]][gtCol[gt[k]]]++
		}
	}

	cost := make([][]float64, len(predIDs))
	for i, pid := range predIDs {
		cost[i] = make([]float64, len(gtIDs))
		for j, gid := range gtIDs {
			inter := overlap[i][j]
			iou := float64(inter) / float64(predSize[pid]+gtSize[gid]-inter)
			if inter > 0 && iou >= iouThreshold {
				cost[i][j] = 1 - iou
			} else {
				cost[i][j] = forbiddenCost
			}
		}
	}
	for _, col := range HungarianAssign(cost) {
		if col >= 0 {
			m.TruePositives++
		}
	}

	m.Precision = float64(m.TruePositives) / float64(m.PredInstances)
	m.Recall = float64(m.TruePositives) / float64(m.GTInstances)
	if m.Precision+m.Recall > 0 {
		m.FScore = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// CombineLabels merges ground-truth arrays into one label per point: the
// instance id where it is non-zero, the semantic class otherwise.
func CombineLabels(semantic, instance []int) ([]int, error) {
	if len(semantic) != len(instance) {
		return nil, fmt.Errorf("%d semantic labels but %d instance labels", len(semantic), len(instance))
	}
	out := make([]int, len(semantic))
	for i := range semantic {
		if instance[i] != 0 {
			out[i] = instance[i]
		} else {
			out[i] = semantic[i]
		}
	}
	return out, nil
}

// HasInstances reports whether any label is non-zero.
func HasInstances(labels []int) bool {
	for _, l := range labels {
		if l != 0 {
			return true
		}
	}
	return false
}

// instanceSizes returns the sorted distinct non-zero ids and their counts.
func instanceSizes(labels []int) ([]int, map[int]int) {
	size := make(map[int]int)
	for _, l := range labels {
		if l != 0 {
			size[l]++
		}
	}
	ids := make([]int, 0, len(size))
	for id := range size {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, size
}

func indexOf(ids []int) map[int]int {
	idx := make(map[int]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}
