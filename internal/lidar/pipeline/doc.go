// Package pipeline segments map windows end to end.
//
// It is the composition root: it reads a dataset, builds the map and its
// per-view instance matrix (l2frames, masks, l4perception), conditions and
// partitions the affinity graph (ncut) and scores the result (l6objects).
// None of those packages import pipeline/. Persistence and charts are
// adapters driven by the callers in cmd/.
package pipeline
