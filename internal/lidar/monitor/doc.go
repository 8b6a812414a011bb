// Package monitor renders segmentation output for inspection.
//
// Responsibilities:
//   - HTML cluster pages (go-echarts): a top-down scatter with one series
//     per cluster and a bar chart of cluster sizes.
//   - Cut-cost PNG plots (gonum/plot) from the bipartitions recorded
//     while a window was partitioned.
//
// Dependency rule: monitor reads layer outputs (l4perception points,
// ncut cut steps) and never feeds anything back into the pipeline.
package monitor
