package l4perception

// Clusterer abstracts the clustering implementation so the pipeline can
// run the spectral segmenter and the density baseline side by side.
type Clusterer interface {
	// Cluster groups point indices. Points left out of every group are noise.
	Cluster(points []Point) ([][]int, error)

	// Name identifies the algorithm in stored runs.
	Name() string
}
