package l4perception

import (
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
	"github.com/banshee-data/mapseg/internal/lidar/masks"
)

func TestSpatialIndex_CellNegativeCoordinates(t *testing.T) {
	si := NewSpatialIndex(0.5, Point{})
	got := si.Cell(Point{X: -0.1, Y: 0.49, Z: -1.0})
	want := CellKey{X: -1, Y: 0, Z: -2}
	if got != want {
		t.Errorf("Cell = %+v, want %+v", got, want)
	}
}

func TestSpatialIndex_CellIDUnique(t *testing.T) {
	seen := make(map[int64]CellKey)
	for x := int64(-4); x <= 4; x++ {
		for y := int64(-4); y <= 4; y++ {
			for z := int64(-4); z <= 4; z++ {
				k := CellKey{X: x, Y: y, Z: z}
				id := cellID(k)
				if prev, dup := seen[id]; dup {
					t.Fatalf("cells %+v and %+v share id %d", prev, k, id)
				}
				seen[id] = k
			}
		}
	}
}

func TestSpatialIndex_RegionQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	points := make([]Point, 300)
	for i := range points {
		points[i] = Point{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64() * 2}
	}
	const eps = 0.8

	// Cell size smaller than eps exercises the multi-cell reach.
	for _, cell := range []float64{eps, eps / 2} {
		lo, _ := Bounds(points)
		si := NewSpatialIndex(cell, lo)
		si.Build(points)
		for i := range points {
			got := si.RegionQuery(points, i, eps)
			sort.Ints(got)
			var want []int
			for j := range points {
				if squaredDistance(points[i], points[j]) <= eps*eps {
					want = append(want, j)
				}
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("cell %v point %d: got %v, want %v", cell, i, got, want)
			}
		}
	}
}

func TestBounds(t *testing.T) {
	lo, hi := Bounds([]Point{{X: 1, Y: -2, Z: 3}, {X: -1, Y: 5, Z: 0}})
	if lo != (Point{X: -1, Y: -2, Z: 0}) || hi != (Point{X: 1, Y: 5, Z: 3}) {
		t.Errorf("Bounds = %v, %v", lo, hi)
	}
	lo, hi = Bounds(nil)
	if lo != (Point{}) || hi != (Point{}) {
		t.Errorf("empty Bounds = %v, %v", lo, hi)
	}
}

func TestInstanceMatrix_FromRowsAndSubset(t *testing.T) {
	m, err := InstanceMatrixFromRows([][]int{{1, 0}, {0, 0}, {2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if n, v := m.Dims(); n != 3 || v != 2 {
		t.Fatalf("Dims = %d,%d", n, v)
	}
	sub := m.Subset([]int{2, 0})
	if !reflect.DeepEqual(sub.Row(0), []int{2, 3}) || !reflect.DeepEqual(sub.Row(1), []int{1, 0}) {
		t.Errorf("Subset rows = %v %v", sub.Row(0), sub.Row(1))
	}
	sub.Set(0, 0, 9)
	if m.At(2, 0) != 2 {
		t.Error("Subset aliases the source matrix")
	}

	if _, err := InstanceMatrixFromRows([][]int{{1}, {1, 2}}); err == nil {
		t.Error("expected error for ragged rows")
	}
}

func TestSubsetGeneric(t *testing.T) {
	got := Subset([]string{"a", "b", "c", "d"}, []int{3, 1})
	if !reflect.DeepEqual(got, []string{"d", "b"}) {
		t.Errorf("Subset = %v", got)
	}
}

func TestNotZeroIndices(t *testing.T) {
	m, _ := InstanceMatrixFromRows([][]int{{0, 0}, {0, 4}, {1, 0}, {0, 0}})
	if got := NotZeroIndices(m); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("NotZeroIndices = %v", got)
	}
}

func TestInCubeIndices(t *testing.T) {
	points := []Point{{Z: 0.5}, {Z: -2}, {X: 40, Z: 0.99}, {Z: 1}}
	got, err := InCubeIndices(points, l2frames.IdentityPose(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("InCubeIndices = %v, want [0 2]", got)
	}

	// Center shifted along z: the slab moves with it.
	center := l2frames.IdentityPose()
	center.T[11] = -2
	got, err = InCubeIndices(points, center, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("shifted InCubeIndices = %v, want [1]", got)
	}
}

func TestStatisticalOutlierIndices_DropsFarPoint(t *testing.T) {
	var points []Point
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			for z := 0; z < 3; z++ {
				points = append(points, Point{X: float64(x) * 0.1, Y: float64(y) * 0.1, Z: float64(z) * 0.1})
			}
		}
	}
	points = append(points, Point{X: 100})

	got, err := StatisticalOutlierIndices(points, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 27 {
		t.Fatalf("kept %d points, want 27", len(got))
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("kept index %d at position %d", idx, i)
		}
	}
}

func TestStatisticalOutlierIndices_CoincidentPointsDropped(t *testing.T) {
	points := []Point{{}, {}, {}, {X: 1}, {X: 1.1}, {X: 1.2}}
	got, err := StatisticalOutlierIndices(points, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("kept %v, want [3 4 5]", got)
	}
}

func TestStatisticalOutlierIndices_FewerPointsThanNeighbors(t *testing.T) {
	got, err := StatisticalOutlierIndices([]Point{{}, {X: 1}, {X: 3}}, 25, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("kept %v, want [0 1 2]", got)
	}
}

func TestStatisticalOutlierIndices_UniformCloudDropsAll(t *testing.T) {
	// Every mean distance equals the threshold, and the cut is strict.
	got, err := StatisticalOutlierIndices([]Point{{}, {X: 1}}, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("kept %v, want none", got)
	}
}

func TestStatisticalOutlierIndices_InvalidParams(t *testing.T) {
	if _, err := StatisticalOutlierIndices(nil, 0, 1); err == nil {
		t.Error("expected error for nb_neighbors 0")
	}
	if _, err := StatisticalOutlierIndices(nil, 3, 0); err == nil {
		t.Error("expected error for std_ratio 0")
	}
}

func TestVoxelDownsample_TraceAndMode(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0, Z: 0},
		{X: 0.1, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0.05, Y: 0.05, Z: 0},
	}
	inst, _ := InstanceMatrixFromRows([][]int{{1, 0}, {2, 0}, {3, 3}, {1, 0}})

	res, err := VoxelDownsample(points, inst, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	wantTrace := [][]int{{0, 1, 3}, {2}}
	if !reflect.DeepEqual(res.Trace, wantTrace) {
		t.Fatalf("Trace = %v, want %v", res.Trace, wantTrace)
	}
	if math.Abs(res.Points[0].X-0.05) > 1e-12 || math.Abs(res.Points[0].Y-0.05/3) > 1e-12 {
		t.Errorf("centroid = %+v", res.Points[0])
	}
	if !reflect.DeepEqual(res.Instances.Row(0), []int{1, 0}) {
		t.Errorf("mode row = %v, want [1 0]", res.Instances.Row(0))
	}
	if !reflect.DeepEqual(res.Instances.Row(1), []int{3, 3}) {
		t.Errorf("single member row = %v", res.Instances.Row(1))
	}
}

func TestVoxelDownsample_ModeTieFirstSeen(t *testing.T) {
	points := []Point{{X: 0.01}, {X: 0.02}, {X: 0.03}, {X: 0.04}}
	inst, _ := InstanceMatrixFromRows([][]int{{6}, {5}, {5}, {6}})
	res, err := VoxelDownsample(points, inst, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Instances.Row(0); got[0] != 6 {
		t.Errorf("tie resolved to %v, want first seen 6", got)
	}
}

func TestVoxelDownsample_TraceCoversEveryIndexOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	points := make([]Point, 500)
	for i := range points {
		points[i] = Point{X: rng.NormFloat64() * 3, Y: rng.NormFloat64() * 3, Z: rng.NormFloat64()}
	}
	res, err := VoxelDownsample(points, NewInstanceMatrix(len(points), 1), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trace) != len(res.Points) {
		t.Fatalf("%d trace entries for %d voxels", len(res.Trace), len(res.Points))
	}
	seen := make([]int, len(points))
	for _, members := range res.Trace {
		if len(members) == 0 {
			t.Fatal("empty voxel in trace")
		}
		for _, i := range members {
			seen[i]++
		}
	}
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d appears %d times", i, c)
		}
	}
}

func TestVoxelDownsample_Errors(t *testing.T) {
	if _, err := VoxelDownsample([]Point{{}}, NewInstanceMatrix(1, 1), 0); err == nil {
		t.Error("expected error for zero voxel size")
	}
	if _, err := VoxelDownsample([]Point{{}}, NewInstanceMatrix(2, 1), 1); err == nil {
		t.Error("expected error for row count mismatch")
	}
	res, err := VoxelDownsample(nil, NewInstanceMatrix(0, 3), 1)
	if err != nil || len(res.Points) != 0 {
		t.Errorf("empty input: %v %v", res, err)
	}
}

func TestProject(t *testing.T) {
	K := [9]float64{2, 0, 1, 0, 2, 1, 0, 0, 1}
	u, v, ok := Project(K, Point{X: 1, Y: 2, Z: 2})
	if !ok || u != 2 || v != 3 {
		t.Errorf("Project = %v,%v,%v", u, v, ok)
	}
	if _, _, ok := Project(K, Point{Z: -1}); ok {
		t.Error("point behind the camera projected")
	}
}

func TestBuildInstanceMatrix_DepthTest(t *testing.T) {
	labels := &masks.LabelImage{Width: 4, Height: 4, Pix: make([]int, 16)}
	labels.Pix[2*4+2] = 3
	view := View{
		Labels:        labels,
		WorldToCamera: l2frames.IdentityPose(),
		K:             [9]float64{1, 0, 2, 0, 1, 2, 0, 0, 1},
	}
	points := []Point{
		{Z: 1},       // pixel (2,2), nearest
		{Z: 3},       // same pixel, hidden
		{Z: -1},      // behind
		{X: 5, Z: 1}, // outside the image
		{Z: 1.2},     // same pixel, inside tolerance
	}

	m, err := BuildInstanceMatrix(points, []View{view, {}}, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{3, 0, 0, 0, 3}
	for i, w := range want {
		if m.At(i, 0) != w {
			t.Errorf("point %d view 0 = %d, want %d", i, m.At(i, 0), w)
		}
		if m.At(i, 1) != 0 {
			t.Errorf("point %d labeled in view without labels", i)
		}
	}

	m, err = BuildInstanceMatrix(points, []View{view}, math.Inf(1))
	if err != nil {
		t.Fatal(err)
	}
	if m.At(1, 0) != 3 {
		t.Error("depth test not disabled by infinite tolerance")
	}

	if _, err := BuildInstanceMatrix(points, []View{view}, -1); err == nil {
		t.Error("expected error for negative tolerance")
	}
}

func TestPairwiseDistances(t *testing.T) {
	d := PairwiseDistances([]Point{{}, {X: 3, Y: 4}, {Z: 1}})
	if d.At(0, 1) != 5 || d.At(1, 0) != 5 {
		t.Errorf("d(0,1) = %v", d.At(0, 1))
	}
	if d.At(0, 2) != 1 || d.At(2, 2) != 0 {
		t.Errorf("d(0,2) = %v, d(2,2) = %v", d.At(0, 2), d.At(2, 2))
	}
	if n := PairwiseDistances(nil).SymmetricDim(); n != 0 {
		t.Errorf("empty dim = %d", n)
	}
}

func TestDBSCAN_TwoSeparateClustersAndNoise(t *testing.T) {
	var points []Point
	for i := 0; i < 6; i++ {
		points = append(points, Point{X: float64(i) * 0.1})
	}
	for i := 0; i < 6; i++ {
		points = append(points, Point{X: 10 + float64(i)*0.1, Z: 1})
	}
	points = append(points, Point{X: 5, Y: 5, Z: 5})

	clusters := DBSCAN(points, DefaultDBSCANParams())
	want := [][]int{{0, 1, 2, 3, 4, 5}, {6, 7, 8, 9, 10, 11}}
	if !reflect.DeepEqual(clusters, want) {
		t.Errorf("clusters = %v, want %v", clusters, want)
	}
}

func TestDBSCAN_EmptyInput(t *testing.T) {
	if clusters := DBSCAN(nil, DefaultDBSCANParams()); clusters != nil {
		t.Errorf("expected nil, got %v", clusters)
	}
}

func TestDBSCANClusterer(t *testing.T) {
	var c Clusterer = DBSCANClusterer{Params: DBSCANParams{Eps: 0.5, MinPts: 1}}
	if c.Name() != "dbscan" {
		t.Errorf("Name = %q", c.Name())
	}
	clusters, err := c.Cluster([]Point{{}, {X: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Errorf("MinPts 1 should make every point a cluster, got %v", clusters)
	}
	if _, err := (DBSCANClusterer{}).Cluster(nil); err == nil {
		t.Error("expected error for zero params")
	}
}

func TestSummarizeCluster(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0, Z: 0},
		{X: 2, Y: 0, Z: 0},
		{X: 1, Y: 2, Z: 1},
		{X: 1, Y: 1, Z: 2},
		{X: 50, Y: 50, Z: 50}, // not a member
	}
	s := SummarizeCluster(points, []int{0, 1, 2, 3})

	if s.PointsCount != 4 {
		t.Errorf("PointsCount = %d", s.PointsCount)
	}
	if math.Abs(s.Centroid.X-1) > 1e-12 || math.Abs(s.Centroid.Y-0.75) > 1e-12 || math.Abs(s.Centroid.Z-0.75) > 1e-12 {
		t.Errorf("Centroid = %+v", s.Centroid)
	}
	if s.Max != (Point{X: 2, Y: 2, Z: 2}) || s.Min != (Point{}) {
		t.Errorf("bounds = %+v %+v", s.Min, s.Max)
	}
	if s.HeightP95 != 2 {
		t.Errorf("HeightP95 = %v", s.HeightP95)
	}
	if math.Abs(s.Density-0.5) > 1e-12 {
		t.Errorf("Density = %v, want 0.5", s.Density)
	}

	if (SummarizeCluster(points, nil) != ClusterSummary{}) {
		t.Error("empty members should give the zero summary")
	}
}
