package masks

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const (
	imgW = 20
	imgH = 20
)

// rect returns a mask with pixels [x0,x1]×[y0,y1] set.
func rect(t *testing.T, x0, y0, x1, y1 int) Mask {
	t.Helper()
	seg := make([]bool, imgW*imgH)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			seg[y*imgW+x] = true
		}
	}
	m, err := New(imgW, imgH, seg)
	require.NoError(t, err)
	return m
}

// checker sets pixels in [0,n)² whose parity of x+y equals parity.
func checker(t *testing.T, n, parity int) Mask {
	t.Helper()
	seg := make([]bool, imgW*imgH)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if (x+y)%2 == parity {
				seg[y*imgW+x] = true
			}
		}
	}
	m, err := New(imgW, imgH, seg)
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	m := rect(t, 2, 3, 6, 4)
	assert.Equal(t, BBox{X: 2, Y: 3, W: 4, H: 1}, m.BBox)
	assert.Equal(t, 10, m.Area)

	empty, err := New(2, 2, make([]bool, 4))
	require.NoError(t, err)
	assert.Zero(t, empty.Area)

	_, err = New(3, 3, make([]bool, 4))
	assert.Error(t, err)
}

func TestBBoxIntersect(t *testing.T) {
	tests := []struct {
		name   string
		a, b   BBox
		want   BBox
		wantOK bool
	}{
		{"overlap", BBox{0, 0, 4, 4}, BBox{2, 1, 4, 4}, BBox{2, 1, 2, 3}, true},
		{"contained", BBox{0, 0, 10, 10}, BBox{2, 2, 1, 1}, BBox{2, 2, 1, 1}, true},
		{"touching edge", BBox{0, 0, 4, 4}, BBox{4, 0, 2, 2}, BBox{4, 0, 0, 2}, true},
		{"disjoint x", BBox{0, 0, 4, 4}, BBox{5, 0, 2, 2}, BBox{}, false},
		{"disjoint y", BBox{0, 0, 4, 4}, BBox{0, 5, 2, 2}, BBox{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.a.Intersect(tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, BBox{0, 0, 6, 5}, BBox{0, 0, 4, 4}.Union(BBox{2, 1, 4, 4}))
}

func TestIntersectionAndUnion(t *testing.T) {
	a := rect(t, 0, 0, 3, 3)
	b := rect(t, 2, 2, 5, 5)

	inter, ok := Intersection(a, b)
	require.True(t, ok)
	assert.Equal(t, 4, inter.Area)
	assert.Equal(t, BBox{2, 2, 1, 1}, inter.BBox)

	u := Union(a, b)
	assert.Equal(t, 28, u.Area)
	assert.Equal(t, BBox{0, 0, 5, 5}, u.BBox)

	_, ok = Intersection(a, rect(t, 10, 10, 12, 12))
	assert.False(t, ok)
}

func TestReduceDetail_PixelOverlapMerges(t *testing.T) {
	a := rect(t, 0, 0, 4, 4)
	b := rect(t, 1, 1, 4, 4)
	far := rect(t, 15, 15, 17, 17)
	aBefore := append([]bool(nil), a.Segmentation...)

	got := ReduceDetail([]Mask{a, b, far}, DefaultUnionThreshold, DefaultMaskThreshold)
	require.Len(t, got, 2)

	// Untouched masks first, merged unions last.
	assert.Equal(t, far.BBox, got[0].BBox)
	assert.Equal(t, 25, got[1].Area)
	assert.Equal(t, BBox{0, 0, 4, 4}, got[1].BBox)

	if diff := cmp.Diff(aBefore, a.Segmentation); diff != "" {
		t.Errorf("input mask was modified (-before +after):\n%s", diff)
	}
}

func TestReduceDetail_ChainMerge(t *testing.T) {
	big := rect(t, 0, 0, 9, 9)
	lone := rect(t, 15, 0, 18, 3)
	inside1 := rect(t, 0, 0, 1, 1)
	inside2 := rect(t, 7, 7, 9, 9)

	got := ReduceDetail([]Mask{big, lone, inside1, inside2}, DefaultUnionThreshold, DefaultMaskThreshold)
	require.Len(t, got, 2)
	assert.Equal(t, lone.BBox, got[0].BBox)
	assert.Equal(t, 100, got[1].Area)
}

func TestReduceDetail_BoxOverlapMerges(t *testing.T) {
	// Same box, disjoint pixels: only the box criterion can merge them.
	even := checker(t, 4, 0)
	odd := checker(t, 4, 1)
	_, ok := Intersection(even, odd)
	require.True(t, ok)

	got := ReduceDetail([]Mask{even, odd}, DefaultUnionThreshold, DefaultMaskThreshold)
	require.Len(t, got, 1)
	assert.Equal(t, 16, got[0].Area)

	// Raising the box threshold above 1 keeps them apart.
	got = ReduceDetail([]Mask{even, odd}, 1.1, DefaultMaskThreshold)
	assert.Len(t, got, 2)
}

func TestReduceDetail_NoMerge(t *testing.T) {
	ms := []Mask{rect(t, 0, 0, 2, 2), rect(t, 5, 5, 7, 7), rect(t, 10, 0, 12, 2)}
	got := ReduceDetail(ms, DefaultUnionThreshold, DefaultMaskThreshold)
	require.Len(t, got, 3)
	for i := range ms {
		assert.Equal(t, ms[i].BBox, got[i].BBox)
	}
	assert.Empty(t, ReduceDetail(nil, DefaultUnionThreshold, DefaultMaskThreshold))
}

func TestReduceDetail_Idempotent(t *testing.T) {
	ms := []Mask{
		rect(t, 0, 0, 5, 5),
		rect(t, 12, 0, 16, 4),
		rect(t, 3, 3, 6, 6),
		rect(t, 13, 1, 16, 4),
		rect(t, 8, 10, 10, 18),
		rect(t, 0, 15, 3, 19),
	}
	once := ReduceDetail(ms, DefaultUnionThreshold, DefaultMaskThreshold)
	twice := ReduceDetail(once, DefaultUnionThreshold, DefaultMaskThreshold)
	assert.Len(t, twice, len(once))
	assert.Less(t, len(once), len(ms))
}

func TestReduceDetail_LaterPassMergesGrownUnion(t *testing.T) {
	big := rect(t, 0, 0, 9, 9)     // 100 px
	right := rect(t, 10, 0, 12, 4) // 15 px, disjoint from big
	bridge := rect(t, 6, 0, 11, 4) // 30 px, 20 inside big
	ms := []Mask{big, right, bridge}

	// The first pass folds bridge into big; right only overlaps the union.
	first, merged := reducePass(ms, DefaultUnionThreshold, DefaultMaskThreshold)
	require.True(t, merged)
	require.Len(t, first, 2)
	assert.Equal(t, right.BBox, first[0].BBox)
	assert.Equal(t, 110, first[1].Area)

	got := ReduceDetail(ms, DefaultUnionThreshold, DefaultMaskThreshold)
	require.Len(t, got, 1)
	assert.Equal(t, 115, got[0].Area)
	assert.Equal(t, BBox{X: 0, Y: 0, W: 12, H: 9}, got[0].BBox)
}

func TestToLabelImage(t *testing.T) {
	a := rect(t, 0, 0, 3, 3)
	b := rect(t, 2, 2, 5, 5)

	img := ToLabelImage([]Mask{a, b}, imgW, imgH)
	assert.Equal(t, 1, img.At(0, 0))
	assert.Equal(t, 2, img.At(3, 3), "later masks overwrite earlier ones")
	assert.Equal(t, 2, img.At(5, 5))
	assert.Equal(t, 0, img.At(10, 10))
	assert.Equal(t, 0, img.At(-1, 0))

	empty := ToLabelImage(nil, 4, 3)
	assert.Len(t, empty.Pix, 12)
}

func grayMask(w, h int, on [][2]int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for _, p := range on {
		img.SetGray(p[0], p[1], color.Gray{Y: 255})
	}
	return img
}

func TestFromImage(t *testing.T) {
	m := FromImage(grayMask(6, 4, [][2]int{{1, 1}, {4, 2}, {2, 3}}))
	assert.Equal(t, 6, m.Width)
	assert.Equal(t, 4, m.Height)
	assert.Equal(t, 3, m.Area)
	assert.Equal(t, BBox{X: 1, Y: 1, W: 3, H: 2}, m.BBox)
	assert.True(t, m.At(4, 2))
	assert.False(t, m.At(0, 0))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	img := grayMask(8, 8, [][2]int{{0, 0}, {1, 1}})

	write := func(name string, encode func(f *os.File) error) {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, encode(f))
	}
	write("000.png", func(f *os.File) error { return png.Encode(f, img) })
	write("001.bmp", func(f *os.File) error { return bmp.Encode(f, img) })
	write("002.tif", func(f *os.File) error { return tiff.Encode(f, img, nil) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	ms, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	for _, m := range ms {
		assert.Equal(t, 2, m.Area)
		assert.Equal(t, BBox{0, 0, 1, 1}, m.BBox)
	}

	missing, err := LoadDir(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = LoadMask(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}
