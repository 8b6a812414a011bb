// Package masks handles the 2D instance masks produced per camera image by
// the external segmentation model: bounding-box geometry, merging of
// over-segmented masks, and flattening into a per-pixel instance-id image.
package masks

import "fmt"

// BBox is an axis-aligned box in XYWH pixel form. A box spans
// [X, X+W] × [Y, Y+H], so boxes sharing an edge overlap with zero extent.
type BBox struct {
	X, Y, W, H int
}

// Area returns W·H.
func (b BBox) Area() int {
	return b.W * b.H
}

// Intersect returns the overlap of two boxes, or false when they are
// disjoint along either axis.
func (b BBox) Intersect(o BBox) (BBox, bool) {
	if b.X > o.X+o.W || b.X+b.W < o.X || b.Y > o.Y+o.H || b.Y+b.H < o.Y {
		return BBox{}, false
	}
	left, top := max(b.X, o.X), max(b.Y, o.Y)
	right, bottom := min(b.X+b.W, o.X+o.W), min(b.Y+b.H, o.Y+o.H)
	return BBox{X: left, Y: top, W: right - left, H: bottom - top}, true
}

// Union returns the smallest box enclosing both boxes.
func (b BBox) Union(o BBox) BBox {
	left, top := min(b.X, o.X), min(b.Y, o.Y)
	right, bottom := max(b.X+b.W, o.X+o.W), max(b.Y+b.H, o.Y+o.H)
	return BBox{X: left, Y: top, W: right - left, H: bottom - top}
}

// Mask is one binary instance mask. Segmentation is row-major, Width×Height.
type Mask struct {
	Segmentation []bool
	Width        int
	Height       int
	BBox         BBox
	Area         int // Number of set pixels
}

// New builds a mask from a row-major segmentation and derives its box and
// area. The box follows the XYWH convention of the segmentation model,
// where W = maxX − minX.
func New(width, height int, segmentation []bool) (Mask, error) {
	if width < 0 || height < 0 || len(segmentation) != width*height {
		return Mask{}, fmt.Errorf("segmentation has %d pixels, want %dx%d", len(segmentation), width, height)
	}
	m := Mask{Segmentation: segmentation, Width: width, Height: height}
	m.BBox, m.Area = bounds(width, segmentation)
	return m, nil
}

// At reports whether pixel (x,y) is set. Pixels outside the mask are unset.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Segmentation[y*m.Width+x]
}

func bounds(width int, segmentation []bool) (BBox, int) {
	area := 0
	minX, minY, maxX, maxY := -1, -1, -1, -1
	for i, set := range segmentation {
		if !set {
			continue
		}
		x, y := i%width, i/width
		if area == 0 {
			minX, minY, maxX, maxY = x, y, x, y
		} else {
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
		area++
	}
	if area == 0 {
		return BBox{}, 0
	}
	return BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, area
}

// Intersection returns the pixel-wise AND of two masks with the
// intersection of their boxes. It returns false when the boxes do not
// overlap. The result has a's dimensions.
func Intersection(a, b Mask) (Mask, bool) {
	box, ok := a.BBox.Intersect(b.BBox)
	if !ok {
		return Mask{}, false
	}
	out := Mask{
		Segmentation: make([]bool, len(a.Segmentation)),
		Width:        a.Width,
		Height:       a.Height,
		BBox:         box,
	}
	for i, set := range a.Segmentation {
		if set && b.At(i%a.Width, i/a.Width) {
			out.Segmentation[i] = true
			out.Area++
		}
	}
	return out, true
}

// Union returns the pixel-wise OR of two masks with the union of their
// boxes. The result has a's dimensions.
func Union(a, b Mask) Mask {
	out := Mask{
		Segmentation: make([]bool, len(a.Segmentation)),
		Width:        a.Width,
		Height:       a.Height,
		BBox:         a.BBox.Union(b.BBox),
	}
	for i, set := range a.Segmentation {
		if set || b.At(i%a.Width, i/a.Width) {
			out.Segmentation[i] = true
			out.Area++
		}
	}
	return out
}
