package masks

// LabelImage is a per-pixel instance id image. 0 means background.
type LabelImage struct {
	Width, Height int
	Pix           []int // Row-major
}

// At returns the id at (x,y), or 0 outside the image.
func (l *LabelImage) At(x, y int) int {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return 0
	}
	return l.Pix[y*l.Width+x]
}

// ToLabelImage paints mask i with id i+1. Later masks overwrite earlier
// ones where they overlap.
func ToLabelImage(ms []Mask, width, height int) *LabelImage {
	img := &LabelImage{Width: width, Height: height, Pix: make([]int, width*height)}
	for i, m := range ms {
		id := i + 1
		for y := 0; y < min(height, m.Height); y++ {
			for x := 0; x < min(width, m.Width); x++ {
				if m.Segmentation[y*m.Width+x] {
					img.Pix[y*width+x] = id
				}
			}
		}
	}
	return img
}
