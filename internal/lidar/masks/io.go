package masks

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// supportedExtensions lists the mask image formats LoadDir picks up.
var supportedExtensions = map[string]bool{
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// FromImage converts an image to a mask. Any pixel with a non-zero color
// channel is foreground.
func FromImage(img image.Image) Mask {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	seg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			seg[y*w+x] = r|g|bl != 0
		}
	}
	m, _ := New(w, h, seg) // dimensions match by construction
	return m
}

// LoadMask decodes a PNG, BMP or TIFF mask image.
func LoadMask(path string) (Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return Mask{}, fmt.Errorf("open mask: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Mask{}, fmt.Errorf("decode mask %s: %w", path, err)
	}
	return FromImage(img), nil
}

// LoadDir loads every mask image in dir, in file name order. Files with
// other extensions are ignored. A missing directory yields no masks.
func LoadDir(dir string) ([]Mask, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mask dir: %w", err)
	}

	var ms []Mask
	for _, e := range entries {
		if e.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		m, err := LoadMask(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(ms) > 0 && (m.Width != ms[0].Width || m.Height != ms[0].Height) {
			return nil, fmt.Errorf("mask %s is %dx%d, expected %dx%d", e.Name(), m.Width, m.Height, ms[0].Width, ms[0].Height)
		}
		ms = append(ms, m)
	}
	return ms, nil
}
