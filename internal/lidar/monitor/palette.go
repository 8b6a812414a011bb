package monitor

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette returns n distinct colors spread evenly around the hue circle.
// The same n always yields the same colors.
func Palette(n int) []colorful.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]colorful.Color, n)
	for i := range colors {
		hue := 360 * float64(i) / float64(n)
		// Alternate lightness so neighbours stay apart for large n.
		l := 0.5
		if i%2 == 1 {
			l = 0.4
		}
		colors[i] = colorful.Hsl(hue, 0.7, l).Clamped()
	}
	return colors
}
