package pipeline

import "fmt"

// Window is the half-open scan range [Start, End) assembled into one map.
type Window struct {
	Start, End int
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start, w.End)
}

// Windows tiles [from, to) with consecutive windows of the given size.
// The last window is clipped to to.
func Windows(from, to, size int) ([]Window, error) {
	if size < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid frame range [%d, %d)", from, to)
	}
	var out []Window
	for start := from; start < to; start += size {
		out = append(out, Window{Start: start, End: min(start+size, to)})
	}
	return out, nil
}
