package monitor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mapseg/internal/lidar/ncut"
)

// ErrNoCuts is returned by SavePlot when nothing plottable was recorded.
var ErrNoCuts = errors.New("no finite cut costs recorded")

// CutRecorder collects normalized cut steps across windows so the cost
// distribution can be plotted after a run. Safe for concurrent use.
type CutRecorder struct {
	mu    sync.Mutex
	steps []RecordedCut
}

// RecordedCut is one cut step tagged with the window it came from.
type RecordedCut struct {
	Seq    int // Order of arrival across the whole run
	Window string
	Step   ncut.CutStep
}

// CutStats counts the recorded steps by outcome.
type CutStats struct {
	Total      int
	Splits     int
	Leaves     int
	Degenerate int
	MaxDepth   int
}

// NewCutRecorder creates an empty recorder.
func NewCutRecorder() *CutRecorder {
	return &CutRecorder{}
}

// Record appends a step. Its signature matches the pipeline's OnCut hook
// once the window is formatted.
func (r *CutRecorder) Record(window string, step ncut.CutStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, RecordedCut{Seq: len(r.steps), Window: window, Step: step})
}

// Steps returns a copy of the recorded steps in arrival order.
func (r *CutRecorder) Steps() []RecordedCut {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedCut(nil), r.steps...)
}

// Reset clears all recorded steps.
func (r *CutRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = nil
}

// Stats summarizes the recorded steps.
func (r *CutRecorder) Stats() CutStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s CutStats
	for _, rc := range r.steps {
		s.Total++
		if rc.Step.Split {
			s.Splits++
		} else {
			s.Leaves++
		}
		if rc.Step.Degenerate {
			s.Degenerate++
		}
		if rc.Step.Depth > s.MaxDepth {
			s.MaxDepth = rc.Step.Depth
		}
	}
	return s
}

// SavePlot writes a PNG of cut cost against arrival order, one color per
// recursion depth, with the split threshold drawn as a horizontal line.
// Steps with an infinite cost are left out.
func (r *CutRecorder) SavePlot(path string, threshold float64) error {
	r.mu.Lock()
	byDepth := make(map[int]plotter.XYs)
	for _, rc := range r.steps {
		if math.IsInf(rc.Step.Cost, 0) || math.IsNaN(rc.Step.Cost) {
			continue
		}
		byDepth[rc.Step.Depth] = append(byDepth[rc.Step.Depth], plotter.XY{X: float64(rc.Seq), Y: rc.Step.Cost})
	}
	total := len(r.steps)
	r.mu.Unlock()

	if len(byDepth) == 0 {
		return ErrNoCuts
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Normalized cut cost (%d steps)", total)
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Cost"

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	colors := Palette(len(depths))
	for i, d := range depths {
		sc, err := plotter.NewScatter(byDepth[d])
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = colors[i]
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("depth %d", d), sc)
	}

	line := plotter.NewFunction(func(float64) float64 { return threshold })
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	p.Legend.Add("threshold", line)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save cut plot: %w", err)
	}
	return nil
}
