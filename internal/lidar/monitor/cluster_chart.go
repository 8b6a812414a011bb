package monitor

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mapseg/internal/lidar/l4perception"
)

// DefaultMaxPointsPerSeries bounds the scatter size of one cluster.
const DefaultMaxPointsPerSeries = 5000

// ClusterPageOptions configures RenderClusterPage.
type ClusterPageOptions struct {
	Title      string
	Subtitle   string
	AssetsHost string // Empty uses the go-echarts default CDN

	// MaxPointsPerSeries strides large clusters down to this many points.
	// Zero means DefaultMaxPointsPerSeries.
	MaxPointsPerSeries int
}

// RenderClusterPage writes an HTML page with a top-down scatter of the
// clusters and a bar chart of their sizes. clusters index into points.
func RenderClusterPage(w io.Writer, points []l4perception.Point, clusters [][]int, o ClusterPageOptions) error {
	for ci, c := range clusters {
		for _, idx := range c {
			if idx < 0 || idx >= len(points) {
				return fmt.Errorf("cluster %d: index %d out of range [0,%d)", ci, idx, len(points))
			}
		}
	}
	if o.Title == "" {
		o.Title = "Clusters"
	}
	maxPts := o.MaxPointsPerSeries
	if maxPts <= 0 {
		maxPts = DefaultMaxPointsPerSeries
	}

	scatter := clusterScatter(points, clusters, o, maxPts)
	bar := clusterSizeBar(clusters, o)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.PageTitle = o.Title
	page.AddCharts(scatter, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render cluster page: %w", err)
	}
	return nil
}

// WriteClusterPage renders the cluster page to path, creating parent
// directories as needed.
func WriteClusterPage(path string, points []l4perception.Point, clusters [][]int, o ClusterPageOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := RenderClusterPage(f, points, clusters, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func clusterScatter(points []l4perception.Point, clusters [][]int, o ClusterPageOptions, maxPts int) *charts.Scatter {
	lo, hi := l4perception.Bounds(points)
	pad := math.Max(math.Max(math.Abs(lo.X), math.Abs(hi.X)), math.Max(math.Abs(lo.Y), math.Abs(hi.Y)))
	pad = math.Ceil(pad + 1)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Theme: "dark", Width: "900px", Height: "900px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(clusters) <= 30), Type: "scroll"}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	colors := Palette(len(clusters))
	for ci, c := range clusters {
		stride := 1
		if len(c) > maxPts {
			stride = (len(c) + maxPts - 1) / maxPts
		}
		data := make([]opts.ScatterData, 0, len(c)/stride+1)
		for i := 0; i < len(c); i += stride {
			p := points[c[i]]
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
		}
		scatter.AddSeries(fmt.Sprintf("cluster %d", ci), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colors[ci].Hex()}),
		)
	}
	return scatter
}

func clusterSizeBar(clusters [][]int, o ClusterPageOptions) *charts.Bar {
	x := make([]string, len(clusters))
	y := make([]opts.BarData, len(clusters))
	for i, c := range clusters {
		x[i] = fmt.Sprintf("%d", i)
		y[i] = opts.BarData{Value: len(c)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Cluster sizes", Subtitle: fmt.Sprintf("clusters=%d", len(clusters))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cluster"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Voxels"}),
	)
	bar.SetXAxis(x).
		AddSeries("voxels", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(len(clusters) <= 30), Position: "top"}),
		)
	return bar
}
