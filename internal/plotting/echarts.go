package plotting

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/chromatic/internal/rainbow"
)

// DefaultAssetsHost serves the echarts javascript bundle.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis, sampled at ten stops.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ChartOptions tunes RenderChart.
type ChartOptions struct {
	AssetsHost string
	Width      string
	Height     string
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.AssetsHost == "" {
		o.AssetsHost = DefaultAssetsHost
	}
	if o.Width == "" {
		o.Width = "1200px"
	}
	if o.Height == "" {
		o.Height = "700px"
	}
	return o
}

// RenderChart writes a self-contained HTML heatmap of flux over time and
// wavelength. NaN cells are left out.
func RenderChart(w io.Writer, g *rainbow.Grid, format string, o ChartOptions) error {
	o = o.withDefaults()
	arrays, err := g.ToArrays(format)
	if err != nil {
		return err
	}
	xlabel, err := timeLabel(format)
	if err != nil {
		return err
	}

	xs := make([]string, len(arrays.Time))
	for i, v := range arrays.Time {
		xs[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	ys := make([]string, len(arrays.Wavelength))
	for i, v := range arrays.Wavelength {
		ys[i] = strconv.FormatFloat(v, 'g', 4, 64)
	}

	nwave, ntime := g.Shape()
	data := make([]opts.HeatMapData, 0, nwave*ntime)
	lo, hi := math.Inf(1), math.Inf(-1)
	for wi := 0; wi < nwave; wi++ {
		for ti, v := range arrays.Flux.RawRowView(wi) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{ti, wi, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: g.String(), Theme: "dark", Width: o.Width, Height: o.Height, AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Rainbow flux", Subtitle: fmt.Sprintf("%s id=%s wscale=%s tscale=%s", g, g.ID(), g.WScale(), g.TScale())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: xlabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Wavelength (microns)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(xs)
	hm.AddSeries("flux", data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
