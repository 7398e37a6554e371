// Package plotting renders rainbow grids as PNG figures (gonum/plot) and
// interactive HTML charts (go-echarts).
package plotting

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/chromatic/internal/fsutil"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/units"
)

// Output file names written by Plotter.WriteAll.
const (
	HeatmapFile     = "heatmap.png"
	LightCurvesFile = "lightcurves.png"
)

// DefaultLightCurves is the number of wavelength channels drawn when the
// caller does not choose.
const DefaultLightCurves = 8

const paletteSize = 255

// fluxGrid presents a flux array as a plotter.GridXYZ with time along
// the columns and wavelength along the rows.
type fluxGrid struct {
	flux       *mat.Dense // (nwave, ntime)
	time, wave []float64
}

func (f fluxGrid) Dims() (c, r int) {
	r, c = f.flux.Dims()
	return c, r
}

func (f fluxGrid) Z(c, r int) float64 { return f.flux.At(r, c) }
func (f fluxGrid) X(c int) float64    { return f.time[c] }
func (f fluxGrid) Y(r int) float64    { return f.wave[r] }

func timeLabel(format string) (string, error) {
	if _, err := units.ParseTimeFormat(format); err != nil {
		return "", err
	}
	return rainbow.TimeColumn(format), nil
}

// Heatmap draws flux as a function of time and wavelength.
func Heatmap(g *rainbow.Grid, format string) (*plot.Plot, error) {
	arrays, err := g.ToArrays(format)
	if err != nil {
		return nil, err
	}
	xlabel, err := timeLabel(format)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s flux", g)
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Wavelength (microns)"

	cmap := moreland.ExtendedBlackBody()
	hm := plotter.NewHeatMap(fluxGrid{flux: arrays.Flux, time: arrays.Time, wave: arrays.Wavelength}, cmap.Palette(paletteSize))
	if hm.Min > hm.Max {
		// every cell is NaN
		hm.Min, hm.Max = 0, 0
	}
	hm.NaN = color.Transparent
	hm.Rasterized = true
	p.Add(hm)
	return p, nil
}

// LightCurves draws flux against time for n wavelength channels spread
// evenly across the grid. n <= 0 selects DefaultLightCurves.
func LightCurves(g *rainbow.Grid, format string, n int) (*plot.Plot, error) {
	arrays, err := g.ToArrays(format)
	if err != nil {
		return nil, err
	}
	xlabel, err := timeLabel(format)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s light curves", g)
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Flux"
	p.Legend.Top = true

	channels := ChannelIndices(g.NWave(), n)
	colors := generateColors(len(channels))
	for i, w := range channels {
		row := arrays.Flux.RawRowView(w)
		pts := make(plotter.XYs, 0, len(row))
		for t, v := range row {
			if math.IsNaN(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: arrays.Time[t], Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("light curve %d: %w", w, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%.3g µm", arrays.Wavelength[w]), line)
	}
	return p, nil
}

// ChannelIndices picks up to n wavelength indices out of nwave, evenly
// spaced and always including the first and last channel.
func ChannelIndices(nwave, n int) []int {
	if n <= 0 {
		n = DefaultLightCurves
	}
	if nwave <= 0 {
		return nil
	}
	if n >= nwave {
		out := make([]int, nwave)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if n == 1 {
		return []int{0}
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(math.Round(float64(i) * float64(nwave-1) / float64(n-1)))
	}
	return out
}

// WritePNG renders p at the given size into w.
func WritePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// Plotter writes the PNG figures of a grid into one directory.
type Plotter struct {
	FS       fsutil.FileSystem
	Dir      string
	Width    vg.Length
	Height   vg.Length
	Channels int
}

// NewPlotter returns a Plotter on the real filesystem with a 14x6 inch
// canvas.
func NewPlotter(dir string) *Plotter {
	return &Plotter{
		FS:     fsutil.OSFileSystem{},
		Dir:    dir,
		Width:  14 * vg.Inch,
		Height: 6 * vg.Inch,
	}
}

// WriteAll writes the heatmap and light-curve figures and returns the
// paths written.
func (pl *Plotter) WriteAll(g *rainbow.Grid, format string) ([]string, error) {
	heat, err := Heatmap(g, format)
	if err != nil {
		return nil, err
	}
	curves, err := LightCurves(g, format, pl.Channels)
	if err != nil {
		return nil, err
	}
	if err := pl.FS.MkdirAll(pl.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var written []string
	for _, fig := range []struct {
		name string
		plot *plot.Plot
	}{
		{HeatmapFile, heat},
		{LightCurvesFile, curves},
	} {
		path := filepath.Join(pl.Dir, fig.name)
		if err := pl.save(path, fig.plot); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	monitoring.Logf("plotting: wrote %d figures for %s to %s", len(written), g, pl.Dir)
	return written, nil
}

func (pl *Plotter) save(path string, p *plot.Plot) (err error) {
	f, err := pl.FS.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return WritePNG(f, p, pl.Width, pl.Height)
}

// generateColors returns n distinct colours spread around the hue wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
