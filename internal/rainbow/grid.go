package rainbow

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/timeutil"
	"github.com/banshee-data/chromatic/internal/units"
)

// Grid is a time-wavelength flux grid. The zero value is not usable; build
// grids with New or with the simulate package.
type Grid struct {
	id          string
	name        string
	time        units.Times // always in days
	wavelength  units.Wavelengths
	flux        *mat.Dense // (nwave, ntime)
	uncertainty *mat.Dense
	model       *mat.Dense // optional

	// waveIndex and timeIndex map each row and column back to its
	// position in the arrays the grid's ancestor was built from.
	waveIndex []int
	timeIndex []int

	wscale  Scale
	tscale  Scale
	history []HistoryEntry
	clock   timeutil.Clock
}

type options struct {
	id      string
	name    string
	model   *mat.Dense
	clock   timeutil.Clock
	history []HistoryEntry
	entry   *HistoryEntry

	waveIndex, timeIndex []int
}

// Option configures New.
type Option func(*options)

// WithID restores a known identifier, e.g. when loading a stored grid.
// Without it New assigns a fresh UUID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithName labels the grid.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithModel attaches a model array with the same shape as flux.
func WithModel(model *mat.Dense) Option {
	return func(o *options) { o.model = model }
}

// WithClock sets the clock used to timestamp history entries.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOriginalIndex sets the original positions of the wavelength and
// time samples as passed to New, before sorting. Without it they are
// 0..n-1.
func WithOriginalIndex(wave, time []int) Option {
	return func(o *options) { o.waveIndex, o.timeIndex = wave, time }
}

// WithHistory seeds the grid's history, typically with a parent's entries.
func WithHistory(entries []HistoryEntry) Option {
	return func(o *options) { o.history = entries }
}

// WithAction appends one history entry describing how the grid was made.
func WithAction(action string, params map[string]interface{}) Option {
	return func(o *options) {
		o.entry = &HistoryEntry{Action: action, Params: params}
	}
}

// New builds a Grid from its axes and arrays. flux and uncertainty must be
// (nwave, ntime). Inputs are copied and the time axis is converted to days.
//
// Both axes are sorted ascending, and every flux-shaped array is reordered
// with them; OriginalWaveIndex and OriginalTimeIndex record where each
// sample came from. Uncertainties must be > 0, with NaN marking a missing
// value. A nil uncertainty is filled with NaN.
func New(time units.Times, wavelength units.Wavelengths, flux, uncertainty *mat.Dense, opts ...Option) (*Grid, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	nwave, ntime := wavelength.Len(), time.Len()
	if nwave == 0 || ntime == 0 {
		r, c := dims(flux)
		return nil, &ShapeError{Array: "axes", WantRows: nwave, WantCols: ntime, GotRows: r, GotCols: c}
	}
	if !time.Unit().IsValid() {
		return nil, fmt.Errorf("%w: time unit %v", ErrInvalidParameter, time.Unit())
	}
	if err := checkShape("flux", flux, nwave, ntime); err != nil {
		return nil, err
	}
	if uncertainty != nil {
		if err := checkShape("uncertainty", uncertainty, nwave, ntime); err != nil {
			return nil, err
		}
		if err := checkUncertainty(uncertainty); err != nil {
			return nil, err
		}
	}
	if o.model != nil {
		if err := checkShape("model", o.model, nwave, ntime); err != nil {
			return nil, err
		}
	}
	waveIndex, err := originalIndex("wavelength", o.waveIndex, nwave)
	if err != nil {
		return nil, err
	}
	timeIndex, err := originalIndex("time", o.timeIndex, ntime)
	if err != nil {
		return nil, err
	}

	// The order survives the unit conversion: every time unit is a
	// positive multiple of a day.
	wperm := ascending(wavelength.Value())
	tperm := ascending(time.Value())

	if o.id == "" {
		o.id = uuid.NewString()
	}
	g := &Grid{
		id:         o.id,
		name:       o.name,
		time:       units.NewTimes(permute(time.Value(), tperm), time.Unit()).To(units.Day),
		wavelength: units.NewWavelengths(permute(wavelength.Value(), wperm)),
		flux:       reorder(flux, wperm, tperm),
		waveIndex:  permute(waveIndex, wperm),
		timeIndex:  permute(timeIndex, tperm),
		clock:      timeutil.Or(o.clock),
	}
	if uncertainty == nil {
		g.uncertainty = filled(nwave, ntime, math.NaN())
	} else {
		g.uncertainty = reorder(uncertainty, wperm, tperm)
	}
	if o.model != nil {
		g.model = reorder(o.model, wperm, tperm)
	}

	g.wscale = guessScale(g.wavelength.Value(), wavelengthScaleTolerance)
	g.tscale = guessScale(g.time.Value(), timeScaleTolerance)

	g.history = append([]HistoryEntry(nil), o.history...)
	if o.entry != nil {
		g.history = append(g.history, newHistoryEntry(g.clock, o.entry.Action, o.entry.Params))
	}

	return g, nil
}

func dims(m *mat.Dense) (int, int) {
	if m == nil || m.IsEmpty() {
		return 0, 0
	}
	return m.Dims()
}

func checkShape(name string, m *mat.Dense, rows, cols int) error {
	r, c := dims(m)
	if r != rows || c != cols {
		return &ShapeError{Array: name, WantRows: rows, WantCols: cols, GotRows: r, GotCols: c}
	}
	return nil
}

// checkUncertainty rejects zero, negative and -Inf values. NaN is allowed.
func checkUncertainty(m *mat.Dense) error {
	r, c := m.Dims()
	for w := 0; w < r; w++ {
		for t := 0; t < c; t++ {
			if v := m.At(w, t); v <= 0 {
				return &ParameterError{Name: "uncertainty", Value: v, Reason: fmt.Sprintf("must be > 0 at (%d, %d)", w, t)}
			}
		}
	}
	return nil
}

func originalIndex(axis string, idx []int, n int) ([]int, error) {
	if idx == nil {
		return seq(n), nil
	}
	if len(idx) != n {
		return nil, fmt.Errorf("%w: %d original %s indices for %d samples", ErrShapeMismatch, len(idx), axis, n)
	}
	return idx, nil
}

// ascending returns the stable permutation that sorts values.
func ascending(values []float64) []int {
	perm := make([]int, len(values))
	floats.ArgsortStable(append([]float64(nil), values...), perm)
	return perm
}

func permute[T any](values []T, perm []int) []T {
	out := make([]T, len(perm))
	for i, p := range perm {
		out[i] = values[p]
	}
	return out
}

// reorder copies the rows and columns of m picked by rows and cols.
func reorder(m *mat.Dense, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, m.At(r, c))
		}
	}
	return out
}

func filled(rows, cols int, v float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return mat.NewDense(rows, cols, data)
}

// ID returns the grid's unique identifier.
func (g *Grid) ID() string { return g.id }

// Name returns the grid's label, which may be empty.
func (g *Grid) Name() string { return g.name }

// NTime returns the number of time samples.
func (g *Grid) NTime() int { return g.time.Len() }

// NWave returns the number of wavelength channels.
func (g *Grid) NWave() int { return g.wavelength.Len() }

// NFlux returns the number of flux cells, always NWave()*NTime().
func (g *Grid) NFlux() int { return g.NWave() * g.NTime() }

// Shape returns (nwave, ntime).
func (g *Grid) Shape() (nwave, ntime int) { return g.NWave(), g.NTime() }

// Time returns the time axis in days.
func (g *Grid) Time() units.Times { return units.NewTimes(g.time.Value(), units.Day) }

// Wavelength returns the wavelength axis in microns.
func (g *Grid) Wavelength() units.Wavelengths { return units.NewWavelengths(g.wavelength.Value()) }

// Flux returns a copy of the (nwave, ntime) flux array.
func (g *Grid) Flux() *mat.Dense { return mat.DenseCopyOf(g.flux) }

// Uncertainty returns a copy of the (nwave, ntime) uncertainty array.
func (g *Grid) Uncertainty() *mat.Dense { return mat.DenseCopyOf(g.uncertainty) }

// FluxAt returns the flux at wavelength index w and time index t.
func (g *Grid) FluxAt(w, t int) float64 { return g.flux.At(w, t) }

// UncertaintyAt returns the uncertainty at wavelength index w and time index t.
func (g *Grid) UncertaintyAt(w, t int) float64 { return g.uncertainty.At(w, t) }

// OriginalWaveIndex returns, for each channel, its position in the
// wavelength axis the grid's first ancestor was built from.
func (g *Grid) OriginalWaveIndex() []int { return append([]int(nil), g.waveIndex...) }

// OriginalTimeIndex returns, for each sample, its position in the time axis
// the grid's first ancestor was built from.
func (g *Grid) OriginalTimeIndex() []int { return append([]int(nil), g.timeIndex...) }

// WScale returns the guessed wavelength spacing.
func (g *Grid) WScale() Scale { return g.wscale }

// TScale returns the guessed time spacing.
func (g *Grid) TScale() Scale { return g.tscale }

// History returns a copy of the actions that produced this grid, oldest first.
func (g *Grid) History() []HistoryEntry {
	out := make([]HistoryEntry, len(g.history))
	for i, h := range g.history {
		out[i] = h.clone()
	}
	return out
}

func (g *Grid) String() string {
	n := "Rainbow"
	if g.name != "" {
		n += fmt.Sprintf("'%s'", g.name)
	}
	return fmt.Sprintf("<%s(%dw, %dt)>", n, g.NWave(), g.NTime())
}

// derive builds a child grid that keeps this grid's name, clock, history
// and original indices, and appends one history entry. extra options are
// applied last.
func (g *Grid) derive(time units.Times, wavelength units.Wavelengths, flux, uncertainty, model *mat.Dense, action string, params map[string]interface{}, extra ...Option) (*Grid, error) {
	opts := []Option{
		WithName(g.name),
		WithClock(g.clock),
		WithHistory(g.history),
		WithAction(action, params),
		WithOriginalIndex(g.waveIndex, g.timeIndex),
	}
	if model != nil {
		opts = append(opts, WithModel(model))
	}
	return New(time, wavelength, flux, uncertainty, append(opts, extra...)...)
}
