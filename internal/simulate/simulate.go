// Package simulate builds synthetic rainbow grids: a flat stellar spectrum
// observed on a regular time grid and a logarithmic wavelength grid, with
// independent Gaussian noise at a fixed signal-to-noise ratio.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/config"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/timeutil"
	"github.com/banshee-data/chromatic/internal/units"
)

// ErrInvalidParameter is returned, wrapped in a *rainbow.ParameterError, for
// non-positive or non-finite inputs.
var ErrInvalidParameter = rainbow.ErrInvalidParameter

// ParameterError names the offending input.
type ParameterError = rainbow.ParameterError

// MaxCells bounds the nwave*ntime cells of a simulated grid, and so also
// each axis. Build rejects inputs that would exceed it before allocating.
const MaxCells = 1 << 24

// Factory generates simulated grids. A Factory is safe for concurrent use;
// calls to Build share one random source, serialised by a mutex.
type Factory struct {
	// Axis spans. Times are in hours relative to mid-transit.
	TimeStartHours float64
	TimeEndHours   float64
	WavelengthMin  float64 // microns
	WavelengthMax  float64 // microns
	StarFlux       float64
	Name           string

	mu    sync.Mutex
	rng   *rand.Rand
	seed  int64
	clock timeutil.Clock
}

// Option configures a Factory.
type Option func(*Factory)

// WithSeed makes every grid built by the factory reproducible from seed.
func WithSeed(seed int64) Option {
	return func(f *Factory) {
		f.seed = seed
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand injects a random source. The factory takes ownership of r.
func WithRand(r *rand.Rand) Option {
	return func(f *Factory) { f.rng = r }
}

// WithClock sets the clock used for history timestamps and, when no seed
// is given, for the default seed.
func WithClock(c timeutil.Clock) Option {
	return func(f *Factory) { f.clock = c }
}

// FromConfig copies axis spans, baseline flux, name and seed from cfg.
func FromConfig(cfg *config.SimulationConfig) Option {
	return func(f *Factory) {
		f.TimeStartHours = cfg.GetTimeStartHours()
		f.TimeEndHours = cfg.GetTimeEndHours()
		f.WavelengthMin = cfg.GetWavelengthMin()
		f.WavelengthMax = cfg.GetWavelengthMax()
		f.StarFlux = cfg.GetStarFlux()
		f.Name = cfg.GetName()
		if seed, ok := cfg.GetSeed(); ok {
			WithSeed(seed)(f)
		}
	}
}

// NewFactory returns a factory with the default spans: -2.5 h to +2.5 h
// and 0.5 to 5 microns, baseline flux 1. Without WithSeed or WithRand the
// random source is seeded from the clock, so output is not reproducible.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		TimeStartHours: -2.5,
		TimeEndHours:   2.5,
		WavelengthMin:  0.5,
		WavelengthMax:  5,
		StarFlux:       1,
		Name:           "simulated",
	}
	for _, opt := range opts {
		opt(f)
	}
	f.clock = timeutil.Or(f.clock)
	if f.rng == nil {
		f.seed = f.clock.Now().UnixNano()
		f.rng = rand.New(rand.NewSource(f.seed))
	}
	return f
}

// Build simulates a grid with noise at signalToNoise, time step dt and
// spectral resolution R (channels per unit of ln wavelength). Flux is
// StarFlux plus N(0,1)/signalToNoise per cell; uncertainty is the constant
// 1/signalToNoise.
func (f *Factory) Build(signalToNoise float64, dt units.Duration, R float64) (*rainbow.Grid, error) {
	if err := checkPositive("signal_to_noise", signalToNoise); err != nil {
		return nil, err
	}
	if err := checkPositive("dt", dt.Value); err != nil {
		return nil, err
	}
	if !dt.Unit.IsValid() {
		return nil, &ParameterError{Name: "dt", Value: dt.Value, Reason: "unknown unit " + dt.Unit.String()}
	}
	if err := checkPositive("R", R); err != nil {
		return nil, err
	}
	if err := f.checkSpans(); err != nil {
		return nil, err
	}

	dtDays := dt.InDays()
	ntime, err := NTime(units.Hours(f.TimeStartHours).InDays(), units.Hours(f.TimeEndHours).InDays(), dtDays)
	if err != nil {
		return nil, &ParameterError{Name: "dt", Value: dt.Value, Reason: err.Error()}
	}
	nwave, err := NWave(f.WavelengthMin, f.WavelengthMax, R)
	if err != nil {
		return nil, &ParameterError{Name: "R", Value: R, Reason: err.Error()}
	}
	if cells := float64(nwave) * float64(ntime); cells > MaxCells {
		return nil, &ParameterError{Name: "nwave*ntime", Value: cells, Reason: fmt.Sprintf("grid of %dw x %dt exceeds %d cells", nwave, ntime, MaxCells)}
	}

	start := f.clock.Now()
	times := f.timeAxis(ntime, dtDays)
	waves := f.wavelengthAxis(nwave, R)

	sigma := 1 / signalToNoise
	flux := mat.NewDense(nwave, ntime, nil)
	unc := mat.NewDense(nwave, ntime, nil)
	noise := make([]float64, ntime)
	baseline := constant(ntime, f.StarFlux)
	sigmas := constant(ntime, sigma)

	f.mu.Lock()
	for w := 0; w < nwave; w++ {
		for t := range noise {
			noise[t] = f.rng.NormFloat64()
		}
		row := flux.RawRowView(w)
		vecmath.ScaleBlock(row, noise, sigma)
		vecmath.AddBlockInPlace(row, baseline)
		copy(unc.RawRowView(w), sigmas)
	}
	f.mu.Unlock()

	g, err := rainbow.New(
		units.NewTimes(times, units.Day),
		units.NewWavelengths(waves),
		flux, unc,
		rainbow.WithName(f.Name),
		rainbow.WithClock(f.clock),
		rainbow.WithAction("simulate", map[string]interface{}{
			"signal_to_noise": signalToNoise,
			"dt":              dt.String(),
			"R":               R,
			"star_flux":       f.StarFlux,
		}),
	)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("simulate: built %s snr=%g dt=%s R=%g in %v", g, signalToNoise, dt, R, timeutil.Since(f.clock, start))
	return g, nil
}

// BuildFromConfig builds with the noise and sampling parameters of cfg.
func (f *Factory) BuildFromConfig(cfg *config.SimulationConfig) (*rainbow.Grid, error) {
	return f.Build(cfg.GetSignalToNoise(), cfg.GetDt(), cfg.GetResolution())
}

// Seed returns the seed the factory's random source started from. It is
// meaningless when the source came from WithRand.
func (f *Factory) Seed() int64 { return f.seed }

// NTime returns the number of time samples Build would produce for dt days.
// Counts above MaxCells are an error.
func NTime(startDays, endDays, dtDays float64) (int, error) {
	n := math.Floor((endDays-startDays)/dtDays+1e-9) + 1
	return count(n, "time samples")
}

// NWave returns the number of channels for resolution R between min and max
// microns, at least 1. Counts above MaxCells are an error.
func NWave(minMicron, maxMicron, R float64) (int, error) {
	n := math.Max(1, math.Ceil(R*math.Log(maxMicron/minMicron)))
	return count(n, "channels")
}

// count converts n while it is still a float, so huge values never wrap.
func count(n float64, what string) (int, error) {
	if math.IsNaN(n) || n < 1 || n > MaxCells {
		return 0, fmt.Errorf("%g %s outside [1, %d]", n, what, MaxCells)
	}
	return int(n), nil
}

func (f *Factory) timeAxis(n int, dtDays float64) []float64 {
	start := units.Hours(f.TimeStartHours).InDays()
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*dtDays
	}
	return out
}

func (f *Factory) wavelengthAxis(n int, R float64) []float64 {
	lo := math.Log(f.WavelengthMin)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Exp(lo + float64(i)/R)
	}
	return out
}

func (f *Factory) checkSpans() error {
	if !(f.TimeEndHours > f.TimeStartHours) {
		return &ParameterError{Name: "time_end_hours", Value: f.TimeEndHours, Reason: "must be after time_start_hours"}
	}
	if err := checkPositive("wavelength_min", f.WavelengthMin); err != nil {
		return err
	}
	if !(f.WavelengthMax > f.WavelengthMin) {
		return &ParameterError{Name: "wavelength_max", Value: f.WavelengthMax, Reason: "must exceed wavelength_min"}
	}
	return nil
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func checkPositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ParameterError{Name: name, Value: v, Reason: "must be positive and finite"}
	}
	return nil
}
