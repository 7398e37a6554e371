package rainbow

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/timeutil"
	"github.com/banshee-data/chromatic/internal/units"
)

// makeTestGrid returns a grid whose flux at (w, t) is 1 + w/10 + t/100 and
// whose uncertainty is 0.01*(w+1), on a one-minute cadence from t=0 and a
// linear 1..nwave micron axis.
func makeTestGrid(t *testing.T, nwave, ntime int, opts ...Option) *Grid {
	t.Helper()
	times := make([]float64, ntime)
	for i := range times {
		times[i] = float64(i)
	}
	waves := make([]float64, nwave)
	for i := range waves {
		waves[i] = float64(i + 1)
	}
	flux := mat.NewDense(nwave, ntime, nil)
	unc := mat.NewDense(nwave, ntime, nil)
	for w := 0; w < nwave; w++ {
		for i := 0; i < ntime; i++ {
			flux.Set(w, i, 1+float64(w)/10+float64(i)/100)
			unc.Set(w, i, 0.01*float64(w+1))
		}
	}
	g, err := New(units.NewTimes(times, units.Minute), units.NewWavelengths(waves), flux, unc, opts...)
	require.NoError(t, err)
	return g
}

func TestNew_Dimensions(t *testing.T) {
	t.Parallel()
	g := makeTestGrid(t, 3, 5)

	assert.Equal(t, 5, g.NTime())
	assert.Equal(t, 3, g.NWave())
	assert.Equal(t, 15, g.NFlux())
	nwave, ntime := g.Shape()
	assert.Equal(t, 3, nwave)
	assert.Equal(t, 5, ntime)
	assert.NotEmpty(t, g.ID())
	assert.Equal(t, "<Rainbow(3w, 5t)>", g.String())
}

func TestNew_TimeStoredInDays(t *testing.T) {
	t.Parallel()
	g := makeTestGrid(t, 2, 3)

	assert.Equal(t, units.Day, g.Time().Unit())
	assert.Equal(t, []float64{0, 1.0 / 1440, 2.0 / 1440}, g.Time().Value())
	assert.Equal(t, []float64{1, 2}, g.Wavelength().Value())
}

func TestNew_ShapeMismatch(t *testing.T) {
	t.Parallel()

	waves := units.NewWavelengths([]float64{1, 2, 3})
	times := units.NewTimes([]float64{0, 1}, units.Day)
	good := mat.NewDense(3, 2, nil)

	tests := []struct {
		name       string
		times      units.Times
		waves      units.Wavelengths
		flux, unc  *mat.Dense
		wantArray  string
		transposed bool
	}{
		{"transposed flux", times, waves, mat.NewDense(2, 3, nil), good, "flux", true},
		{"short flux", times, waves, mat.NewDense(3, 1, nil), good, "flux", false},
		{"nil flux", times, waves, nil, good, "flux", false},
		{"uncertainty mismatch", times, waves, good, mat.NewDense(3, 3, nil), "uncertainty", false},
		{"empty wavelength axis", times, units.NewWavelengths(nil), good, good, "axes", false},
		{"empty time axis", units.NewTimes(nil, units.Day), waves, good, good, "axes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.times, tt.waves, tt.flux, tt.unc)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, ErrShapeMismatch))

			var se *ShapeError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantArray, se.Array)
			assert.Equal(t, tt.transposed, strings.Contains(err.Error(), "transposed"))
		})
	}
}

func TestNew_NilUncertaintyIsNaN(t *testing.T) {
	t.Parallel()
	g, err := New(units.NewTimes([]float64{0, 1}, units.Day), units.NewWavelengths([]float64{1}),
		mat.NewDense(1, 2, []float64{1, 1}), nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(g.UncertaintyAt(0, 1)))
}

func TestNew_NonPositiveUncertainty(t *testing.T) {
	t.Parallel()
	for _, bad := range []float64{0, -1, math.Inf(-1)} {
		unc := mat.NewDense(2, 2, []float64{.1, .1, .1, .1})
		unc.Set(1, 0, bad)
		g, err := New(minutesAxis([]float64{0, 1}), wavesAxis(1, 2), mat.NewDense(2, 2, nil), unc)
		assert.Nil(t, g)
		require.ErrorIs(t, err, ErrInvalidParameter, "uncertainty %g", bad)
		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "uncertainty", pe.Name)
		assert.Contains(t, pe.Reason, "(1, 0)")
	}

	// NaN marks a missing value.
	unc := mat.NewDense(1, 2, []float64{math.NaN(), .1})
	_, err := New(minutesAxis([]float64{0, 1}), wavesAxis(1), mat.NewDense(1, 2, nil), unc)
	assert.NoError(t, err)
}

func TestNew_SortsAxes(t *testing.T) {
	t.Parallel()
	// flux = 10*wavelength + time index, so each cell names its own
	// coordinates.
	times := []float64{0.2, 0.1, 0.3}
	waves := []float64{3, 2, 1}
	flux := mat.NewDense(3, 3, nil)
	unc := mat.NewDense(3, 3, nil)
	for w, wv := range waves {
		for i, tv := range times {
			flux.Set(w, i, 10*wv+tv)
			unc.Set(w, i, wv)
		}
	}
	model := mat.DenseCopyOf(flux)

	g, err := New(units.NewTimes(times, units.Day), units.NewWavelengths(waves), flux, unc, WithModel(model))
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 0.2, 0.3}, g.Time().Value())
	assert.Equal(t, []float64{1, 2, 3}, g.Wavelength().Value())
	assert.Equal(t, []int{2, 1, 0}, g.OriginalWaveIndex())
	assert.Equal(t, []int{1, 0, 2}, g.OriginalTimeIndex())
	for w, wv := range g.Wavelength().Value() {
		for i, tv := range g.Time().Value() {
			assert.Equal(t, 10*wv+tv, g.FluxAt(w, i), "flux (%d, %d)", w, i)
			assert.Equal(t, wv, g.UncertaintyAt(w, i), "uncertainty (%d, %d)", w, i)
		}
	}
	m, err := g.Model()
	require.NoError(t, err)
	assert.True(t, mat.Equal(g.Flux(), m))
	assert.Equal(t, ScaleLinear, g.WScale())
}

func TestNew_OriginalIndexDefaults(t *testing.T) {
	t.Parallel()
	g := makeTestGrid(t, 3, 4)
	assert.Equal(t, []int{0, 1, 2}, g.OriginalWaveIndex())
	assert.Equal(t, []int{0, 1, 2, 3}, g.OriginalTimeIndex())

	_, err := New(minutesAxis([]float64{0, 1}), wavesAxis(1), mat.NewDense(1, 2, nil), nil,
		WithOriginalIndex([]int{0, 1}, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNew_DoesNotAlias(t *testing.T) {
	t.Parallel()
	times := []float64{0, 1}
	waves := []float64{1, 2}
	flux := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	unc := mat.NewDense(2, 2, []float64{.1, .1, .1, .1})

	g, err := New(units.NewTimes(times, units.Day), units.NewWavelengths(waves), flux, unc)
	require.NoError(t, err)

	flux.Set(0, 0, 100)
	unc.Set(0, 0, 100)
	times[0] = 100
	waves[0] = 100
	assert.Equal(t, 1.0, g.FluxAt(0, 0))
	assert.Equal(t, 0.1, g.UncertaintyAt(0, 0))
	assert.Equal(t, 0.0, g.Time().Value()[0])
	assert.Equal(t, 1.0, g.Wavelength().Value()[0])

	out := g.Flux()
	out.Set(1, 1, -1)
	assert.Equal(t, 4.0, g.FluxAt(1, 1))
	outU := g.Uncertainty()
	outU.Set(1, 1, -1)
	assert.Equal(t, 0.1, g.UncertaintyAt(1, 1))
}

func TestNew_ScaleGuesses(t *testing.T) {
	t.Parallel()
	g := makeTestGrid(t, 4, 6)
	assert.Equal(t, ScaleLinear, g.WScale())
	assert.Equal(t, ScaleLinear, g.TScale())

	logWaves := []float64{1, 2, 4, 8, 16}
	lg, err := New(units.NewTimes([]float64{0}, units.Day), units.NewWavelengths(logWaves),
		mat.NewDense(5, 1, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, ScaleLog, lg.WScale())
	assert.Equal(t, ScaleUnknown, lg.TScale())
}

func TestGuessScale(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Scale
	}{
		{"linear", []float64{1, 2, 3, 4}, ScaleLinear},
		{"log", []float64{1, 10, 100, 1000}, ScaleLog},
		{"irregular", []float64{1, 2, 10, 11, 50}, ScaleUnknown},
		{"negative linear", []float64{-3, -2, -1, 0, 1}, ScaleLinear},
		{"single", []float64{1}, ScaleUnknown},
		{"empty", nil, ScaleUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessScale(tt.values, 0.01))
		})
	}
}

func TestNew_HistoryUsesClock(t *testing.T) {
	t.Parallel()
	at := time.Date(2022, 7, 12, 0, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(at)

	g := makeTestGrid(t, 2, 2, WithClock(clock), WithName("wasp-39b"),
		WithAction("from_arrays", map[string]interface{}{"source": "test"}))

	h := g.History()
	require.Len(t, h, 1)
	assert.Equal(t, "from_arrays", h[0].Action)
	assert.Equal(t, at, h[0].Timestamp)
	assert.Equal(t, "test", h[0].Params["source"])
	assert.NotEmpty(t, h[0].ID)
	assert.Equal(t, "<Rainbow'wasp-39b'(2w, 2t)>", g.String())

	// mutating the returned history must not leak back
	h[0].Params["source"] = "changed"
	assert.Equal(t, "test", g.History()[0].Params["source"])
}

func TestHistoryHelpers(t *testing.T) {
	h := []HistoryEntry{{Action: "simulate"}, {Action: "normalize"}}
	assert.Equal(t, []string{"simulate", "normalize"}, Actions(h))
	assert.True(t, HasAction(h, "normalize"))
	assert.False(t, HasAction(h, "bin"))
}

func minutesAxis(values []float64) units.Times {
	return units.NewTimes(values, units.Minute)
}

func wavesAxis(values ...float64) units.Wavelengths {
	return units.NewWavelengths(values)
}

func TestWithID(t *testing.T) {
	t.Parallel()
	g := makeTestGrid(t, 1, 2, WithID("fixed"))
	assert.Equal(t, "fixed", g.ID())

	// derived grids get their own identity
	s, err := g.Slice(nil, []int{0})
	require.NoError(t, err)
	assert.NotEqual(t, "fixed", s.ID())
}
