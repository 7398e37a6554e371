package rainbow

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Axis names the grid axis an action works along.
type Axis int

// Grid axes
const (
	// AxisWavelength divides out the typical spectrum, leaving each
	// wavelength's light curve near 1.
	AxisWavelength Axis = iota
	// AxisTime divides out the typical light curve.
	AxisTime
)

func (a Axis) String() string {
	if a == AxisTime {
		return "time"
	}
	return "wavelength"
}

// ParseAxis accepts any word starting with "w" (wavelength) or "t" (time).
func ParseAxis(s string) (Axis, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "w"):
		return AxisWavelength, nil
	case strings.HasPrefix(s, "t"):
		return AxisTime, nil
	}
	return 0, fmt.Errorf("%w: axis %q", ErrInvalidParameter, s)
}

// Normalize divides flux and any model by a reference taken at the given
// percentile (0-100) along axis, and the uncertainty by its magnitude.
// percentile=50 is the median.
// NaN cells are ignored when computing the reference.
func (g *Grid) Normalize(axis Axis, percentile float64) (*Grid, error) {
	if math.IsNaN(percentile) || percentile < 0 || percentile > 100 {
		return nil, &ParameterError{Name: "percentile", Value: percentile, Reason: "must be within [0, 100]"}
	}
	nwave, ntime := g.Shape()
	p := percentile / 100

	var ref []float64
	switch axis {
	case AxisWavelength:
		ref = make([]float64, nwave)
		for w := range ref {
			ref[w] = nanQuantile(p, mat.Row(nil, w, g.flux))
		}
	case AxisTime:
		ref = make([]float64, ntime)
		for t := range ref {
			ref[t] = nanQuantile(p, mat.Col(nil, t, g.flux))
		}
	default:
		return nil, fmt.Errorf("%w: axis %d", ErrInvalidParameter, int(axis))
	}

	divide := func(m *mat.Dense, abs bool) *mat.Dense {
		if m == nil {
			return nil
		}
		out := mat.NewDense(nwave, ntime, nil)
		out.Apply(func(w, t int, v float64) float64 {
			var r float64
			if axis == AxisWavelength {
				r = ref[w]
			} else {
				r = ref[t]
			}
			if abs {
				r = math.Abs(r)
			}
			return v / r
		}, m)
		return out
	}

	// Uncertainties stay positive when the reference is negative.
	return g.derive(g.time, g.wavelength,
		divide(g.flux, false), divide(g.uncertainty, true), divide(g.model, false),
		"normalize",
		map[string]interface{}{"axis": axis.String(), "percentile": percentile},
	)
}

// IsProbablyNormalized guesses whether the grid has been normalized: either
// its history says so, or 95% of its median-spectrum values lie within
// 5 sigma of 1 (sigma from the median uncertainty per wavelength).
func (g *Grid) IsProbablyNormalized() bool {
	if HasAction(g.history, "normalize") {
		return true
	}
	nwave, _ := g.Shape()
	deviations := make([]float64, 0, nwave)
	for w := 0; w < nwave; w++ {
		spectrum := nanQuantile(0.5, mat.Row(nil, w, g.flux))
		sigma := nanQuantile(0.5, mat.Row(nil, w, g.uncertainty))
		if math.IsNaN(sigma) || sigma <= 0 {
			sigma = 0.02 // 5 sigma == 0.1
		}
		deviations = append(deviations, math.Abs(spectrum-1)/sigma)
	}
	return nanQuantile(0.95, deviations) < 5
}

// nanQuantile returns the p-quantile of the non-NaN values, or NaN when
// there are none.
func nanQuantile(p float64, values []float64) float64 {
	finite := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return quantileSorted(p, finite)
}
