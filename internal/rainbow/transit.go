package rainbow

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"
)

// TransitParams describes a planet on a circular orbit. Times are in days,
// the semi-major axis in stellar radii, the inclination in degrees, and
// (U1, U2) are quadratic limb-darkening coefficients.
type TransitParams struct {
	T0          float64 `json:"t0" yaml:"t0"`
	Period      float64 `json:"period" yaml:"period"`
	SemiMajor   float64 `json:"a" yaml:"a"`
	Inclination float64 `json:"inc" yaml:"inc"`
	U1          float64 `json:"u1" yaml:"u1"`
	U2          float64 `json:"u2" yaml:"u2"`
}

// DefaultTransitParams returns a central transit at t=0 of a planet on a
// 3 day orbit at 10 stellar radii.
func DefaultTransitParams() TransitParams {
	return TransitParams{
		T0:          0,
		Period:      3,
		SemiMajor:   10,
		Inclination: 90,
		U1:          0.4,
		U2:          0.26,
	}
}

// Validate checks that the orbit is physical.
func (p TransitParams) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"t0", p.T0}, {"period", p.Period}, {"a", p.SemiMajor}, {"inc", p.Inclination}, {"u1", p.U1}, {"u2", p.U2}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ParameterError{Name: f.name, Value: f.v, Reason: "must be finite"}
		}
	}
	if !(p.Period > 0) {
		return &ParameterError{Name: "period", Value: p.Period, Reason: "must be > 0"}
	}
	if !(p.SemiMajor > 1) {
		return &ParameterError{Name: "a", Value: p.SemiMajor, Reason: "must exceed one stellar radius"}
	}
	if p.Inclination < 0 || p.Inclination > 180 {
		return &ParameterError{Name: "inc", Value: p.Inclination, Reason: "must be within [0, 180] degrees"}
	}
	return nil
}

// InjectTransit multiplies the flux (and model, when attached) by a
// transit light curve. radius holds Rp/Rstar, either one value for all
// wavelengths or one per wavelength channel.
func (g *Grid) InjectTransit(params TransitParams, radius []float64) (*Grid, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	nwave, ntime := g.Shape()
	if len(radius) != 1 && len(radius) != nwave {
		return nil, fmt.Errorf("%w: planet radius has %d values, want 1 or %d", ErrShapeMismatch, len(radius), nwave)
	}
	for _, r := range radius {
		if !(r >= 0) || math.IsInf(r, 1) {
			return nil, &ParameterError{Name: "radius", Value: r, Reason: "must be finite and >= 0"}
		}
	}

	z := params.separations(g.time.Value())

	flux := mat.DenseCopyOf(g.flux)
	var model *mat.Dense
	if g.model != nil {
		model = mat.DenseCopyOf(g.model)
	}

	curve := make([]float64, ntime)
	for w := 0; w < nwave; w++ {
		rp := radius[0]
		if len(radius) == nwave {
			rp = radius[w]
		}
		for t := range curve {
			curve[t] = transitFlux(rp, z[t], params.U1, params.U2)
		}
		vecmath.MulBlockInPlace(flux.RawRowView(w), curve)
		if model != nil {
			vecmath.MulBlockInPlace(model.RawRowView(w), curve)
		}
	}

	return g.derive(g.time, g.wavelength, flux, g.uncertainty, model,
		"inject_transit",
		map[string]interface{}{
			"t0": params.T0, "period": params.Period, "a": params.SemiMajor,
			"inc": params.Inclination, "u1": params.U1, "u2": params.U2,
			"radius": append([]float64(nil), radius...),
		},
	)
}

// separations returns the sky-projected star-planet distance in stellar
// radii for each time. Points where the planet is behind the star are
// reported as +Inf so they never occult.
func (p TransitParams) separations(days []float64) []float64 {
	cosInc := math.Cos(p.Inclination * math.Pi / 180)
	out := make([]float64, len(days))
	for i, t := range days {
		phase := 2 * math.Pi * (t - p.T0) / p.Period
		if math.Cos(phase) <= 0 {
			out[i] = math.Inf(1)
			continue
		}
		x := p.SemiMajor * math.Sin(phase)
		y := p.SemiMajor * cosInc * math.Cos(phase)
		out[i] = math.Hypot(x, y)
	}
	return out
}

// transitFlux is the relative flux for a planet of radius p at separation
// z. The occulted area is exact for a uniform disc; limb darkening scales
// it by the quadratic-law intensity under the planet centre relative to the
// disc average.
func transitFlux(p, z, u1, u2 float64) float64 {
	lambda := occultedFraction(p, z)
	if lambda == 0 {
		return 1
	}
	r := math.Min(z, 1)
	mu := math.Sqrt(1 - r*r)
	intensity := 1 - u1*(1-mu) - u2*(1-mu)*(1-mu)
	mean := 1 - u1/3 - u2/6
	return math.Max(0, 1-lambda*intensity/mean)
}

// occultedFraction is the fraction of a unit disc covered by a disc of
// radius p whose centre lies z away.
func occultedFraction(p, z float64) float64 {
	switch {
	case p <= 0 || z >= 1+p:
		return 0
	case z <= p-1:
		return 1
	case z <= 1-p:
		return p * p
	}
	k0 := math.Acos(clamp((p*p+z*z-1)/(2*p*z), -1, 1))
	k1 := math.Acos(clamp((1-p*p+z*z)/(2*z), -1, 1))
	s := 4*z*z - (1+z*z-p*p)*(1+z*z-p*p)
	area := p*p*k0 + k1 - 0.5*math.Sqrt(math.Max(s, 0))
	return area / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
