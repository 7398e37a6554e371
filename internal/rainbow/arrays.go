package rainbow

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/units"
)

// Arrays is the raw-array export of a grid. Every field is a fresh copy.
type Arrays struct {
	Flux        *mat.Dense // (nwave, ntime)
	Uncertainty *mat.Dense // (nwave, ntime)
	Time        []float64  // ntime values in the requested unit
	Wavelength  []float64  // nwave values in microns
}

// ToArrays exports the grid as bare arrays, with the time axis converted
// to format (see units.ParseTimeFormat; "" means day).
func (g *Grid) ToArrays(format string) (Arrays, error) {
	u, err := units.ParseTimeFormat(format)
	if err != nil {
		return Arrays{}, err
	}
	return Arrays{
		Flux:        g.Flux(),
		Uncertainty: g.Uncertainty(),
		Time:        g.time.ValueIn(u),
		Wavelength:  g.wavelength.Value(),
	}, nil
}

// Flatten returns the elements of m in row-major order, the same order
// ToTable uses for its rows.
func Flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}
