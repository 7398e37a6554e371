package rainbow

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/units"
)

// Slice returns a new grid keeping the listed wavelength and time indices.
// A nil index list keeps the whole axis. The child is sorted like any new
// grid and keeps the original indices of the samples it picked.
func (g *Grid) Slice(waveIdx, timeIdx []int) (*Grid, error) {
	nwave, ntime := g.Shape()
	if waveIdx == nil {
		waveIdx = seq(nwave)
	}
	if timeIdx == nil {
		timeIdx = seq(ntime)
	}
	if err := checkIndices("wavelength", waveIdx, nwave); err != nil {
		return nil, err
	}
	if err := checkIndices("time", timeIdx, ntime); err != nil {
		return nil, err
	}

	times := make([]float64, len(timeIdx))
	for i, t := range timeIdx {
		times[i] = g.time.At(t)
	}
	waves := make([]float64, len(waveIdx))
	for i, w := range waveIdx {
		waves[i] = g.wavelength.At(w)
	}

	pick := func(m *mat.Dense) *mat.Dense {
		if m == nil {
			return nil
		}
		out := mat.NewDense(len(waveIdx), len(timeIdx), nil)
		for i, w := range waveIdx {
			for j, t := range timeIdx {
				out.Set(i, j, m.At(w, t))
			}
		}
		return out
	}

	return g.derive(
		units.NewTimes(times, units.Day),
		units.NewWavelengths(waves),
		pick(g.flux), pick(g.uncertainty), pick(g.model),
		"slice",
		map[string]interface{}{"nwave": len(waveIdx), "ntime": len(timeIdx)},
		WithOriginalIndex(permute(g.waveIndex, waveIdx), permute(g.timeIndex, timeIdx)),
	)
}

// TrimWavelengths keeps the channels with lo <= wavelength <= hi microns.
func (g *Grid) TrimWavelengths(lo, hi float64) (*Grid, error) {
	var idx []int
	for w := 0; w < g.NWave(); w++ {
		if v := g.wavelength.At(w); v >= lo && v <= hi {
			idx = append(idx, w)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no wavelengths in [%g, %g] microns", ErrIndexOutOfRange, lo, hi)
	}
	return g.Slice(idx, nil)
}

// TrimTimes keeps the samples with lo <= time <= hi, both given in days.
func (g *Grid) TrimTimes(lo, hi float64) (*Grid, error) {
	var idx []int
	for t := 0; t < g.NTime(); t++ {
		if v := g.time.At(t); v >= lo && v <= hi {
			idx = append(idx, t)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no times in [%g, %g] days", ErrIndexOutOfRange, lo, hi)
	}
	return g.Slice(nil, idx)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func checkIndices(axis string, idx []int, n int) error {
	if len(idx) == 0 {
		return fmt.Errorf("%w: empty %s selection", ErrIndexOutOfRange, axis)
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: %s index %d not in [0, %d)", ErrIndexOutOfRange, axis, i, n)
		}
	}
	return nil
}
