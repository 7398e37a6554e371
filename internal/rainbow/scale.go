package rainbow

import (
	"math"
	"sort"
)

// Scale describes how an axis is spaced.
type Scale string

// Axis spacings
const (
	ScaleLinear  Scale = "linear"
	ScaleLog     Scale = "log"
	ScaleUnknown Scale = "?"
)

// Relative tolerances for the spacing guesses. Wavelength grids are allowed
// more slop than time grids.
const (
	wavelengthScaleTolerance = 0.05
	timeScaleTolerance       = 0.01
)

// guessScale calls an axis linear when its steps all sit within rtol of the
// median step, log when its log-steps do, and unknown otherwise. Axes with
// fewer than two samples are unknown.
func guessScale(values []float64, rtol float64) Scale {
	if len(values) < 2 {
		return ScaleUnknown
	}

	steps := make([]float64, len(values)-1)
	logSteps := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		steps[i-1] = values[i] - values[i-1]
		logSteps[i-1] = math.Log(values[i]) - math.Log(values[i-1])
	}

	if allClose(steps, median(steps), rtol) {
		return ScaleLinear
	}
	if allClose(logSteps, median(logSteps), rtol) {
		return ScaleLog
	}
	return ScaleUnknown
}

// allClose mirrors the usual |a-b| <= atol + rtol*|b| test with atol=1e-8.
// Any NaN makes the comparison fail.
func allClose(values []float64, ref, rtol float64) bool {
	const atol = 1e-8
	if math.IsNaN(ref) {
		return false
	}
	for _, v := range values {
		if math.IsNaN(v) || math.Abs(v-ref) > atol+rtol*math.Abs(ref) {
			return false
		}
	}
	return true
}

func median(values []float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			return math.NaN()
		}
		sorted = append(sorted, v)
	}
	sort.Float64s(sorted)
	return quantileSorted(0.5, sorted)
}

// quantileSorted interpolates linearly between the order statistics at
// position p*(n-1), so the median of an odd-length sample is its middle
// element. sorted must be non-empty and ascending.
func quantileSorted(p float64, sorted []float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
