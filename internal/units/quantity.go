package units

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Duration is a scalar time interval tagged with its unit.
type Duration struct {
	Value float64
	Unit  TimeUnit
}

// Minutes is a convenience constructor, mostly for tests and defaults.
func Minutes(v float64) Duration { return Duration{Value: v, Unit: Minute} }

// Hours returns a Duration of v hours.
func Hours(v float64) Duration { return Duration{Value: v, Unit: Hour} }

// Days returns a Duration of v days.
func Days(v float64) Duration { return Duration{Value: v, Unit: Day} }

// InDays returns the duration expressed in days.
func (d Duration) InDays() float64 {
	if d.Unit == Day {
		return d.Value
	}
	return d.Value / d.Unit.PerDay()
}

// To converts the duration to unit u.
func (d Duration) To(u TimeUnit) Duration {
	if d.Unit == u {
		return d
	}
	return Duration{Value: d.InDays() * u.PerDay(), Unit: u}
}

func (d Duration) String() string {
	return fmt.Sprintf("%g %s", d.Value, d.Unit)
}

// Times is a 1D array of time values tagged with a unit.
type Times struct {
	values []float64
	unit   TimeUnit
}

// NewTimes copies values into a new Times in unit u.
func NewTimes(values []float64, u TimeUnit) Times {
	return Times{values: append([]float64(nil), values...), unit: u}
}

// Unit returns the unit of the stored values.
func (t Times) Unit() TimeUnit { return t.unit }

// Len returns the number of samples.
func (t Times) Len() int { return len(t.values) }

// At returns the i-th value in the stored unit.
func (t Times) At(i int) float64 { return t.values[i] }

// Value returns a copy of the bare numbers in the stored unit.
func (t Times) Value() []float64 {
	return append([]float64(nil), t.values...)
}

// To returns a new Times in unit u. Converting out of day multiplies each
// value by u.PerDay(); any other pair passes through day first.
func (t Times) To(u TimeUnit) Times {
	if t.unit == u {
		return NewTimes(t.values, u)
	}
	days := t.values
	if t.unit != Day {
		days = make([]float64, len(t.values))
		floats.ScaleTo(days, 1/t.unit.PerDay(), t.values)
	}
	out := make([]float64, len(days))
	if u == Day {
		copy(out, days)
	} else {
		floats.ScaleTo(out, u.PerDay(), days)
	}
	return Times{values: out, unit: u}
}

// ValueIn converts to u and strips the unit in one step.
func (t Times) ValueIn(u TimeUnit) []float64 {
	return t.To(u).values
}

// Wavelengths is a 1D array of wavelengths in microns.
type Wavelengths struct {
	values []float64
}

// NewWavelengths copies values, which must already be in microns.
func NewWavelengths(microns []float64) Wavelengths {
	return Wavelengths{values: append([]float64(nil), microns...)}
}

// Unit always returns Micron.
func (Wavelengths) Unit() WavelengthUnit { return Micron }

// Len returns the number of wavelength channels.
func (w Wavelengths) Len() int { return len(w.values) }

// At returns the i-th wavelength in microns.
func (w Wavelengths) At(i int) float64 { return w.values[i] }

// Value returns a copy of the bare wavelengths in microns.
func (w Wavelengths) Value() []float64 {
	return append([]float64(nil), w.values...)
}
