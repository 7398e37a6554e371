// Package units provides the closed set of time and wavelength units used
// by rainbow grids, plus explicit conversion between time units.
//
// Time values are stored internally in days. Conversion from day to any
// other supported unit is a single multiplication by a fixed factor, so
// converted arrays stay bit-for-bit proportional to the day values.
package units

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTimeFormat is returned when a time format or unit name is not
// one of the recognised values.
var ErrUnknownTimeFormat = errors.New("unknown time format")

// TimeUnit is one of the supported time units.
type TimeUnit int

// Time unit constants
const (
	Second TimeUnit = iota
	Minute
	Hour
	Day
)

// factorFromDay holds the number of units in one day.
var factorFromDay = map[TimeUnit]float64{
	Second: 86400,
	Minute: 1440,
	Hour:   24,
	Day:    1,
}

// ValidTimeUnits contains every supported time unit, shortest first.
var ValidTimeUnits = []TimeUnit{Second, Minute, Hour, Day}

// String returns the full unit name ("second", "minute", "hour", "day").
func (u TimeUnit) String() string {
	switch u {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
}

// IsValid reports whether u is one of the supported units.
func (u TimeUnit) IsValid() bool {
	_, ok := factorFromDay[u]
	return ok
}

// PerDay returns how many of u fit in one day.
func (u TimeUnit) PerDay() float64 {
	return factorFromDay[u]
}

// timeFormats maps the export format strings onto units. Only "s", "m"
// and "h" have short aliases.
var timeFormats = map[string]TimeUnit{
	"s":      Second,
	"second": Second,
	"m":      Minute,
	"minute": Minute,
	"h":      Hour,
	"hour":   Hour,
	"day":    Day,
}

// DefaultTimeFormat is used when an export is called with an empty format.
const DefaultTimeFormat = "day"

// ParseTimeFormat resolves an export time format. Matching is exact and
// case-sensitive; an empty string selects DefaultTimeFormat.
func ParseTimeFormat(format string) (TimeUnit, error) {
	if format == "" {
		format = DefaultTimeFormat
	}
	u, ok := timeFormats[format]
	if !ok {
		return 0, fmt.Errorf("%w %q (valid: %s)", ErrUnknownTimeFormat, format, GetValidTimeFormatsString())
	}
	return u, nil
}

// GetValidTimeFormatsString returns the accepted export formats for error messages
func GetValidTimeFormatsString() string {
	return "s, second, m, minute, h, hour, day"
}

// timeUnitNames is the looser vocabulary accepted from config files and
// command-line flags.
var timeUnitNames = map[string]TimeUnit{
	"s": Second, "sec": Second, "second": Second, "seconds": Second,
	"m": Minute, "min": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hr": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
}

// ParseTimeUnit resolves a unit name as written by a person. Unlike
// ParseTimeFormat it ignores case and accepts plurals.
func ParseTimeUnit(name string) (TimeUnit, error) {
	u, ok := timeUnitNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownTimeFormat, name)
	}
	return u, nil
}

// WavelengthUnit is the unit of a wavelength axis. Micron is the only one.
type WavelengthUnit int

// Micron is the fixed wavelength unit.
const Micron WavelengthUnit = 0

// String returns "micron".
func (WavelengthUnit) String() string { return "micron" }

// Label is the plural form used in table column headers.
func (WavelengthUnit) Label() string { return "microns" }
