package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/chromatic/internal/units"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/simulation.defaults.json"

// SimulationConfig holds the parameters of a simulated rainbow and of the
// exports made from it. Every field is optional; the Get* methods supply
// defaults for anything left unset, so partial files are safe. The JSON and
// YAML keys are the same.
type SimulationConfig struct {
	// Noise and sampling
	SignalToNoise *float64 `json:"snr,omitempty" yaml:"snr,omitempty"`
	Dt            *float64 `json:"dt,omitempty" yaml:"dt,omitempty"`
	DtUnit        *string  `json:"dt_unit,omitempty" yaml:"dt_unit,omitempty"` // "minute", "s", "hours", ...
	Resolution    *float64 `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Seed          *int64   `json:"seed,omitempty" yaml:"seed,omitempty"` // unset means non-deterministic

	// Axis spans
	TimeStartHours *float64 `json:"time_start_hours,omitempty" yaml:"time_start_hours,omitempty"`
	TimeEndHours   *float64 `json:"time_end_hours,omitempty" yaml:"time_end_hours,omitempty"`
	WavelengthMin  *float64 `json:"wavelength_min,omitempty" yaml:"wavelength_min,omitempty"` // microns
	WavelengthMax  *float64 `json:"wavelength_max,omitempty" yaml:"wavelength_max,omitempty"` // microns
	StarFlux       *float64 `json:"star_flux,omitempty" yaml:"star_flux,omitempty"`

	// Export
	Name       *string `json:"name,omitempty" yaml:"name,omitempty"`
	TimeFormat *string `json:"time_format,omitempty" yaml:"time_format,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptySimulationConfig returns a SimulationConfig with all fields set to nil.
func EmptySimulationConfig() *SimulationConfig {
	return &SimulationConfig{}
}

// DefaultSimulationConfig returns a config with every field populated from
// the built-in defaults, leaving Seed unset.
func DefaultSimulationConfig() *SimulationConfig {
	c := EmptySimulationConfig()
	return &SimulationConfig{
		SignalToNoise:  ptrFloat64(c.GetSignalToNoise()),
		Dt:             ptrFloat64(c.GetDt().Value),
		DtUnit:         ptrString(c.GetDt().Unit.String()),
		Resolution:     ptrFloat64(c.GetResolution()),
		TimeStartHours: ptrFloat64(c.GetTimeStartHours()),
		TimeEndHours:   ptrFloat64(c.GetTimeEndHours()),
		WavelengthMin:  ptrFloat64(c.GetWavelengthMin()),
		WavelengthMax:  ptrFloat64(c.GetWavelengthMax()),
		StarFlux:       ptrFloat64(c.GetStarFlux()),
		Name:           ptrString(c.GetName()),
		TimeFormat:     ptrString(c.GetTimeFormat()),
	}
}

// LoadSimulationConfig loads a SimulationConfig from a .json, .yaml or .yml
// file of at most 1MB. Fields omitted from the file keep their defaults.
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseSimulationConfig(data, ext)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseSimulationConfig decodes and validates config bytes. ext selects the
// decoder: ".json" uses encoding/json, anything else YAML.
func ParseSimulationConfig(data []byte, ext string) (*SimulationConfig, error) {
	cfg := EmptySimulationConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SimulationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSimulationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v != nil && (!(*v > 0) || math.IsInf(*v, 0)) {
		return fmt.Errorf("%s must be positive and finite, got %v", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *SimulationConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"snr", c.SignalToNoise},
		{"dt", c.Dt},
		{"resolution", c.Resolution},
		{"wavelength_min", c.WavelengthMin},
		{"wavelength_max", c.WavelengthMax},
	} {
		if err := positive(f.name, f.v); err != nil {
			return err
		}
	}

	if c.DtUnit != nil && *c.DtUnit != "" {
		if _, err := units.ParseTimeUnit(*c.DtUnit); err != nil {
			return fmt.Errorf("invalid dt_unit: %w", err)
		}
	}
	if c.TimeFormat != nil {
		if _, err := units.ParseTimeFormat(*c.TimeFormat); err != nil {
			return fmt.Errorf("invalid time_format: %w", err)
		}
	}

	if c.GetTimeStartHours() >= c.GetTimeEndHours() {
		return fmt.Errorf("time_start_hours (%v) must be before time_end_hours (%v)",
			c.GetTimeStartHours(), c.GetTimeEndHours())
	}
	if c.GetWavelengthMin() >= c.GetWavelengthMax() {
		return fmt.Errorf("wavelength_min (%v) must be below wavelength_max (%v)",
			c.GetWavelengthMin(), c.GetWavelengthMax())
	}

	return nil
}

// GetSignalToNoise returns the snr value or the default.
func (c *SimulationConfig) GetSignalToNoise() float64 {
	if c.SignalToNoise == nil {
		return 100
	}
	return *c.SignalToNoise
}

// GetDt returns the time step. An unparseable dt_unit falls back to minutes.
func (c *SimulationConfig) GetDt() units.Duration {
	d := units.Minutes(1)
	if c.Dt != nil {
		d.Value = *c.Dt
	}
	if c.DtUnit != nil && *c.DtUnit != "" {
		if u, err := units.ParseTimeUnit(*c.DtUnit); err == nil {
			d.Unit = u
		}
	}
	return d
}

// GetResolution returns the spectral resolution R or the default.
func (c *SimulationConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 50
	}
	return *c.Resolution
}

// GetSeed returns the seed and whether one was configured.
func (c *SimulationConfig) GetSeed() (int64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetTimeStartHours returns the start of the time axis, in hours from mid-transit.
func (c *SimulationConfig) GetTimeStartHours() float64 {
	if c.TimeStartHours == nil {
		return -2.5
	}
	return *c.TimeStartHours
}

// GetTimeEndHours returns the end of the time axis, in hours from mid-transit.
func (c *SimulationConfig) GetTimeEndHours() float64 {
	if c.TimeEndHours == nil {
		return 2.5
	}
	return *c.TimeEndHours
}

// GetWavelengthMin returns the bluest wavelength in microns.
func (c *SimulationConfig) GetWavelengthMin() float64 {
	if c.WavelengthMin == nil {
		return 0.5
	}
	return *c.WavelengthMin
}

// GetWavelengthMax returns the reddest wavelength in microns.
func (c *SimulationConfig) GetWavelengthMax() float64 {
	if c.WavelengthMax == nil {
		return 5
	}
	return *c.WavelengthMax
}

// GetStarFlux returns the noiseless baseline flux.
func (c *SimulationConfig) GetStarFlux() float64 {
	if c.StarFlux == nil {
		return 1
	}
	return *c.StarFlux
}

// GetName returns the label given to simulated grids.
func (c *SimulationConfig) GetName() string {
	if c.Name == nil {
		return "simulated"
	}
	return *c.Name
}

// GetTimeFormat returns the export time format.
func (c *SimulationConfig) GetTimeFormat() string {
	if c.TimeFormat == nil || *c.TimeFormat == "" {
		return units.DefaultTimeFormat
	}
	return *c.TimeFormat
}
