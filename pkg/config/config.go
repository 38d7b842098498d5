// Package config provides run configuration loading for acquisition planning.
//
// Configuration is read from a YAML file on top of Default(). Command line
// flags may override individual values afterwards.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/filter"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of a planning run.
type Config struct {
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Raster       RasterConfig       `yaml:"raster"`
	Selection    SelectionConfig    `yaml:"selection"`
	Registration RegistrationConfig `yaml:"registration"`
}

// SchedulerConfig configures collision energy selection.
type SchedulerConfig struct {
	// MaxDistance is the radius (plate units) in which an energy counts as
	// already used for a precursor.
	MaxDistance float64 `yaml:"max_distance"`

	// MaxUsagePerEnergy is the number of MS/MS spectra per precursor and energy.
	MaxUsagePerEnergy int `yaml:"max_usage_per_energy"`

	// StrictLocality skips a spot instead of reusing a nearby energy.
	StrictLocality bool `yaml:"strict_locality"`
}

// RasterConfig configures the sub-spot laser raster.
type RasterConfig struct {
	Columns int     `yaml:"columns"`
	Rows    int     `yaml:"rows"` // 0 = unbounded
	StepX   float64 `yaml:"step_x"`
	StepY   float64 `yaml:"step_y"`
}

// SelectionConfig configures spot and precursor eligibility.
type SelectionConfig struct {
	MinIntensity     float64 `yaml:"min_intensity"`
	MinMobilityWidth float64 `yaml:"min_mobility_width"`
	MaxMobilityWidth float64 `yaml:"max_mobility_width"`
	MinMZ            float64 `yaml:"min_mz"`
	MaxMZ            float64 `yaml:"max_mz"`
	IsolationWidth   float64 `yaml:"isolation_width"`
}

// RegistrationConfig configures how spot registration and the usage ledger interact.
type RegistrationConfig struct {
	// CommitOnRegister increments the precursor counter when a precursor is
	// registered at a spot. When false the planner commits explicitly.
	CommitOnRegister bool `yaml:"commit_on_register"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxDistance:       30,
			MaxUsagePerEnergy: 1,
		},
		Raster: RasterConfig{
			Columns: 4,
			Rows:    4,
			StepX:   20,
			StepY:   20,
		},
		Selection: SelectionConfig{
			MinIntensity:     1e4,
			MinMobilityWidth: 0.005,
			MaxMobilityWidth: 0.015,
			IsolationWidth:   1.5,
		},
		Registration: RegistrationConfig{
			CommitOnRegister: true,
		},
	}
}

// LoadFile loads configuration from a YAML file, merged over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Scheduler.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_distance must be positive"))
	}
	if c.Scheduler.MaxUsagePerEnergy < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_usage_per_energy must be >= 1"))
	}
	if err := c.RasterSpec().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Selection.IsolationWidth < 0 {
		errs = append(errs, fmt.Errorf("selection.isolation_width must be non-negative"))
	}
	sel := c.Filter()
	if err := sel.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RasterSpec converts the raster section into a core.Raster.
func (c *Config) RasterSpec() *core.Raster {
	return &core.Raster{
		Columns: c.Raster.Columns,
		Rows:    c.Raster.Rows,
		StepX:   c.Raster.StepX,
		StepY:   c.Raster.StepY,
	}
}

// Filter converts the selection section into a filter configuration.
func (c *Config) Filter() *filter.Config {
	return &filter.Config{
		MinIntensity:     c.Selection.MinIntensity,
		MinMobilityWidth: c.Selection.MinMobilityWidth,
		MaxMobilityWidth: c.Selection.MaxMobilityWidth,
		MinMZ:            c.Selection.MinMZ,
		MaxMZ:            c.Selection.MaxMZ,
	}
}
