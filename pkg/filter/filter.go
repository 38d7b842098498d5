// Package filter provides precursor and spot selection rules applied before scheduling
package filter

import (
	"errors"
	"fmt"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
)

// ErrFiltered is returned for precursors rejected by the m/z window.
var ErrFiltered = errors.New("precursor filtered")

// Config holds selection configuration
type Config struct {
	MinIntensity     float64 // Minimum MS1 intensity of a spot (0 = no limit)
	MinMobilityWidth float64 // Minimum width of the mobility isolation window (0 = no limit)
	MaxMobilityWidth float64 // Maximum width of the mobility isolation window (0 = no limit)
	MinMZ            float64 // Lowest precursor m/z to keep (0 = no limit)
	MaxMZ            float64 // Highest precursor m/z to keep (0 = no limit)
}

// Validate checks that the bounds are consistent
func (c *Config) Validate() error {
	if c.MinIntensity < 0 || c.MinMobilityWidth < 0 || c.MaxMobilityWidth < 0 || c.MinMZ < 0 || c.MaxMZ < 0 {
		return fmt.Errorf("%w: selection bounds must be non-negative", core.ErrInvalidConfig)
	}
	if c.MaxMobilityWidth > 0 && c.MinMobilityWidth > c.MaxMobilityWidth {
		return fmt.Errorf("%w: min mobility width %g exceeds max %g", core.ErrInvalidConfig, c.MinMobilityWidth, c.MaxMobilityWidth)
	}
	if c.MaxMZ > 0 && c.MinMZ > c.MaxMZ {
		return fmt.Errorf("%w: min m/z %g exceeds max %g", core.ErrInvalidConfig, c.MinMZ, c.MaxMZ)
	}
	return nil
}

// ApplyPrecursor checks the m/z window and clamps the mobility window width
func (c *Config) ApplyPrecursor(p *core.MaldiTimsPrecursor) error {
	if c.MinMZ > 0 && p.MZ < c.MinMZ {
		return fmt.Errorf("%w: %s below m/z %g", ErrFiltered, p.Name(), c.MinMZ)
	}
	if c.MaxMZ > 0 && p.MZ > c.MaxMZ {
		return fmt.Errorf("%w: %s above m/z %g", ErrFiltered, p.Name(), c.MaxMZ)
	}

	p.Mobility = p.Mobility.Clamp(c.MinMobilityWidth, c.MaxMobilityWidth)
	return nil
}

// Precursors applies ApplyPrecursor to all precursors and returns those that pass, in input order.
func (c *Config) Precursors(precursors []*core.MaldiTimsPrecursor) (kept []*core.MaldiTimsPrecursor, rejected int) {
	for _, p := range precursors {
		if err := c.ApplyPrecursor(p); err != nil {
			rejected++
			continue
		}
		kept = append(kept, p)
	}
	return kept, rejected
}

// Spots keeps spots whose MS1 intensity reaches MinIntensity, in input order.
// Spots with unknown intensity are kept.
func (c *Config) Spots(spots []*core.ImagingSpot) []*core.ImagingSpot {
	if c.MinIntensity <= 0 {
		return append([]*core.ImagingSpot(nil), spots...)
	}

	var filtered []*core.ImagingSpot
	for _, s := range spots {
		if !s.HasIntensity() || s.Intensity >= c.MinIntensity {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
