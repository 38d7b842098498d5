package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for non-positive raster columns, distances,
	// usage caps and empty or duplicated energy lists.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEnergyNotCandidate is returned when a collision energy is not part
	// of a precursor's candidate set.
	ErrEnergyNotCandidate = errors.New("collision energy is not a candidate for this precursor")

	// ErrSpotFull is returned when a spot's raster has no free shot position left.
	ErrSpotFull = errors.New("no raster position left on spot")
)

// ValidationError represents an error found while validating a precursor or spot.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures against ErrInvalidConfig.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}
