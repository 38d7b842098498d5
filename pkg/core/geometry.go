// Package core provides the spot, precursor and usage ledger models together
// with the geometry and raster helpers used by the acquisition scheduler.
package core

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// SpotCoordinate is an integer (x, y) position on the MALDI plate raster.
type SpotCoordinate struct {
	X int
	Y int
}

// String returns the coordinate in format "(x,y)"
func (c SpotCoordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Distance returns the Euclidean distance between two spot coordinates.
func Distance(a, b SpotCoordinate) float64 {
	return floats.Distance(
		[]float64{float64(a.X), float64(a.Y)},
		[]float64{float64(b.X), float64(b.Y)},
		2,
	)
}

// WithinDistance reports whether b lies within maxDistance of a.
// A distance equal to maxDistance counts as within range.
func WithinDistance(a, b SpotCoordinate, maxDistance float64) bool {
	return Distance(a, b) <= maxDistance
}

// AnyWithinDistance reports whether at least one of others lies within maxDistance of a.
func AnyWithinDistance(a SpotCoordinate, others []SpotCoordinate, maxDistance float64) bool {
	for _, o := range others {
		if WithinDistance(a, o, maxDistance) {
			return true
		}
	}
	return false
}

// AnySpotWithinDistance is AnyWithinDistance over the coordinates of imaging spots.
func AnySpotWithinDistance(a SpotCoordinate, spots []*ImagingSpot, maxDistance float64) bool {
	for _, s := range spots {
		if WithinDistance(a, s.Coordinate, maxDistance) {
			return true
		}
	}
	return false
}
