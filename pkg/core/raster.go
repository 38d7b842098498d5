package core

import "fmt"

// Offset is a laser position inside a spot, relative to the spot origin.
type Offset struct {
	X float64
	Y float64
}

// NextOffset maps a zero-based shot counter to a row-major raster position
// inside a spot. Shot 0 is the origin, shot columns-1 completes the first row
// and shot columns starts the next row one stepY down.
//
// columns must be at least 1 and shotIndex must not be negative.
func NextOffset(shotIndex, columns int, stepX, stepY float64) (x, y float64) {
	if columns < 1 {
		panic(fmt.Sprintf("core: raster columns must be >= 1, got %d", columns))
	}
	if shotIndex < 0 {
		panic(fmt.Sprintf("core: shot index must be >= 0, got %d", shotIndex))
	}

	row := shotIndex / columns
	col := shotIndex % columns
	return float64(col) * stepX, float64(row) * stepY
}

// Raster describes the sub-spot shot pattern used for every spot of a run.
type Raster struct {
	Columns int     // Shot positions per row
	Rows    int     // Rows per spot; 0 = unbounded
	StepX   float64 // Distance between columns
	StepY   float64 // Distance between rows
}

// NewRaster creates a validated raster description.
func NewRaster(columns, rows int, stepX, stepY float64) (*Raster, error) {
	r := &Raster{Columns: columns, Rows: rows, StepX: stepX, StepY: stepY}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that the raster can produce offsets.
func (r *Raster) Validate() error {
	if r.Columns < 1 {
		return fmt.Errorf("%w: raster columns must be >= 1, got %d", ErrInvalidConfig, r.Columns)
	}
	if r.Rows < 0 {
		return fmt.Errorf("%w: raster rows must be >= 0, got %d", ErrInvalidConfig, r.Rows)
	}
	if r.StepX < 0 || r.StepY < 0 {
		return fmt.Errorf("%w: raster steps must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Capacity returns the number of distinct shot positions per spot, or 0 if unbounded.
func (r *Raster) Capacity() int {
	return r.Columns * r.Rows
}

// Offset returns the position of shot i.
func (r *Raster) Offset(i int) Offset {
	x, y := NextOffset(i, r.Columns, r.StepX, r.StepY)
	return Offset{X: x, Y: y}
}
