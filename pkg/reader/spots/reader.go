// Package spots provides a streaming reader for MALDI plate spot lists
package spots

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
)

// Column names recognised in the header line
const (
	ColX               = "x"
	ColY               = "y"
	ColMode            = "mode"
	ColCollisionEnergy = "collision_energy"
	ColIntensity       = "intensity"
)

// Reader provides streaming access to comma separated spot lists.
//
// The first non-empty line is a header naming the columns. x and y are
// required; mode, collision_energy and intensity are optional. Lines
// starting with '#' are comments.
type Reader struct {
	scanner     *bufio.Scanner
	lineNum     int
	columns     map[string]int
	currentSpot *core.ImagingSpot
	err         error
}

// NewReader creates a new spot list reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
	}
}

// Next advances to the next spot. Returns false when no more spots or error.
func (r *Reader) Next() bool {
	r.currentSpot = nil

	spot, err := r.readSpot()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpot = spot
	return true
}

// Spot returns the current spot
func (r *Reader) Spot() *core.ImagingSpot {
	return r.currentSpot
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every remaining spot
func (r *Reader) ReadAll() ([]*core.ImagingSpot, error) {
	var spots []*core.ImagingSpot
	for r.Next() {
		spots = append(spots, r.Spot())
	}
	return spots, r.Err()
}

// readSpot reads the next data line, consuming the header first
func (r *Reader) readSpot() (*core.ImagingSpot, error) {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		if r.columns == nil {
			if err := r.parseHeader(fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		spot, err := r.parseSpot(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		return spot, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

// parseHeader maps column names to field positions
func (r *Reader) parseHeader(fields []string) error {
	columns := make(map[string]int, len(fields))
	for i, name := range fields {
		columns[strings.ToLower(name)] = i
	}
	for _, required := range []string{ColX, ColY} {
		if _, ok := columns[required]; !ok {
			return fmt.Errorf("header is missing required column '%s'", required)
		}
	}
	r.columns = columns
	return nil
}

// field returns the value of a column, or "" if the column is absent
func (r *Reader) field(fields []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// parseSpot converts one data line into a spot
func (r *Reader) parseSpot(fields []string) (*core.ImagingSpot, error) {
	x, err := strconv.Atoi(r.field(fields, ColX))
	if err != nil {
		return nil, fmt.Errorf("invalid x coordinate: %w", err)
	}
	y, err := strconv.Atoi(r.field(fields, ColY))
	if err != nil {
		return nil, fmt.Errorf("invalid y coordinate: %w", err)
	}

	mode, err := core.ParseMs2ImagingMode(r.field(fields, ColMode))
	if err != nil {
		return nil, err
	}

	// Missing intensities stay unknown and pass the intensity filter
	intensity := math.NaN()
	if s := r.field(fields, ColIntensity); s != "" {
		intensity, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid intensity: %w", err)
		}
	}

	coord := core.SpotCoordinate{X: x, Y: y}
	spot := core.NewCandidateSpot(coord, mode, intensity)

	// A fixed energy is optional; without it the scheduler assigns one
	if s := r.field(fields, ColCollisionEnergy); s != "" {
		ce, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid collision energy: %w", err)
		}
		if err := spot.SetCollisionEnergy(ce); err != nil {
			return nil, err
		}
	}

	return spot, nil
}
