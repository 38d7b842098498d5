// Package precursors provides a streaming reader for precursor lists
package precursors

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
)

// Column names recognised in the header line
const (
	ColID            = "id"
	ColMZ            = "mz"
	ColMobilityLower = "mobility_lower"
	ColMobilityUpper = "mobility_upper"
	ColEnergies      = "energies"
	ColUsage         = "usage"
)

// Reader provides streaming access to comma separated precursor lists.
//
// Header columns: id, mz, mobility_lower, mobility_upper, energies and an
// optional usage column. energies is a ';' separated list (e.g. "30;40;50"),
// usage seeds the counters with "energy:count" pairs (e.g. "30:1;50:2").
type Reader struct {
	scanner          *bufio.Scanner
	lineNum          int
	columns          map[string]int
	seen             map[string]int // precursor id -> line number
	currentPrecursor *core.MaldiTimsPrecursor
	err              error
}

// NewReader creates a new precursor list reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
		seen:    make(map[string]int),
	}
}

// Next advances to the next precursor. Returns false when no more precursors or error.
func (r *Reader) Next() bool {
	r.currentPrecursor = nil

	p, err := r.readPrecursor()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentPrecursor = p
	return true
}

// Precursor returns the current precursor
func (r *Reader) Precursor() *core.MaldiTimsPrecursor {
	return r.currentPrecursor
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every remaining precursor
func (r *Reader) ReadAll() ([]*core.MaldiTimsPrecursor, error) {
	var out []*core.MaldiTimsPrecursor
	for r.Next() {
		out = append(out, r.Precursor())
	}
	return out, r.Err()
}

func (r *Reader) readPrecursor() (*core.MaldiTimsPrecursor, error) {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

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

		p, err := r.parsePrecursor(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		if first, dup := r.seen[p.ID]; dup {
			return nil, fmt.Errorf("line %d: %w: precursor id '%s' already used on line %d", r.lineNum, core.ErrInvalidConfig, p.ID, first)
		}
		r.seen[p.ID] = r.lineNum
		return p, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

func (r *Reader) parseHeader(fields []string) error {
	columns := make(map[string]int, len(fields))
	for i, name := range fields {
		columns[strings.ToLower(name)] = i
	}
	for _, required := range []string{ColMZ, ColMobilityLower, ColMobilityUpper, ColEnergies} {
		if _, ok := columns[required]; !ok {
			return fmt.Errorf("header is missing required column '%s'", required)
		}
	}
	r.columns = columns
	return nil
}

func (r *Reader) field(fields []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// parsePrecursor converts one data line into a precursor
func (r *Reader) parsePrecursor(fields []string) (*core.MaldiTimsPrecursor, error) {
	mz, err := strconv.ParseFloat(r.field(fields, ColMZ), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid m/z: %w", err)
	}
	lower, err := strconv.ParseFloat(r.field(fields, ColMobilityLower), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid mobility lower bound: %w", err)
	}
	upper, err := strconv.ParseFloat(r.field(fields, ColMobilityUpper), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid mobility upper bound: %w", err)
	}

	energies, err := parseEnergies(r.field(fields, ColEnergies))
	if err != nil {
		return nil, err
	}

	var opts []core.PrecursorOption
	if s := r.field(fields, ColUsage); s != "" {
		baseline, err := parseUsage(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithBaseline(baseline))
	}

	id := r.field(fields, ColID)
	if id == "" {
		id = fmt.Sprintf("P%d", r.lineNum)
	}

	return core.NewMaldiTimsPrecursor(id, mz, core.MobilityRange{Lower: lower, Upper: upper}, energies, opts...)
}

// parseEnergies parses "30;40;50"
func parseEnergies(s string) ([]float64, error) {
	var energies []float64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		e, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid collision energy '%s': %w", part, err)
		}
		energies = append(energies, e)
	}
	return energies, nil
}

// parseUsage parses "30:1;50:2"
func parseUsage(s string) (map[float64]int, error) {
	usage := make(map[float64]int)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, ":", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("invalid usage entry '%s', expected 'energy:count'", part)
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(pair[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid usage energy '%s': %w", pair[0], err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(pair[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid usage count '%s': %w", pair[1], err)
		}
		usage[e] = n
	}
	return usage, nil
}
