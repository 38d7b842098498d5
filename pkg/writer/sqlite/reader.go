package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/planner"
)

// StoredAssignment is one row of AssignmentTable joined with its spot and precursor
type StoredAssignment struct {
	Spot            core.SpotCoordinate
	PrecursorID     string
	CollisionEnergy float64
	IsolationLow    float64
	IsolationHigh   float64
	Mobility        core.MobilityRange
	Offsets         []core.Offset
}

type storedPrecursor struct {
	rowID    int
	name     string
	mz       float64
	energies []float64
}

// ReadSummary reads the per-energy usage of every precursor in a plan database
func ReadSummary(path string) ([]planner.PrecursorSummary, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	precursors, err := readPrecursors(db)
	if err != nil {
		return nil, err
	}

	summaries := make([]planner.PrecursorSummary, 0, len(precursors))
	for _, p := range precursors {
		counts, err := readUsage(db, p.rowID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, planner.Summarize(p.name, p.mz, p.energies, counts))
	}
	return summaries, nil
}

// ReadAssignments reads all assignments of a plan database in insertion order
func ReadAssignments(path string) ([]StoredAssignment, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT s.X, s.Y, p.Name, a.CollisionEnergy, a.IsolationLow, a.IsolationHigh,
			a.MobilityLower, a.MobilityUpper, a.blobOffsets
		FROM AssignmentTable a
		JOIN SpotTable s ON s.SpotId = a.SpotId
		JOIN PrecursorTable p ON p.PrecursorId = a.PrecursorId
		ORDER BY a.AssignmentId
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []StoredAssignment
	for rows.Next() {
		var a StoredAssignment
		var blob []byte
		err := rows.Scan(
			&a.Spot.X, &a.Spot.Y, &a.PrecursorID, &a.CollisionEnergy,
			&a.IsolationLow, &a.IsolationHigh,
			&a.Mobility.Lower, &a.Mobility.Upper, &blob,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if a.Offsets, err = decodeOffsets(blob); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func openExisting(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

func readPrecursors(db *sql.DB) ([]storedPrecursor, error) {
	rows, err := db.Query(`SELECT PrecursorId, Name, PrecursorMz, CollisionEnergies FROM PrecursorTable ORDER BY PrecursorId`)
	if err != nil {
		return nil, fmt.Errorf("failed to query precursors: %w", err)
	}
	defer rows.Close()

	var precursors []storedPrecursor
	for rows.Next() {
		var p storedPrecursor
		var energies string
		if err := rows.Scan(&p.rowID, &p.name, &p.mz, &energies); err != nil {
			return nil, fmt.Errorf("failed to scan precursor: %w", err)
		}
		if p.energies, err = parseEnergies(energies); err != nil {
			return nil, fmt.Errorf("precursor %s: %w", p.name, err)
		}
		precursors = append(precursors, p)
	}
	return precursors, rows.Err()
}

func readUsage(db *sql.DB, precursorID int) (map[float64]int, error) {
	rows, err := db.Query(`SELECT CollisionEnergy, SpotCount FROM UsageTable WHERE PrecursorId = ?`, precursorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[float64]int)
	for rows.Next() {
		var energy float64
		var n int
		if err := rows.Scan(&energy, &n); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		counts[energy] = n
	}
	return counts, rows.Err()
}

// parseEnergies is the inverse of formatEnergies
func parseEnergies(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	energies := make([]float64, len(parts))
	for i, part := range parts {
		e, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid collision energy '%s': %w", part, err)
		}
		energies[i] = e
	}
	return energies, nil
}

// decodeOffsets is the inverse of encodeOffsets
func decodeOffsets(blob []byte) ([]core.Offset, error) {
	if len(blob)%16 != 0 {
		return nil, fmt.Errorf("offset blob length %d is not a multiple of 16", len(blob))
	}
	offsets := make([]core.Offset, len(blob)/16)
	for i := range offsets {
		offsets[i].X = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*16:]))
		offsets[i].Y = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*16+8:]))
	}
	return offsets, nil
}
