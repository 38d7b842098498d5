// Package sqlite provides SQLite database writing for acquisition plans
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/planner"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Plan schema version written to HeaderTable
	schemaVersion = 1
)

// Writer handles writing acquisition plans to SQLite database files
type Writer struct {
	db              *sql.DB
	outputPath      string
	spotStmt        *sql.Stmt
	precursorStmt   *sql.Stmt
	usageStmt       *sql.Stmt
	assignmentStmt  *sql.Stmt
	description     string
	assignmentCount int
	finalized       bool
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS SpotTable (
		SpotId INTEGER PRIMARY KEY,
		X INTEGER,
		Y INTEGER,
		Mode TEXT,
		CollisionEnergy DOUBLE,
		Intensity DOUBLE,
		Shots INTEGER
	);

	CREATE TABLE IF NOT EXISTS PrecursorTable (
		PrecursorId INTEGER PRIMARY KEY,
		Name TEXT,
		PrecursorMz DOUBLE,
		MobilityLower DOUBLE,
		MobilityUpper DOUBLE,
		CollisionEnergies TEXT
	);

	CREATE TABLE IF NOT EXISTS UsageTable (
		PrecursorId INTEGER REFERENCES PrecursorTable(PrecursorId),
		CollisionEnergy DOUBLE,
		SpotCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS AssignmentTable (
		AssignmentId INTEGER PRIMARY KEY,
		SpotId INTEGER REFERENCES SpotTable(SpotId),
		PrecursorId INTEGER REFERENCES PrecursorTable(PrecursorId),
		CollisionEnergy DOUBLE,
		IsolationLow DOUBLE,
		IsolationHigh DOUBLE,
		MobilityLower DOUBLE,
		MobilityUpper DOUBLE,
		blobOffsets BLOB
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT,
		Assignments INTEGER
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.spotStmt, err = w.db.Prepare(`
		INSERT INTO SpotTable (SpotId, X, Y, Mode, CollisionEnergy, Intensity, Shots)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spot statement: %w", err)
	}

	w.precursorStmt, err = w.db.Prepare(`
		INSERT INTO PrecursorTable (PrecursorId, Name, PrecursorMz, MobilityLower, MobilityUpper, CollisionEnergies)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare precursor statement: %w", err)
	}

	w.usageStmt, err = w.db.Prepare(`
		INSERT INTO UsageTable (PrecursorId, CollisionEnergy, SpotCount) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage statement: %w", err)
	}

	w.assignmentStmt, err = w.db.Prepare(`
		INSERT INTO AssignmentTable (
			SpotId, PrecursorId, CollisionEnergy, IsolationLow, IsolationHigh,
			MobilityLower, MobilityUpper, blobOffsets
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment statement: %w", err)
	}

	return nil
}

// SetDescription sets the description stored in HeaderTable
func (w *Writer) SetDescription(description string) {
	w.description = description
}

// WritePlan writes all spots, precursors, usage counters and assignments of a plan
// in a single transaction
func (w *Writer) WritePlan(plan *planner.Plan) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.writePlan(tx, plan); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	w.assignmentCount += len(plan.Assignments)
	return nil
}

func (w *Writer) writePlan(tx *sql.Tx, plan *planner.Plan) error {
	spotIDs := make(map[core.SpotCoordinate]int, len(plan.Spots))
	for i, spot := range plan.Spots {
		id := i + 1
		spotIDs[spot.Coordinate] = id

		// Handle optional collision energy and intensity
		var ce interface{} = nil
		if energy, ok := spot.CollisionEnergy(); ok {
			ce = energy
		}
		var intensity interface{} = nil
		if spot.HasIntensity() {
			intensity = spot.Intensity
		}

		_, err := tx.Stmt(w.spotStmt).Exec(
			id,
			spot.Coordinate.X,
			spot.Coordinate.Y,
			spot.Mode.String(),
			ce,
			intensity,
			spot.ShotCount(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert spot %s: %w", spot.Coordinate, err)
		}
	}

	precursorIDs := make(map[string]int, len(plan.Precursors))
	for i, p := range plan.Precursors {
		id := i + 1
		if _, dup := precursorIDs[p.ID]; dup {
			return fmt.Errorf("%w: duplicate precursor id '%s'", core.ErrInvalidConfig, p.ID)
		}
		precursorIDs[p.ID] = id

		_, err := tx.Stmt(w.precursorStmt).Exec(
			id,
			p.ID,
			p.MZ,
			p.Mobility.Lower,
			p.Mobility.Upper,
			formatEnergies(p.CollisionEnergies()),
		)
		if err != nil {
			return fmt.Errorf("failed to insert precursor %s: %w", p.Name(), err)
		}

		usage := p.Ledger().Snapshot()
		for _, e := range p.CollisionEnergies() {
			if _, err := tx.Stmt(w.usageStmt).Exec(id, e, usage[e]); err != nil {
				return fmt.Errorf("failed to insert usage of precursor %s: %w", p.Name(), err)
			}
		}
	}

	for _, a := range plan.Assignments {
		spotID, ok := spotIDs[a.Spot]
		if !ok {
			return fmt.Errorf("assignment references unknown spot %s", a.Spot)
		}
		precursorID, ok := precursorIDs[a.PrecursorID]
		if !ok {
			return fmt.Errorf("assignment references unknown precursor %s", a.PrecursorID)
		}

		_, err := tx.Stmt(w.assignmentStmt).Exec(
			spotID,
			precursorID,
			a.CollisionEnergy,
			a.IsolationLow,
			a.IsolationHigh,
			a.Mobility.Lower,
			a.Mobility.Upper,
			encodeOffsets(a.Offsets),
		)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	return nil
}

// formatEnergies joins energies as "30;40;50"
func formatEnergies(energies []float64) string {
	parts := make([]string, len(energies))
	for i, e := range energies {
		parts[i] = strconv.FormatFloat(e, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}

// encodeOffsets encodes offsets as little-endian float64 x,y pairs
func encodeOffsets(offsets []core.Offset) []byte {
	buf := make([]byte, len(offsets)*16)
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(o.X))
		binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(o.Y))
	}
	return buf
}

// Finalize writes the header table and closes the database
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	// Write HeaderTable
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Description, Assignments)
		VALUES (?, ?, ?, ?)
	`, schemaVersion, time.Now().Format(headerDateFormat), w.description, w.assignmentCount)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	// Close prepared statements
	for _, stmt := range []*sql.Stmt{w.spotStmt, w.precursorStmt, w.usageStmt, w.assignmentStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
