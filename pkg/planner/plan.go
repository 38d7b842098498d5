package planner

import (
	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// Assignment is one committed MS/MS acquisition: a precursor fragmented at
// a spot with the spot's collision energy at the listed raster offsets.
type Assignment struct {
	Spot            core.SpotCoordinate
	Mode            core.Ms2ImagingMode
	PrecursorID     string
	MZ              float64
	Mobility        core.MobilityRange
	IsolationLow    float64
	IsolationHigh   float64
	CollisionEnergy float64
	Offsets         []core.Offset
}

// Stats counts why candidate spot/precursor pairs were not assigned.
type Stats struct {
	SpotsVisited        int // Spots passing the intensity filter
	SpotsBelowIntensity int // Spots removed by the intensity filter
	PrecursorsRejected  int // Precursors removed by the m/z window
	MobilityConflicts   int // Pairs skipped because mobility windows overlap at the spot
	NoEnergy            int // Pairs skipped because no energy was available
	SpotsFull           int // Spots that ran out of raster positions
}

// Plan is the result of a planning run.
type Plan struct {
	Assignments []Assignment
	Spots       []*core.ImagingSpot // Visited spots in raster order
	Precursors  []*core.MaldiTimsPrecursor
	Stats       Stats
}

// EnergyUsage is the usage count of one collision energy.
type EnergyUsage struct {
	CollisionEnergy float64
	Count           int
}

// PrecursorSummary describes how one precursor's energies were used.
type PrecursorSummary struct {
	PrecursorID string
	MZ          float64
	Usage       []EnergyUsage // Declared energy order
	Total       int
	Mean        float64 // Mean usage per energy
	StdDev      float64 // Sample standard deviation of usage per energy
}

// Summary returns the usage summary of every precursor in input order.
func (p *Plan) Summary() []PrecursorSummary {
	summaries := make([]PrecursorSummary, 0, len(p.Precursors))
	for _, prec := range p.Precursors {
		summaries = append(summaries, Summarize(prec.ID, prec.MZ, prec.CollisionEnergies(), prec.Ledger().Snapshot()))
	}
	return summaries
}

// Summarize builds a PrecursorSummary from per-energy counts.
func Summarize(id string, mz float64, energies []float64, counts map[float64]int) PrecursorSummary {
	s := PrecursorSummary{PrecursorID: id, MZ: mz}

	values := make([]float64, len(energies))
	for i, e := range energies {
		n := counts[e]
		s.Usage = append(s.Usage, EnergyUsage{CollisionEnergy: e, Count: n})
		s.Total += n
		values[i] = float64(n)
	}

	switch len(values) {
	case 0:
	case 1:
		s.Mean = values[0]
	default:
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	}
	return s
}
