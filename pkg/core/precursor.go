package core

import (
	"fmt"
	"math"
	"strings"
)

// MobilityRange is an inclusive ion mobility window (1/K0).
type MobilityRange struct {
	Lower float64
	Upper float64
}

// Width returns Upper - Lower.
func (m MobilityRange) Width() float64 {
	return m.Upper - m.Lower
}

// Center returns the midpoint of the window.
func (m MobilityRange) Center() float64 {
	return (m.Lower + m.Upper) / 2
}

// Overlaps reports whether both inclusive windows share at least one value.
func (m MobilityRange) Overlaps(o MobilityRange) bool {
	return m.Lower <= o.Upper && o.Lower <= m.Upper
}

// Clamp widens or narrows the window around its center so that its width
// lies within [minWidth, maxWidth]. A zero bound is not applied.
func (m MobilityRange) Clamp(minWidth, maxWidth float64) MobilityRange {
	width := m.Width()
	switch {
	case minWidth > 0 && width < minWidth:
		width = minWidth
	case maxWidth > 0 && width > maxWidth:
		width = maxWidth
	default:
		return m
	}
	c := m.Center()
	return MobilityRange{Lower: c - width/2, Upper: c + width/2}
}

func (m MobilityRange) String() string {
	return fmt.Sprintf("[%.4f-%.4f]", m.Lower, m.Upper)
}

// MaldiTimsPrecursor is one ion to be fragmented across an imaging run.
// It is shared by reference across every spot that samples it.
type MaldiTimsPrecursor struct {
	ID       string
	MZ       float64
	Mobility MobilityRange

	energies []float64
	ledger   *Ledger
}

// PrecursorOption configures a precursor at construction.
type PrecursorOption func(*precursorOptions)

type precursorOptions struct {
	baseline map[float64]int
}

// WithBaseline seeds the usage counters, e.g. when resuming a partially
// acquired run. Energies missing from baseline start at zero.
func WithBaseline(baseline map[float64]int) PrecursorOption {
	return func(o *precursorOptions) {
		o.baseline = baseline
	}
}

// NewMaldiTimsPrecursor creates a precursor with one zeroed usage counter per candidate energy.
func NewMaldiTimsPrecursor(id string, mz float64, mobility MobilityRange, energies []float64, opts ...PrecursorOption) (*MaldiTimsPrecursor, error) {
	var o precursorOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := &MaldiTimsPrecursor{
		ID:       id,
		MZ:       mz,
		Mobility: mobility,
		energies: append([]float64(nil), energies...),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.ledger = newLedger(p.energies)
	if o.baseline != nil {
		if err := p.ledger.seed(o.baseline); err != nil {
			return nil, fmt.Errorf("precursor %s: %w", p.Name(), err)
		}
	}
	return p, nil
}

// Validate checks m/z, mobility range and candidate energies.
func (p *MaldiTimsPrecursor) Validate() error {
	var errs []string

	if math.IsNaN(p.MZ) || math.IsInf(p.MZ, 0) || p.MZ <= 0 {
		errs = append(errs, "precursor m/z must be positive and finite")
	}
	if math.IsNaN(p.Mobility.Lower) || math.IsInf(p.Mobility.Lower, 0) ||
		math.IsNaN(p.Mobility.Upper) || math.IsInf(p.Mobility.Upper, 0) {
		errs = append(errs, "mobility bounds must be finite")
	} else if p.Mobility.Lower > p.Mobility.Upper {
		errs = append(errs, "mobility lower bound exceeds upper bound")
	}
	if len(p.energies) == 0 {
		errs = append(errs, "at least one collision energy is required")
	}

	seen := make(map[float64]bool, len(p.energies))
	for i, e := range p.energies {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			errs = append(errs, fmt.Sprintf("collision energy %d is not finite", i))
			continue
		}
		if seen[e] {
			errs = append(errs, fmt.Sprintf("duplicate collision energy %g", e))
		}
		seen[e] = true
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Precursor " + p.Name(),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Name returns the precursor name in format "ID/m/z", or just the m/z if no ID is set.
func (p *MaldiTimsPrecursor) Name() string {
	if p.ID == "" {
		return fmt.Sprintf("%.4f", p.MZ)
	}
	return fmt.Sprintf("%s/%.4f", p.ID, p.MZ)
}

// CollisionEnergies returns a copy of the ordered candidate energies.
func (p *MaldiTimsPrecursor) CollisionEnergies() []float64 {
	return append([]float64(nil), p.energies...)
}

// HasCollisionEnergy reports whether energy is a candidate for this precursor.
func (p *MaldiTimsPrecursor) HasCollisionEnergy(energy float64) bool {
	return p.ledger.index(energy) >= 0
}

// Ledger returns the precursor's usage ledger.
func (p *MaldiTimsPrecursor) Ledger() *Ledger {
	return p.ledger
}

// UsageCount returns how many spots consumed energy for this precursor.
func (p *MaldiTimsPrecursor) UsageCount(energy float64) int {
	return p.ledger.Count(energy)
}

// IncrementSpotCounterForCollisionEnergy commits one use of energy.
// Energies outside the candidate set fail with ErrEnergyNotCandidate and
// leave every counter unchanged.
func (p *MaldiTimsPrecursor) IncrementSpotCounterForCollisionEnergy(energy float64) error {
	if err := p.ledger.Increment(energy); err != nil {
		return fmt.Errorf("precursor %s: %w", p.Name(), err)
	}
	return nil
}
