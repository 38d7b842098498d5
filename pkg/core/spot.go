package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Ms2ImagingMode is the MS/MS acquisition pattern used on a spot.
type Ms2ImagingMode int

const (
	// ModeSingle fires one raster position per precursor.
	ModeSingle Ms2ImagingMode = iota
	// ModeTriple fires three consecutive raster positions per precursor.
	ModeTriple
)

// ShotsPerPrecursor returns how many raster positions one precursor consumes.
func (m Ms2ImagingMode) ShotsPerPrecursor() int {
	if m == ModeTriple {
		return 3
	}
	return 1
}

func (m Ms2ImagingMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeTriple:
		return "triple"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMs2ImagingMode parses "single" or "triple" (case-insensitive).
func ParseMs2ImagingMode(s string) (Ms2ImagingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ModeSingle, nil
	case "triple":
		return ModeTriple, nil
	default:
		return ModeSingle, fmt.Errorf("%w: unknown imaging mode '%s'", ErrInvalidConfig, s)
	}
}

// ImagingSpot is one physical laser-ablation location selected for MS/MS.
// All precursors at a spot are fragmented with the spot's collision energy.
type ImagingSpot struct {
	Coordinate SpotCoordinate
	Mode       Ms2ImagingMode
	Intensity  float64 // MS1 intensity of the pixel, NaN if unknown

	mu              sync.Mutex
	collisionEnergy float64
	hasEnergy       bool
	shots           int
	precursors      []*MaldiTimsPrecursor
}

// NewImagingSpot creates a spot with an assigned collision energy and unknown intensity.
func NewImagingSpot(coord SpotCoordinate, mode Ms2ImagingMode, collisionEnergy float64) *ImagingSpot {
	return &ImagingSpot{
		Coordinate:      coord,
		Mode:            mode,
		Intensity:       math.NaN(),
		collisionEnergy: collisionEnergy,
		hasEnergy:       true,
	}
}

// NewCandidateSpot creates a spot whose collision energy is chosen later by the scheduler.
// Pass math.NaN() as intensity when it is not known.
func NewCandidateSpot(coord SpotCoordinate, mode Ms2ImagingMode, intensity float64) *ImagingSpot {
	return &ImagingSpot{
		Coordinate: coord,
		Mode:       mode,
		Intensity:  intensity,
	}
}

// HasIntensity reports whether the MS1 intensity of the spot is known.
func (s *ImagingSpot) HasIntensity() bool {
	return !math.IsNaN(s.Intensity)
}

// CollisionEnergy returns the spot's energy and whether one has been assigned.
func (s *ImagingSpot) CollisionEnergy() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collisionEnergy, s.hasEnergy
}

// SetCollisionEnergy assigns the spot's energy. It fails once precursors are registered.
func (s *ImagingSpot) SetCollisionEnergy(energy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.precursors) > 0 && energy != s.collisionEnergy {
		return fmt.Errorf("%w: spot %s already fragments at %g", ErrInvalidConfig, s.Coordinate, s.collisionEnergy)
	}
	s.collisionEnergy = energy
	s.hasEnergy = true
	return nil
}

// AddPrecursor registers p at this spot and commits one use of the spot's
// collision energy in p's ledger. Nothing is changed on error.
func (s *ImagingSpot) AddPrecursor(p *MaldiTimsPrecursor) error {
	return s.register(p, true)
}

// Register attaches p without touching its ledger. Callers using Register
// commit the energy themselves.
func (s *ImagingSpot) Register(p *MaldiTimsPrecursor) error {
	return s.register(p, false)
}

func (s *ImagingSpot) register(p *MaldiTimsPrecursor, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasEnergy {
		return fmt.Errorf("%w: spot %s has no collision energy", ErrInvalidConfig, s.Coordinate)
	}
	if !p.HasCollisionEnergy(s.collisionEnergy) {
		return fmt.Errorf("spot %s, precursor %s, energy %g: %w", s.Coordinate, p.Name(), s.collisionEnergy, ErrEnergyNotCandidate)
	}
	if commit {
		if err := p.IncrementSpotCounterForCollisionEnergy(s.collisionEnergy); err != nil {
			return err
		}
	}
	s.precursors = append(s.precursors, p)
	return nil
}

// Precursors returns the registered precursors in registration order.
func (s *ImagingSpot) Precursors() []*MaldiTimsPrecursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MaldiTimsPrecursor(nil), s.precursors...)
}

// HasPrecursor reports whether p is registered at this spot.
func (s *ImagingSpot) HasPrecursor(p *MaldiTimsPrecursor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.precursors {
		if q == p {
			return true
		}
	}
	return false
}

// MobilityConflict reports whether p's mobility window overlaps a precursor
// already registered at this spot.
func (s *ImagingSpot) MobilityConflict(p *MaldiTimsPrecursor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.precursors {
		if q.Mobility.Overlaps(p.Mobility) {
			return true
		}
	}
	return false
}

// NextShots reserves n consecutive raster positions on this spot.
// If fewer than n positions remain nothing is reserved and ErrSpotFull is returned.
func (s *ImagingSpot) NextShots(r *Raster, n int) ([]Offset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := r.Capacity(); c > 0 && s.shots+n > c {
		return nil, fmt.Errorf("spot %s: %w", s.Coordinate, ErrSpotFull)
	}

	offsets := make([]Offset, n)
	for i := range offsets {
		offsets[i] = r.Offset(s.shots + i)
	}
	s.shots += n
	return offsets, nil
}

// NextShot reserves a single raster position.
func (s *ImagingSpot) NextShot(r *Raster) (Offset, error) {
	offsets, err := s.NextShots(r, 1)
	if err != nil {
		return Offset{}, err
	}
	return offsets[0], nil
}

// RemainingShots returns the number of free raster positions, or -1 if the raster is unbounded.
func (s *ImagingSpot) RemainingShots(r *Raster) int {
	c := r.Capacity()
	if c == 0 {
		return -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return c - s.shots
}

// ShotCount returns the number of raster positions reserved so far.
func (s *ImagingSpot) ShotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shots
}

// NeighborsWithin returns the spots of allSpots whose coordinate lies within
// maxDistance of target, in their original relative order.
func NeighborsWithin(maxDistance float64, allSpots []*ImagingSpot, target SpotCoordinate) []*ImagingSpot {
	var within []*ImagingSpot
	for _, s := range allSpots {
		if WithinDistance(s.Coordinate, target, maxDistance) {
			within = append(within, s)
		}
	}
	return within
}

// SortRasterOrder sorts spots row by row (y, then x). The sort is stable.
func SortRasterOrder(spots []*ImagingSpot) {
	sort.SliceStable(spots, func(i, j int) bool {
		a, b := spots[i].Coordinate, spots[j].Coordinate
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}
