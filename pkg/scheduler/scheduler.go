// Package scheduler selects collision energies for precursors at imaging
// spots. It balances a per-energy usage cap, spatial diversity between
// nearby spots and global under-use of energies.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
)

// LocallySaturated reports whether energy is already represented near a
// target, i.e. one of the neighboring spots fragments at that energy.
func LocallySaturated(energy float64, neighbors []*core.ImagingSpot) bool {
	for _, s := range neighbors {
		if ce, ok := s.CollisionEnergy(); ok && ce == energy {
			return true
		}
	}
	return false
}

// validateLimits checks the run-wide distance and usage cap.
func validateLimits(maxDistance float64, maxUsage int) error {
	if maxDistance <= 0 {
		return fmt.Errorf("%w: max distance must be positive, got %g", core.ErrInvalidConfig, maxDistance)
	}
	if maxUsage < 1 {
		return fmt.Errorf("%w: max usage per energy must be >= 1, got %d", core.ErrInvalidConfig, maxUsage)
	}
	return nil
}

// validateQuery checks the limits and that candidates is a duplicate-free
// subset of the precursor's energies.
func validateQuery(maxDistance float64, p *core.MaldiTimsPrecursor, candidates []float64, maxUsage int) error {
	if err := validateLimits(maxDistance, maxUsage); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no candidate collision energies", core.ErrInvalidConfig)
	}

	seen := make(map[float64]bool, len(candidates))
	for _, e := range candidates {
		if seen[e] {
			return fmt.Errorf("%w: duplicate candidate energy %g", core.ErrInvalidConfig, e)
		}
		seen[e] = true
		if !p.HasCollisionEnergy(e) {
			return fmt.Errorf("precursor %s, energy %g: %w", p.Name(), e, core.ErrEnergyNotCandidate)
		}
	}
	return nil
}

// rank orders the eligible candidates: locally fresh energies first, then
// saturated ones, each group by ascending usage with declared order breaking
// ties. Saturated energies are dropped when strict is set.
func rank(p *core.MaldiTimsPrecursor, neighbors []*core.ImagingSpot, candidates []float64, maxUsage int, strict bool) []float64 {
	type entry struct {
		energy    float64
		count     int
		saturated bool
	}

	var eligible []entry
	for _, e := range candidates {
		// read each counter once so the ordering is consistent
		count := p.UsageCount(e)
		if count >= maxUsage {
			continue
		}
		saturated := LocallySaturated(e, neighbors)
		if saturated && strict {
			continue
		}
		eligible = append(eligible, entry{energy: e, count: count, saturated: saturated})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].saturated != eligible[j].saturated {
			return !eligible[i].saturated
		}
		return eligible[i].count < eligible[j].count
	})

	ranked := make([]float64, len(eligible))
	for i, e := range eligible {
		ranked[i] = e.energy
	}
	return ranked
}

// PossibleCollisionEnergies returns every energy of candidates still below
// maxUsagePerEnergy, ranked so that energies not used by a reference spot
// within maxDistance of target come first. An empty result means every
// candidate reached the cap.
func PossibleCollisionEnergies(maxDistance float64, p *core.MaldiTimsPrecursor, referenceSpots []*core.ImagingSpot,
	target core.SpotCoordinate, candidates []float64, maxUsagePerEnergy int) ([]float64, error) {
	if err := validateQuery(maxDistance, p, candidates, maxUsagePerEnergy); err != nil {
		return nil, err
	}
	neighbors := core.NeighborsWithin(maxDistance, referenceSpots, target)
	return rank(p, neighbors, candidates, maxUsagePerEnergy, false), nil
}

// BestCollisionEnergy returns the next energy to use for p at target. The
// boolean is false when every candidate reached maxUsagePerEnergy.
func BestCollisionEnergy(maxDistance float64, p *core.MaldiTimsPrecursor, referenceSpots []*core.ImagingSpot,
	target core.SpotCoordinate, candidates []float64, maxUsagePerEnergy int) (float64, bool, error) {
	ranked, err := PossibleCollisionEnergies(maxDistance, p, referenceSpots, target, candidates, maxUsagePerEnergy)
	if err != nil || len(ranked) == 0 {
		return 0, false, err
	}
	return ranked[0], true, nil
}

// Scheduler binds the run-wide scheduling parameters.
type Scheduler struct {
	MaxDistance       float64 // Radius in which energies count as locally used
	MaxUsagePerEnergy int     // Spots allowed per precursor and energy
	StrictLocality    bool    // Drop locally used energies instead of falling back to them
}

// New creates a validated scheduler.
func New(maxDistance float64, maxUsagePerEnergy int, strictLocality bool) (*Scheduler, error) {
	if err := validateLimits(maxDistance, maxUsagePerEnergy); err != nil {
		return nil, err
	}
	return &Scheduler{
		MaxDistance:       maxDistance,
		MaxUsagePerEnergy: maxUsagePerEnergy,
		StrictLocality:    strictLocality,
	}, nil
}

// Possible ranks all of p's candidate energies for target.
func (s *Scheduler) Possible(p *core.MaldiTimsPrecursor, referenceSpots []*core.ImagingSpot, target core.SpotCoordinate) ([]float64, error) {
	candidates := p.CollisionEnergies()
	if err := validateQuery(s.MaxDistance, p, candidates, s.MaxUsagePerEnergy); err != nil {
		return nil, err
	}
	neighbors := core.NeighborsWithin(s.MaxDistance, referenceSpots, target)
	return rank(p, neighbors, candidates, s.MaxUsagePerEnergy, s.StrictLocality), nil
}

// Best returns the first energy of Possible.
func (s *Scheduler) Best(p *core.MaldiTimsPrecursor, referenceSpots []*core.ImagingSpot, target core.SpotCoordinate) (float64, bool, error) {
	ranked, err := s.Possible(p, referenceSpots, target)
	if err != nil || len(ranked) == 0 {
		return 0, false, err
	}
	return ranked[0], true, nil
}

// Commit claims the first energy of ranked that is still below the cap.
// The check and increment are atomic per energy, so concurrent callers
// holding the same ranked list fall through to alternates instead of
// exceeding the cap. The boolean is false when no energy could be claimed.
func (s *Scheduler) Commit(p *core.MaldiTimsPrecursor, ranked []float64) (float64, bool, error) {
	for _, e := range ranked {
		ok, err := p.Ledger().TryIncrement(e, s.MaxUsagePerEnergy)
		if err != nil {
			return 0, false, fmt.Errorf("precursor %s: %w", p.Name(), err)
		}
		if ok {
			return e, true, nil
		}
	}
	return 0, false, nil
}

// Exhausted reports whether every energy of p reached the cap.
func (s *Scheduler) Exhausted(p *core.MaldiTimsPrecursor) bool {
	return p.Ledger().Exhausted(s.MaxUsagePerEnergy)
}
