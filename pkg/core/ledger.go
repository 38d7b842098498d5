package core

import (
	"fmt"
	"sync"
)

// Ledger records, per candidate collision energy, how many spots have
// consumed that energy for one precursor. It holds exactly one counter per
// candidate energy.
type Ledger struct {
	mu       sync.Mutex
	energies []float64
	counts   []int
}

// newLedger creates a ledger with zeroed counters. energies must already be validated.
func newLedger(energies []float64) *Ledger {
	return &Ledger{
		energies: energies,
		counts:   make([]int, len(energies)),
	}
}

// index returns the position of energy in the candidate list, or -1.
func (l *Ledger) index(energy float64) int {
	for i, e := range l.energies {
		if e == energy {
			return i
		}
	}
	return -1
}

// seed sets initial counters. All keys must be candidates and values non-negative.
func (l *Ledger) seed(baseline map[float64]int) error {
	idx := make(map[int]int, len(baseline))
	for energy, count := range baseline {
		i := l.index(energy)
		if i < 0 {
			return fmt.Errorf("baseline energy %g: %w", energy, ErrEnergyNotCandidate)
		}
		if count < 0 {
			return fmt.Errorf("%w: baseline count for energy %g is negative", ErrInvalidConfig, energy)
		}
		idx[i] = count
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, count := range idx {
		l.counts[i] = count
	}
	return nil
}

// Count returns how often energy has been consumed. Non-candidate energies report 0.
func (l *Ledger) Count(energy float64) int {
	i := l.index(energy)
	if i < 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[i]
}

// Increment adds one use of energy.
func (l *Ledger) Increment(energy float64) error {
	i := l.index(energy)
	if i < 0 {
		return fmt.Errorf("energy %g: %w", energy, ErrEnergyNotCandidate)
	}

	l.mu.Lock()
	l.counts[i]++
	l.mu.Unlock()
	return nil
}

// TryIncrement adds one use of energy only if its counter is below limit.
// The check and the increment happen under one lock.
func (l *Ledger) TryIncrement(energy float64, limit int) (bool, error) {
	i := l.index(energy)
	if i < 0 {
		return false, fmt.Errorf("energy %g: %w", energy, ErrEnergyNotCandidate)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[i] >= limit {
		return false, nil
	}
	l.counts[i]++
	return true, nil
}

// Snapshot returns a copy of all counters keyed by energy.
func (l *Ledger) Snapshot() map[float64]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[float64]int, len(l.energies))
	for i, e := range l.energies {
		out[e] = l.counts[i]
	}
	return out
}

// Exhausted reports whether every counter has reached limit.
func (l *Ledger) Exhausted(limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.counts {
		if c < limit {
			return false
		}
	}
	return true
}
