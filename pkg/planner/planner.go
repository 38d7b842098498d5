// Package planner drives an imaging MS/MS run: it visits spots in raster
// order, schedules collision energies per precursor and commits every
// assignment to the precursor's usage ledger.
package planner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ChrisMcGann/MSIAcq/pkg/config"
	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/filter"
	"github.com/ChrisMcGann/MSIAcq/pkg/scheduler"
)

// Planner builds acquisition plans. A Planner is not safe for concurrent Run calls.
type Planner struct {
	scheduler        *scheduler.Scheduler
	raster           *core.Raster
	filter           *filter.Config
	isolationWidth   float64
	commitOnRegister bool
	logger           *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a planner from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sched, err := scheduler.New(cfg.Scheduler.MaxDistance, cfg.Scheduler.MaxUsagePerEnergy, cfg.Scheduler.StrictLocality)
	if err != nil {
		return nil, err
	}

	p := &Planner{
		scheduler:        sched,
		raster:           cfg.RasterSpec(),
		filter:           cfg.Filter(),
		isolationWidth:   cfg.Selection.IsolationWidth,
		commitOnRegister: cfg.Registration.CommitOnRegister,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run plans the acquisition of precursors over spots. Spots and precursors
// are registered and their ledgers updated in place. If ctx is cancelled
// between spots the partial plan is returned together with ctx.Err().
func (pl *Planner) Run(ctx context.Context, spots []*core.ImagingSpot, precursors []*core.MaldiTimsPrecursor) (*Plan, error) {
	plan := &Plan{}

	// assignments and exports refer to precursors by id
	ids := make(map[string]bool, len(precursors))
	for _, p := range precursors {
		if ids[p.ID] {
			return plan, fmt.Errorf("%w: duplicate precursor id '%s'", core.ErrInvalidConfig, p.ID)
		}
		ids[p.ID] = true
	}

	eligible := pl.filter.Spots(spots)
	core.SortRasterOrder(eligible)
	plan.Stats.SpotsBelowIntensity = len(spots) - len(eligible)

	kept, rejected := pl.filter.Precursors(precursors)
	plan.Precursors = kept
	plan.Stats.PrecursorsRejected = rejected

	pl.logger.Info("planning acquisition",
		"spots", len(eligible),
		"precursors", len(kept),
		"max_distance", pl.scheduler.MaxDistance,
		"max_usage_per_energy", pl.scheduler.MaxUsagePerEnergy)

	// spots already carrying each precursor, the reference set for locality
	carrying := make(map[*core.MaldiTimsPrecursor][]*core.ImagingSpot, len(kept))
	for _, s := range eligible {
		for _, p := range s.Precursors() {
			carrying[p] = append(carrying[p], s)
		}
	}

	for _, spot := range eligible {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		if pl.allExhausted(kept) {
			pl.logger.Info("all precursors exhausted", "visited", plan.Stats.SpotsVisited)
			break
		}

		plan.Spots = append(plan.Spots, spot)
		plan.Stats.SpotsVisited++

		for _, p := range kept {
			assigned, full, err := pl.visit(plan, spot, p, carrying[p])
			if err != nil {
				return plan, err
			}
			if full {
				plan.Stats.SpotsFull++
				break
			}
			if assigned {
				carrying[p] = append(carrying[p], spot)
			}
		}
	}

	pl.logger.Info("planning complete",
		"assignments", len(plan.Assignments),
		"no_energy", plan.Stats.NoEnergy,
		"mobility_conflicts", plan.Stats.MobilityConflicts)
	return plan, nil
}

// visit tries to assign precursor p at spot. full is true when the spot has
// no raster positions left for another precursor.
func (pl *Planner) visit(plan *Plan, spot *core.ImagingSpot, p *core.MaldiTimsPrecursor, refs []*core.ImagingSpot) (assigned, full bool, err error) {
	if pl.scheduler.Exhausted(p) || spot.HasPrecursor(p) {
		return false, false, nil
	}

	shots := spot.Mode.ShotsPerPrecursor()
	if free := spot.RemainingShots(pl.raster); free >= 0 && free < shots {
		return false, true, nil
	}

	if spot.MobilityConflict(p) {
		plan.Stats.MobilityConflicts++
		return false, false, nil
	}

	ranked, err := pl.scheduler.Possible(p, refs, spot.Coordinate)
	if err != nil {
		return false, false, fmt.Errorf("spot %s, precursor %s: %w", spot.Coordinate, p.Name(), err)
	}

	energy, ok := chooseEnergy(spot, ranked)
	if !ok {
		plan.Stats.NoEnergy++
		return false, false, nil
	}

	if err := spot.SetCollisionEnergy(energy); err != nil {
		return false, false, err
	}
	if err := pl.commit(spot, p, energy); err != nil {
		return false, false, err
	}

	offsets, err := spot.NextShots(pl.raster, shots)
	if err != nil {
		return false, false, err
	}

	low, high := p.IsolationWindow(pl.isolationWidth)
	plan.Assignments = append(plan.Assignments, Assignment{
		Spot:            spot.Coordinate,
		Mode:            spot.Mode,
		PrecursorID:     p.ID,
		MZ:              p.MZ,
		Mobility:        p.Mobility,
		IsolationLow:    low,
		IsolationHigh:   high,
		CollisionEnergy: energy,
		Offsets:         offsets,
	})

	pl.logger.Debug("assigned precursor",
		"spot", spot.Coordinate.String(),
		"precursor", p.Name(),
		"collision_energy", energy,
		"usage", p.UsageCount(energy))
	return true, false, nil
}

// chooseEnergy picks the spot's fixed energy if it is still ranked, or the
// best ranked energy for a spot without one.
func chooseEnergy(spot *core.ImagingSpot, ranked []float64) (float64, bool) {
	if len(ranked) == 0 {
		return 0, false
	}

	fixed, ok := spot.CollisionEnergy()
	if !ok {
		return ranked[0], true
	}
	for _, e := range ranked {
		if e == fixed {
			return fixed, true
		}
	}
	return 0, false
}

// commit registers p at spot and records one use of energy.
func (pl *Planner) commit(spot *core.ImagingSpot, p *core.MaldiTimsPrecursor, energy float64) error {
	if pl.commitOnRegister {
		return spot.AddPrecursor(p)
	}

	claimed, ok, err := pl.scheduler.Commit(p, []float64{energy})
	if err != nil {
		return err
	}
	if !ok || claimed != energy {
		return fmt.Errorf("precursor %s: energy %g reached the usage cap", p.Name(), energy)
	}
	return spot.Register(p)
}

func (pl *Planner) allExhausted(precursors []*core.MaldiTimsPrecursor) bool {
	for _, p := range precursors {
		if !pl.scheduler.Exhausted(p) {
			return false
		}
	}
	return true
}
