package planner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/ChrisMcGann/MSIAcq/pkg/config"
	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/reader/spots"
	"github.com/google/go-cmp/cmp"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.MaxDistance = 15
	cfg.Scheduler.MaxUsagePerEnergy = 1
	return cfg
}

func row(n int) []*core.ImagingSpot {
	spots := make([]*core.ImagingSpot, n)
	for i := range spots {
		spots[i] = core.NewCandidateSpot(core.SpotCoordinate{X: i * 10, Y: 0}, core.ModeSingle, 1e5)
	}
	return spots
}

func precursor(t *testing.T, id string, mobility core.MobilityRange, energies ...float64) *core.MaldiTimsPrecursor {
	t.Helper()
	p, err := core.NewMaldiTimsPrecursor(id, 500, mobility, energies)
	if err != nil {
		t.Fatalf("NewMaldiTimsPrecursor() failed: %v", err)
	}
	return p
}

func energiesOf(plan *Plan) []float64 {
	out := make([]float64, len(plan.Assignments))
	for i, a := range plan.Assignments {
		out[i] = a.CollisionEnergy
	}
	return out
}

func newPlanner(t *testing.T, cfg *config.Config) *Planner {
	t.Helper()
	pl, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return pl
}

func TestRunSpreadsEnergies(t *testing.T) {
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40, 50)
	spots := row(4)

	plan, err := newPlanner(t, testConfig()).Run(context.Background(), spots, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if diff := cmp.Diff([]float64{30, 40, 50}, energiesOf(plan)); diff != "" {
		t.Errorf("Assigned energies mismatch (-want +got):\n%s", diff)
	}
	// the fourth spot is never visited once the precursor is exhausted
	if plan.Stats.SpotsVisited != 3 {
		t.Errorf("Expected 3 visited spots, got %d", plan.Stats.SpotsVisited)
	}
	if diff := cmp.Diff(map[float64]int{30: 1, 40: 1, 50: 1}, p.Ledger().Snapshot()); diff != "" {
		t.Errorf("Ledger mismatch (-want +got):\n%s", diff)
	}

	first := plan.Assignments[0]
	if first.Spot != (core.SpotCoordinate{X: 0, Y: 0}) || first.PrecursorID != "a" {
		t.Errorf("Unexpected first assignment: %+v", first)
	}
	if diff := cmp.Diff([]core.Offset{{X: 0, Y: 0}}, first.Offsets); diff != "" {
		t.Errorf("Offsets mismatch (-want +got):\n%s", diff)
	}
	if math.Abs(first.IsolationLow-499.25) > 1e-9 || math.Abs(first.IsolationHigh-500.75) > 1e-9 {
		t.Errorf("Unexpected isolation window [%v, %v]", first.IsolationLow, first.IsolationHigh)
	}
}

func TestRunSharesSpotEnergy(t *testing.T) {
	a := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40)
	b := precursor(t, "b", core.MobilityRange{Lower: 0.95, Upper: 0.96}, 30, 40)
	spots := row(2)

	plan, err := newPlanner(t, testConfig()).Run(context.Background(), spots, []*core.MaldiTimsPrecursor{a, b})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if diff := cmp.Diff([]float64{30, 30, 40, 40}, energiesOf(plan)); diff != "" {
		t.Errorf("Assigned energies mismatch (-want +got):\n%s", diff)
	}
	// the second precursor at a spot takes the next raster position
	if diff := cmp.Diff([]core.Offset{{X: 20, Y: 0}}, plan.Assignments[1].Offsets); diff != "" {
		t.Errorf("Offsets mismatch (-want +got):\n%s", diff)
	}
	if n := len(spots[0].Precursors()); n != 2 {
		t.Errorf("Expected 2 precursors at first spot, got %d", n)
	}
}

func TestRunMobilityConflict(t *testing.T) {
	a := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.87}, 30, 40)
	b := precursor(t, "b", core.MobilityRange{Lower: 0.86, Upper: 0.88}, 30, 40)

	plan, err := newPlanner(t, testConfig()).Run(context.Background(), row(2), []*core.MaldiTimsPrecursor{a, b})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if plan.Stats.MobilityConflicts != 2 {
		t.Errorf("Expected 2 mobility conflicts, got %d", plan.Stats.MobilityConflicts)
	}
	for _, as := range plan.Assignments {
		if as.PrecursorID == "b" {
			t.Errorf("Precursor b must not be assigned: %+v", as)
		}
	}
}

func TestRunStrictLocality(t *testing.T) {
	run := func(strict bool) *Plan {
		cfg := testConfig()
		cfg.Scheduler.MaxUsagePerEnergy = 2
		cfg.Scheduler.StrictLocality = strict
		p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)

		plan, err := newPlanner(t, cfg).Run(context.Background(), row(2), []*core.MaldiTimsPrecursor{p})
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
		return plan
	}

	if plan := run(false); len(plan.Assignments) != 2 {
		t.Errorf("Expected fallback to reuse energy 30, got %d assignments", len(plan.Assignments))
	}

	plan := run(true)
	if len(plan.Assignments) != 1 {
		t.Errorf("Expected strict mode to skip the neighbor, got %d assignments", len(plan.Assignments))
	}
	if plan.Stats.NoEnergy != 1 {
		t.Errorf("Expected 1 pair without energy, got %d", plan.Stats.NoEnergy)
	}
}

func TestRunIntensityFilter(t *testing.T) {
	spots := row(3)
	spots[1].Intensity = 10

	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40, 50)
	plan, err := newPlanner(t, testConfig()).Run(context.Background(), spots, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if plan.Stats.SpotsBelowIntensity != 1 {
		t.Errorf("Expected 1 spot below intensity, got %d", plan.Stats.SpotsBelowIntensity)
	}
	for _, as := range plan.Assignments {
		if as.Spot == spots[1].Coordinate {
			t.Errorf("Low intensity spot must not be assigned")
		}
	}
}

func TestRunFixedSpotEnergy(t *testing.T) {
	spots := []*core.ImagingSpot{
		core.NewCandidateSpot(core.SpotCoordinate{X: 0, Y: 0}, core.ModeSingle, 1e5),
		core.NewCandidateSpot(core.SpotCoordinate{X: 100, Y: 0}, core.ModeSingle, 1e5),
	}
	if err := spots[0].SetCollisionEnergy(45); err != nil {
		t.Fatalf("SetCollisionEnergy() failed: %v", err)
	}
	if err := spots[1].SetCollisionEnergy(40); err != nil {
		t.Fatalf("SetCollisionEnergy() failed: %v", err)
	}

	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40)
	plan, err := newPlanner(t, testConfig()).Run(context.Background(), spots, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	// 45 is not a candidate of the precursor, so only the second spot is used
	if diff := cmp.Diff([]float64{40}, energiesOf(plan)); diff != "" {
		t.Errorf("Assigned energies mismatch (-want +got):\n%s", diff)
	}
	if plan.Stats.NoEnergy != 1 {
		t.Errorf("Expected 1 pair without energy, got %d", plan.Stats.NoEnergy)
	}
}

func TestRunSpotFull(t *testing.T) {
	cfg := testConfig()
	cfg.Raster.Columns = 1
	cfg.Raster.Rows = 1

	spot := core.NewCandidateSpot(core.SpotCoordinate{X: 0, Y: 0}, core.ModeTriple, 1e5)
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)

	plan, err := newPlanner(t, cfg).Run(context.Background(), []*core.ImagingSpot{spot}, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if plan.Stats.SpotsFull != 1 || len(plan.Assignments) != 0 {
		t.Errorf("Expected a full spot and no assignment, got %+v", plan.Stats)
	}
}

func TestRunTripleMode(t *testing.T) {
	spot := core.NewCandidateSpot(core.SpotCoordinate{X: 0, Y: 0}, core.ModeTriple, 1e5)
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)

	plan, err := newPlanner(t, testConfig()).Run(context.Background(), []*core.ImagingSpot{spot}, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(plan.Assignments) != 1 {
		t.Fatalf("Expected 1 assignment, got %d", len(plan.Assignments))
	}
	want := []core.Offset{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 40, Y: 0}}
	if diff := cmp.Diff(want, plan.Assignments[0].Offsets); diff != "" {
		t.Errorf("Offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExplicitCommit(t *testing.T) {
	cfg := testConfig()
	cfg.Registration.CommitOnRegister = false

	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40, 50)
	plan, err := newPlanner(t, cfg).Run(context.Background(), row(4), []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if diff := cmp.Diff([]float64{30, 40, 50}, energiesOf(plan)); diff != "" {
		t.Errorf("Assigned energies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[float64]int{30: 1, 40: 1, 50: 1}, p.Ledger().Snapshot()); diff != "" {
		t.Errorf("Ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestRunNeverExceedsCap(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.MaxUsagePerEnergy = 2
	cfg.Scheduler.MaxDistance = 25

	var spots []*core.ImagingSpot
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			spots = append(spots, core.NewCandidateSpot(core.SpotCoordinate{X: x * 10, Y: y * 10}, core.ModeSingle, 1e5))
		}
	}
	precursors := []*core.MaldiTimsPrecursor{
		precursor(t, "a", core.MobilityRange{Lower: 0.80, Upper: 0.81}, 20, 30, 40),
		precursor(t, "b", core.MobilityRange{Lower: 0.90, Upper: 0.91}, 30, 40),
		precursor(t, "c", core.MobilityRange{Lower: 1.00, Upper: 1.01}, 25, 35, 45, 55),
	}

	plan, err := newPlanner(t, cfg).Run(context.Background(), spots, precursors)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	assigned := map[string]map[float64]int{}
	for _, as := range plan.Assignments {
		if assigned[as.PrecursorID] == nil {
			assigned[as.PrecursorID] = map[float64]int{}
		}
		assigned[as.PrecursorID][as.CollisionEnergy]++
	}

	for _, p := range precursors {
		usage := p.Ledger().Snapshot()
		for _, e := range p.CollisionEnergies() {
			if usage[e] != 2 {
				t.Errorf("Precursor %s energy %v used %d times, want 2", p.ID, e, usage[e])
			}
			if assigned[p.ID][e] != usage[e] {
				t.Errorf("Precursor %s energy %v: %d assignments, ledger %d", p.ID, e, assigned[p.ID][e], usage[e])
			}
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)
	plan, err := newPlanner(t, testConfig()).Run(ctx, row(2), []*core.MaldiTimsPrecursor{p})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if plan == nil || len(plan.Assignments) != 0 {
		t.Errorf("Expected an empty partial plan, got %+v", plan)
	}
}

func TestRunLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pl, err := New(testConfig(), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)
	if _, err := pl.Run(context.Background(), row(1), []*core.MaldiTimsPrecursor{p}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	for _, msg := range []string{"planning acquisition", "assigned precursor", "planning complete"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("Expected log output to contain %q", msg)
		}
	}
}

func TestRunUnknownIntensity(t *testing.T) {
	list, err := spots.NewReader(strings.NewReader("x,y\n0,0\n100,0\n")).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40)

	// default configuration has a minimum intensity
	plan, err := newPlanner(t, config.Default()).Run(context.Background(), list, []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if plan.Stats.SpotsBelowIntensity != 0 || plan.Stats.SpotsVisited != 2 {
		t.Errorf("Stats = %+v, want 2 visited and none below intensity", plan.Stats)
	}
	if diff := cmp.Diff([]float64{30, 40}, energiesOf(plan)); diff != "" {
		t.Errorf("Assigned energies mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRejectsDuplicateIDs(t *testing.T) {
	a := precursor(t, "x", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30)
	b, err := core.NewMaldiTimsPrecursor("x", 700, core.MobilityRange{Lower: 0.95, Upper: 0.96}, []float64{30})
	if err != nil {
		t.Fatalf("NewMaldiTimsPrecursor() failed: %v", err)
	}

	plan, err := newPlanner(t, testConfig()).Run(context.Background(), row(1), []*core.MaldiTimsPrecursor{a, b})
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("Run() error = %v, want %v", err, core.ErrInvalidConfig)
	}
	if len(plan.Assignments) != 0 || a.UsageCount(30) != 0 {
		t.Errorf("Expected nothing planned, got %d assignments", len(plan.Assignments))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Raster.Columns = 0
	if _, err := New(cfg); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name       string
		energies   []float64
		counts     map[float64]int
		wantTotal  int
		wantMean   float64
		wantStdDev float64
	}{
		{"even", []float64{30, 40, 50}, map[float64]int{30: 1, 40: 1, 50: 1}, 3, 1, 0},
		{"uneven", []float64{30, 40}, map[float64]int{30: 0, 40: 2}, 2, 1, math.Sqrt2},
		{"single energy", []float64{30}, map[float64]int{30: 4}, 4, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize("p", 500, tt.energies, tt.counts)
			if s.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", s.Total, tt.wantTotal)
			}
			if math.Abs(s.Mean-tt.wantMean) > 1e-9 {
				t.Errorf("Mean = %v, want %v", s.Mean, tt.wantMean)
			}
			if math.Abs(s.StdDev-tt.wantStdDev) > 1e-9 {
				t.Errorf("StdDev = %v, want %v", s.StdDev, tt.wantStdDev)
			}
			if len(s.Usage) != len(tt.energies) {
				t.Errorf("Expected %d usage entries, got %d", len(tt.energies), len(s.Usage))
			}
		})
	}
}

func TestPlanSummary(t *testing.T) {
	p := precursor(t, "a", core.MobilityRange{Lower: 0.85, Upper: 0.86}, 30, 40, 50)
	plan, err := newPlanner(t, testConfig()).Run(context.Background(), row(2), []*core.MaldiTimsPrecursor{p})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	summary := plan.Summary()
	if len(summary) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summary))
	}
	want := []EnergyUsage{{30, 1}, {40, 1}, {50, 0}}
	if diff := cmp.Diff(want, summary[0].Usage); diff != "" {
		t.Errorf("Usage mismatch (-want +got):\n%s", diff)
	}
}
