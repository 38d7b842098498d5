package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/ChrisMcGann/MSIAcq/pkg/planner"
	"github.com/ChrisMcGann/MSIAcq/pkg/reader/precursors"
	"github.com/ChrisMcGann/MSIAcq/pkg/reader/spots"
	"github.com/ChrisMcGann/MSIAcq/pkg/writer/sqlite"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan MS/MS acquisitions and write them to a SQLite database",
	Long: `Assign precursors and collision energies to imaging spots and write the
resulting plan to a SQLite database.

Examples:
  # Plan with default settings
  msiacq plan --spots spots.csv --precursors precursors.csv --out plan.db

  # Three spectra per energy, energies may repeat only 50 units apart
  msiacq plan -s spots.csv -p precursors.csv -o plan.db --max-usage 3 --max-distance 50

  # Settings from a file, one flag overridden
  msiacq plan -c run.yaml -s spots.csv -p precursors.csv -o plan.db --strict`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	spotList, err := readSpots(spotsFile)
	if err != nil {
		return err
	}
	precursorList, err := readPrecursors(precursorsFile)
	if err != nil {
		return err
	}

	fmt.Printf("Planning %s x %s to %s...\n", spotsFile, precursorsFile, outputFile)
	printConfig(cfg)

	pl, err := planner.New(cfg, planner.WithLogger(newLogger()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plan, err := pl.Run(ctx, spotList, precursorList)
	if err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("planning failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: planning interrupted, writing partial plan\n")
	}

	writer, err := sqlite.NewWriter(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	writer.SetDescription(description)
	if err := writer.WritePlan(plan); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}

	printStats(plan)
	for _, p := range plan.Precursors {
		if !p.Ledger().Exhausted(cfg.Scheduler.MaxUsagePerEnergy) {
			fmt.Fprintf(os.Stderr, "Warning: precursor %s did not reach %d spectra at every energy\n", p.Name(), cfg.Scheduler.MaxUsagePerEnergy)
		}
	}
	fmt.Printf("Output: %s\n", outputFile)

	return nil
}

func printStats(plan *planner.Plan) {
	fmt.Printf("\nPlanning complete!\n")
	fmt.Printf("Spots visited: %d\n", plan.Stats.SpotsVisited)
	fmt.Printf("Assignments: %d\n", len(plan.Assignments))
	if plan.Stats.SpotsBelowIntensity > 0 {
		fmt.Printf("Skipped: %d spots (below minimum intensity)\n", plan.Stats.SpotsBelowIntensity)
	}
	if plan.Stats.PrecursorsRejected > 0 {
		fmt.Printf("Skipped: %d precursors (outside m/z window)\n", plan.Stats.PrecursorsRejected)
	}
	if plan.Stats.MobilityConflicts > 0 {
		fmt.Printf("Mobility conflicts: %d\n", plan.Stats.MobilityConflicts)
	}
	if plan.Stats.NoEnergy > 0 {
		fmt.Printf("No energy available: %d\n", plan.Stats.NoEnergy)
	}
	if plan.Stats.SpotsFull > 0 {
		fmt.Printf("Spots full: %d\n", plan.Stats.SpotsFull)
	}
}

func readSpots(path string) ([]*core.ImagingSpot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spot file: %w", err)
	}
	defer f.Close()

	list, err := spots.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading spot file %s: %w", path, err)
	}
	return list, nil
}

func readPrecursors(path string) ([]*core.MaldiTimsPrecursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open precursor file: %w", err)
	}
	defer f.Close()

	list, err := precursors.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading precursor file %s: %w", path, err)
	}
	return list, nil
}
