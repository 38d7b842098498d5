// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ChrisMcGann/MSIAcq/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool

	// Flags for plan command
	spotsFile         string
	precursorsFile    string
	outputFile        string
	description       string
	maxDistance       float64
	maxUsagePerEnergy int
	strictLocality    bool
	minIntensity      float64
	isolationWidth    float64
	explicitCommit    bool

	// Raster flags, shared by plan and offsets
	rasterColumns int
	rasterRows    int
	rasterStepX   float64
	rasterStepY   float64

	// Flags for offsets command
	shotCount int
)

var rootCmd = &cobra.Command{
	Use:   "msiacq",
	Short: "MSIAcq - MALDI imaging MS/MS acquisition planner",
	Long: `MSIAcq plans MS/MS acquisitions for MALDI trapped ion mobility imaging runs.

For every selected spot it chooses a collision energy per precursor so that:
- each precursor is fragmented at every candidate energy a limited number of times
- nearby spots do not repeat an energy the precursor already used there
- precursors sharing a spot do not overlap in mobility

The plan is written to a SQLite database for export to the acquisition software.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(offsetsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (defaults apply if not specified)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every assignment to stderr")

	// Plan command flags
	planCmd.Flags().StringVarP(&spotsFile, "spots", "s", "", "Spot CSV file (required)")
	planCmd.Flags().StringVarP(&precursorsFile, "precursors", "p", "", "Precursor CSV file (required)")
	planCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output plan database (required)")
	planCmd.Flags().StringVar(&description, "description", "", "Description stored in the plan header")
	planCmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "Radius in which an energy counts as used for a precursor")
	planCmd.Flags().IntVar(&maxUsagePerEnergy, "max-usage", 0, "MS/MS spectra per precursor and collision energy")
	planCmd.Flags().BoolVar(&strictLocality, "strict", false, "Skip a spot instead of repeating a nearby energy")
	planCmd.Flags().Float64Var(&minIntensity, "min-intensity", 0, "Minimum MS1 intensity of a spot")
	planCmd.Flags().Float64Var(&isolationWidth, "isolation-width", 0, "Quadrupole isolation width (m/z)")
	planCmd.Flags().BoolVar(&explicitCommit, "explicit-commit", false, "Commit energies through the scheduler instead of on registration")
	addRasterFlags(planCmd)

	planCmd.MarkFlagRequired("spots")
	planCmd.MarkFlagRequired("precursors")
	planCmd.MarkFlagRequired("out")

	// Offsets command flags
	offsetsCmd.Flags().IntVarP(&shotCount, "shots", "n", 0, "Number of raster positions to print (0 = raster capacity)")
	addRasterFlags(offsetsCmd)

	// Validate command flags
	validateCmd.Flags().StringVarP(&spotsFile, "spots", "s", "", "Spot CSV file")
	validateCmd.Flags().StringVarP(&precursorsFile, "precursors", "p", "", "Precursor CSV file")
}

func addRasterFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&rasterColumns, "raster-columns", 0, "Raster positions per row")
	cmd.Flags().IntVar(&rasterRows, "raster-rows", 0, "Raster rows (0 = unbounded)")
	cmd.Flags().Float64Var(&rasterStepX, "raster-step-x", 0, "Raster step along x")
	cmd.Flags().Float64Var(&rasterStepY, "raster-step-y", 0, "Raster step along y")
}

// loadConfig reads the configuration file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("max-distance") {
		cfg.Scheduler.MaxDistance = maxDistance
	}
	if flags.Changed("max-usage") {
		cfg.Scheduler.MaxUsagePerEnergy = maxUsagePerEnergy
	}
	if flags.Changed("strict") {
		cfg.Scheduler.StrictLocality = strictLocality
	}
	if flags.Changed("min-intensity") {
		cfg.Selection.MinIntensity = minIntensity
	}
	if flags.Changed("isolation-width") {
		cfg.Selection.IsolationWidth = isolationWidth
	}
	if flags.Changed("explicit-commit") {
		cfg.Registration.CommitOnRegister = !explicitCommit
	}
	if flags.Changed("raster-columns") {
		cfg.Raster.Columns = rasterColumns
	}
	if flags.Changed("raster-rows") {
		cfg.Raster.Rows = rasterRows
	}
	if flags.Changed("raster-step-x") {
		cfg.Raster.StepX = rasterStepX
	}
	if flags.Changed("raster-step-y") {
		cfg.Raster.StepY = rasterStepY
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a stderr logger, at debug level with --verbose
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printConfig(cfg *config.Config) {
	fmt.Printf("Max distance: %g\n", cfg.Scheduler.MaxDistance)
	fmt.Printf("Max usage per energy: %d\n", cfg.Scheduler.MaxUsagePerEnergy)
	if cfg.Scheduler.StrictLocality {
		fmt.Printf("Strict locality: on\n")
	}
	fmt.Printf("Raster: %d x %d, step %g x %g\n", cfg.Raster.Columns, cfg.Raster.Rows, cfg.Raster.StepX, cfg.Raster.StepY)
	fmt.Printf("Min intensity: %g\n", cfg.Selection.MinIntensity)
}
