package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and input files",
	Long: `Validate the configuration and, if given, the spot and precursor files.
Reports how many spots and precursors pass the selection filters.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK\n")
	printConfig(cfg)
	sel := cfg.Filter()

	if spotsFile != "" {
		list, err := readSpots(spotsFile)
		if err != nil {
			return err
		}
		kept := sel.Spots(list)
		fmt.Printf("Spots: %d (%d above minimum intensity)\n", len(list), len(kept))
	}

	if precursorsFile != "" {
		list, err := readPrecursors(precursorsFile)
		if err != nil {
			return err
		}
		kept, rejected := sel.Precursors(list)
		fmt.Printf("Precursors: %d (%d inside m/z window, %d rejected)\n", len(list), len(kept), rejected)
	}

	return nil
}
