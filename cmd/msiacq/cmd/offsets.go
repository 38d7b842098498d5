package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var offsetsCmd = &cobra.Command{
	Use:   "offsets",
	Short: "Print the laser raster offsets used within a spot",
	Long: `Print the sub-spot raster offsets in firing order. Each precursor at a spot
consumes one offset (single mode) or three consecutive offsets (triple mode).

Examples:
  # Offsets of the default 4 x 4 raster
  msiacq offsets

  # First 6 offsets of a 3-column raster with 25 unit steps
  msiacq offsets --raster-columns 3 --raster-step-x 25 --raster-step-y 25 -n 6`,
	Args: cobra.NoArgs,
	RunE: runOffsets,
}

func runOffsets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	raster := cfg.RasterSpec()

	n := shotCount
	if n <= 0 {
		n = raster.Capacity()
	}
	if n <= 0 {
		return fmt.Errorf("raster is unbounded, specify --shots")
	}
	if c := raster.Capacity(); c > 0 && n > c {
		return fmt.Errorf("requested %d offsets, raster holds %d", n, c)
	}

	fmt.Printf("shot\tx\ty\n")
	for i := 0; i < n; i++ {
		o := raster.Offset(i)
		fmt.Printf("%d\t%g\t%g\n", i, o.X, o.Y)
	}
	return nil
}
