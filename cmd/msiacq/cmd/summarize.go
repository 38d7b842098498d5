package cmd

import (
	"fmt"
	"strings"

	"github.com/ChrisMcGann/MSIAcq/pkg/writer/sqlite"
	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize collision energy usage of a plan database",
	Long:  `Print per-precursor usage counts of every collision energy in a plan database written by 'msiacq plan'.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	summaries, err := sqlite.ReadSummary(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("precursor\tm/z\ttotal\tmean\tsd\tusage\n")
	for _, s := range summaries {
		usage := make([]string, len(s.Usage))
		for i, u := range s.Usage {
			usage[i] = fmt.Sprintf("%g:%d", u.CollisionEnergy, u.Count)
		}
		fmt.Printf("%s\t%.4f\t%d\t%.2f\t%.2f\t%s\n", s.PrecursorID, s.MZ, s.Total, s.Mean, s.StdDev, strings.Join(usage, " "))
	}
	fmt.Printf("\n%d precursors\n", len(summaries))
	return nil
}
