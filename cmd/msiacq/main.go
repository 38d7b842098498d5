// MSIAcq - MALDI imaging MS/MS acquisition planner
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/MSIAcq/cmd/msiacq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
