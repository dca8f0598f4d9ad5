// Command deck-evaluator scores pitch-deck PDFs.
package main

import (
	"fmt"
	"os"

	"github.com/spherical/deck-evaluator/cmd/deck-evaluator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
