// Package main is the entry point for the medrun CLI. Medrun orchestrates
// the evaluation pipeline for a medical-imaging challenge: it runs
// submitted inference containers, post-processes their predictions, and
// scores them against the gold standard.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rrchai/medrun/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if !exitErr.Printed {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
