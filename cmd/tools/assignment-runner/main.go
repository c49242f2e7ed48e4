// Package main implements assignment-runner, an offline front end to the
// assignment pipeline for operators and for replaying exported batches.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assignment-runner",
		Short:         "Run and check slot assignments offline",
		Long:          "assignment-runner executes the stable, cascade and forced phases on an exported batch and verifies stored results against capacities and preferences.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVerifyCmd())
	return root
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
