package main

import (
	"fmt"
	"io"

	"placement-workers/pkg/assignment"

	"github.com/spf13/cobra"
)

type verifyOptions struct {
	input  string
	result string
}

func newVerifyCmd() *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a stored result against its inputs",
		Long:  "Checks that no slot in the result exceeds its capacity and that every non-forced pair names a slot from the applicant's own list.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Path to input JSON file (required)")
	cmd.Flags().StringVarP(&opts.result, "result", "r", "", "Path to result JSON file (required)")
	for _, name := range []string{"input", "result"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
	return cmd
}

func runVerify(w io.Writer, opts *verifyOptions) error {
	problem, err := loadProblem(opts.input)
	if err != nil {
		return err
	}
	result, err := loadResult(opts.result)
	if err != nil {
		return err
	}

	if err := assignment.VerifyCapacity(result, problem.Capacities); err != nil {
		return err
	}
	if err := assignment.VerifyPreferences(result, problem.Preferences); err != nil {
		return err
	}

	fmt.Fprintf(w, "ok: %d pairs within capacity and preferences\n", len(result.Assignments))
	return nil
}
