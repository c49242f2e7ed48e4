package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"placement-workers/pkg/assignment"

	"github.com/spf13/cobra"
)

type runOptions struct {
	input  string
	force  bool
	output string
}

// runReport is the JSON form of a run. It decodes as an assignment.Result,
// so it can be fed straight back into verify.
type runReport struct {
	*assignment.Result
	StableAssigned  int `json:"stableAssigned"`
	CascadeAssigned int `json:"cascadeAssigned"`
	ForcedAssigned  int `json:"forcedAssigned"`
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Assign applicants to slots",
		Long:  "Runs stable matching and the cascade on a {preferences, capacities} document, optionally force-filling whoever is left.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssignment(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Path to input JSON file (required)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Place remaining applicants in free seats regardless of preference")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "Output format: json or text")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Sprintf("failed to mark input flag as required: %v", err))
	}
	return cmd
}

func runAssignment(w io.Writer, opts *runOptions) error {
	if opts.output != "json" && opts.output != "text" {
		return fmt.Errorf("unknown output format %q (want json or text)", opts.output)
	}

	problem, err := loadProblem(opts.input)
	if err != nil {
		return err
	}

	out, err := assignment.DefaultEngine().Run(problem.Preferences, problem.Capacities,
		assignment.RunOptions{ForceFill: opts.force})
	if err != nil {
		return fmt.Errorf("assignment run failed: %w", err)
	}

	report := runReport{
		Result:          out.Result,
		StableAssigned:  out.StableAssigned,
		CascadeAssigned: out.CascadeAssigned,
		ForcedAssigned:  out.ForcedAssigned,
	}
	if opts.output == "text" {
		writeText(w, &report, out.Phases)
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&report)
}

func writeText(w io.Writer, r *runReport, phases map[assignment.ApplicantID]assignment.Phase) {
	applicants := make([]string, 0, len(r.Assignments))
	for a := range r.Assignments {
		applicants = append(applicants, string(a))
	}
	sort.Strings(applicants)

	for _, a := range applicants {
		id := assignment.ApplicantID(a)
		fmt.Fprintf(w, "%-16s %-16s %s\n", a, r.Assignments[id], phases[id])
	}
	for _, a := range r.Unassigned {
		fmt.Fprintf(w, "%-16s %-16s %s\n", a, "-", "unassigned")
	}

	avg := "n/a"
	if r.AverageRank != nil {
		avg = fmt.Sprintf("%.2f", *r.AverageRank)
	}
	fmt.Fprintf(w, "\nassigned %d/%d (stable %d, cascade %d, forced %d), average rank %s\n",
		r.AssignedCount, r.Total, r.StableAssigned, r.CascadeAssigned, r.ForcedAssigned, avg)
}
