package placement

import (
	"time"

	"placement-workers/pkg/assignment"
)

// Report is the document indexed for a committed batch.
type Report struct {
	Summary
	Assignments []ReportRow `json:"assignments"`
	SlotLoad    []SlotLoad  `json:"slotLoad"`
	IndexedAt   time.Time   `json:"indexedAt"`
}

type ReportRow struct {
	ApplicantID string `json:"applicantId"`
	SlotID      string `json:"slotId"`
	Phase       string `json:"phase"`
	Rank        int    `json:"rank,omitempty"`
}

type SlotLoad struct {
	SlotID   string `json:"slotId"`
	Capacity int    `json:"capacity"`
	Held     int    `json:"held"`
}

// BuildReport assembles a report from persisted rows and the batch inputs.
// The summary figures are recomputed from the rows, so the report reflects
// any forced pairs appended after the original run.
func BuildReport(batch *Batch, runID string, rows []AssignmentRow, problem *Problem, now time.Time) *Report {
	prefs := assignment.Normalize(problem.Preferences)
	sum := SummaryFromRows(batch, rows, prefs, now)
	sum.RunID = runID

	report := &Report{
		Summary:     *sum,
		Assignments: make([]ReportRow, 0, len(rows)),
		IndexedAt:   now.UTC(),
	}
	for _, row := range rows {
		rr := ReportRow{
			ApplicantID: string(row.ApplicantID),
			SlotID:      string(row.SlotID),
			Phase:       string(row.Phase),
		}
		if row.Phase != assignment.PhaseForced {
			rr.Rank = prefs.Rank(row.ApplicantID, row.SlotID)
		}
		report.Assignments = append(report.Assignments, rr)
	}

	assignments, _ := SplitRows(rows)
	held := assignment.CountAssignments(assignments)
	for _, slot := range problem.Capacities.Slots() {
		report.SlotLoad = append(report.SlotLoad, SlotLoad{
			SlotID:   string(slot),
			Capacity: problem.Capacities.Of(slot),
			Held:     held[slot],
		})
	}
	return report
}
