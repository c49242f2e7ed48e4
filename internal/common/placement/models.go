// Package placement persists assignment batches and their results. It is the
// storage side shared by the assignment workers and the offline runner.
package placement

import (
	"sort"
	"time"

	"placement-workers/pkg/assignment"
)

// Kind says what a batch places.
type Kind string

const (
	KindSubjects    Kind = "subjects"    // student groups onto project subjects
	KindInternships Kind = "internships" // students onto internship offers
)

func (k Kind) Valid() bool {
	return k == KindSubjects || k == KindInternships
}

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusOpen        Status = "open"
	StatusAssigned    Status = "assigned"
	StatusForceFilled Status = "force_filled"
)

type Batch struct {
	ID        string
	Kind      Kind
	Status    Status
	UpdatedAt time.Time
}

// Problem is a complete assignment input.
type Problem struct {
	Preferences assignment.Preferences `json:"preferences" validate:"required,dive,keys,required,endkeys,dive,required"`
	Capacities  assignment.Capacities  `json:"capacities" validate:"required,dive,keys,required,endkeys,gte=0"`
}

// AssignmentRow is one persisted pair.
type AssignmentRow struct {
	ApplicantID assignment.ApplicantID
	SlotID      assignment.SlotID
	Phase       assignment.Phase
	RunID       string
}

// SplitRows rebuilds the assignment map and its forced subset.
func SplitRows(rows []AssignmentRow) (assignments, forced map[assignment.ApplicantID]assignment.SlotID) {
	assignments = make(map[assignment.ApplicantID]assignment.SlotID, len(rows))
	forced = make(map[assignment.ApplicantID]assignment.SlotID)
	for _, r := range rows {
		assignments[r.ApplicantID] = r.SlotID
		if r.Phase == assignment.PhaseForced {
			forced[r.ApplicantID] = r.SlotID
		}
	}
	return assignments, forced
}

// Summary is the cached and reported view of a committed run.
type Summary struct {
	BatchID          string                   `json:"batchId"`
	RunID            string                   `json:"runId"`
	Kind             Kind                     `json:"kind"`
	Status           Status                   `json:"status"`
	Total            int                      `json:"total"`
	AssignedCount    int                      `json:"assignedCount"`
	StableAssigned   int                      `json:"stableAssigned"`
	CascadeAssigned  int                      `json:"cascadeAssigned"`
	ForcedAssigned   int                      `json:"forcedAssigned"`
	Unassigned       []assignment.ApplicantID `json:"unassigned"`
	AverageRank      *float64                 `json:"averageRank"`
	RankDistribution map[int]int              `json:"rankDistribution,omitempty"`
	CompletedAt      time.Time                `json:"completedAt"`
}

// NewSummary describes out as committed for batch under runID.
func NewSummary(batch *Batch, runID string, out *assignment.Outcome, at time.Time) *Summary {
	s := SummaryFromResult(batch, runID, out.Result, at)
	s.StableAssigned = out.StableAssigned
	s.CascadeAssigned = out.CascadeAssigned
	s.ForcedAssigned = out.ForcedAssigned
	return s
}

// SummaryFromResult describes a result without per-phase counts, except
// the forced count which the result carries.
func SummaryFromResult(batch *Batch, runID string, res *assignment.Result, at time.Time) *Summary {
	return &Summary{
		BatchID:          batch.ID,
		RunID:            runID,
		Kind:             batch.Kind,
		Status:           batch.Status,
		Total:            res.Total,
		AssignedCount:    res.AssignedCount,
		ForcedAssigned:   len(res.Forced),
		Unassigned:       res.Unassigned,
		AverageRank:      res.AverageRank,
		RankDistribution: res.RankDistribution,
		CompletedAt:      at.UTC(),
	}
}

// SummaryFromRows rebuilds the summary of a committed batch from its stored
// rows. prefs are normalized the way the runs normalize them, so ranks match
// the ones the run reported.
func SummaryFromRows(batch *Batch, rows []AssignmentRow, prefs assignment.Preferences, at time.Time) *Summary {
	assignments, forced := SplitRows(rows)
	res := assignment.Summarize(assignments, forced, assignment.Normalize(prefs))

	sum := SummaryFromResult(batch, CommittedRunID(rows), res, at)
	for _, row := range rows {
		switch row.Phase {
		case assignment.PhaseStable:
			sum.StableAssigned++
		case assignment.PhaseCascade:
			sum.CascadeAssigned++
		}
	}
	return sum
}

// CommittedRunID returns the run that wrote the stable and cascade rows, or
// the first row's run when every row was forced. It is empty without rows.
func CommittedRunID(rows []AssignmentRow) string {
	for _, row := range rows {
		if row.Phase != assignment.PhaseForced {
			return row.RunID
		}
	}
	if len(rows) > 0 {
		return rows[0].RunID
	}
	return ""
}

// HasRun reports whether any row was written by runID.
func HasRun(rows []AssignmentRow, runID string) bool {
	for _, row := range rows {
		if row.RunID == runID {
			return true
		}
	}
	return false
}

func sortedApplicants(m map[assignment.ApplicantID]assignment.SlotID) []assignment.ApplicantID {
	ids := make([]assignment.ApplicantID, 0, len(m))
	for a := range m {
		ids = append(ids, a)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
