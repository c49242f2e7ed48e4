package computeassignments

import (
	"placement-workers/internal/common/placement"
	"placement-workers/pkg/assignment"
)

type Input struct {
	BatchID string `json:"batchId"`
	// ForceFill overrides assignment.force_fill for this run.
	ForceFill *bool `json:"forceFill,omitempty"`
	// Rerun ignores a cached result and recomputes the batch.
	Rerun bool `json:"rerun,omitempty"`
	// DryRun computes without taking the lock or writing anything.
	DryRun bool `json:"dryRun,omitempty"`
	// Problem supplies the inputs inline instead of loading the batch. Such
	// runs are always dry.
	Problem *placement.Problem `json:"problem,omitempty"`
	Kind    placement.Kind     `json:"kind,omitempty"`
}

type Output struct {
	BatchID         string                                       `json:"batchId"`
	RunID           string                                       `json:"runId"`
	Kind            placement.Kind                               `json:"kind"`
	Status          placement.Status                             `json:"status"`
	Assignments     map[assignment.ApplicantID]assignment.SlotID `json:"assignments,omitempty"`
	Unassigned      []assignment.ApplicantID                     `json:"unassigned"`
	HasUnassigned   bool                                         `json:"hasUnassigned"`
	Total           int                                          `json:"total"`
	AssignedCount   int                                          `json:"assignedCount"`
	StableAssigned  int                                          `json:"stableAssigned"`
	CascadeAssigned int                                          `json:"cascadeAssigned"`
	ForcedAssigned  int                                          `json:"forcedAssigned"`
	AverageRank     *float64                                     `json:"averageRank"`
	Cached          bool                                         `json:"cached"`
	DryRun          bool                                         `json:"dryRun"`
}

const inputSchema = `{
  "type": "object",
  "required": ["batchId"],
  "properties": {
    "batchId": {"type": "string", "minLength": 1, "maxLength": 128},
    "forceFill": {"type": "boolean"},
    "rerun": {"type": "boolean"},
    "dryRun": {"type": "boolean"},
    "kind": {"type": "string", "enum": ["subjects", "internships"]},
    "problem": {
      "type": "object",
      "required": ["preferences", "capacities"],
      "properties": {
        "preferences": {
          "type": "object",
          "propertyNames": {"minLength": 1},
          "additionalProperties": {
            "type": ["array", "null"],
            "items": {"type": "string"}
          }
        },
        "capacities": {
          "type": "object",
          "propertyNames": {"minLength": 1},
          "additionalProperties": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`
