package forcefillassignments

import (
	"placement-workers/internal/common/placement"
	"placement-workers/pkg/assignment"
)

type Input struct {
	BatchID string `json:"batchId"`
}

type Output struct {
	BatchID       string                                       `json:"batchId"`
	RunID         string                                       `json:"runId"`
	Status        placement.Status                             `json:"status"`
	Forced        map[assignment.ApplicantID]assignment.SlotID `json:"forced"`
	Unassigned    []assignment.ApplicantID                     `json:"unassigned"`
	HasUnassigned bool                                         `json:"hasUnassigned"`
	AssignedCount int                                          `json:"assignedCount"`
	AverageRank   *float64                                     `json:"averageRank"`
}

const inputSchema = `{
  "type": "object",
  "required": ["batchId"],
  "properties": {
    "batchId": {"type": "string", "minLength": 1, "maxLength": 128}
  }
}`
