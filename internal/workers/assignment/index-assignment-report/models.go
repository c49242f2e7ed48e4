package indexassignmentreport

import "placement-workers/internal/common/placement"

type Input struct {
	BatchID string `json:"batchId"`
	RunID   string `json:"runId"`
}

type Output struct {
	ReportIndex   string           `json:"reportIndex"`
	ReportID      string           `json:"reportId"`
	Status        placement.Status `json:"status"`
	AssignedCount int              `json:"assignedCount"`
	Unassigned    int              `json:"unassignedCount"`
	IndexedAt     string           `json:"indexedAt"`
}

const inputSchema = `{
  "type": "object",
  "required": ["batchId", "runId"],
  "properties": {
    "batchId": {"type": "string", "minLength": 1, "maxLength": 128},
    "runId": {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`
