package notifyunassigned

import "placement-workers/internal/common/placement"

const (
	StatusSent     = "sent"
	StatusSkipped  = "skipped"
	StatusDisabled = "disabled"

	ChannelEmail = "email"
	ChannelTopic = "topic"
)

type Input struct {
	BatchID string `json:"batchId"`
	RunID   string `json:"runId,omitempty"`
	// Unassigned is taken from the compute output when present; otherwise
	// the set is recomputed from the committed rows.
	Unassigned []string       `json:"unassigned,omitempty"`
	Kind       placement.Kind `json:"kind,omitempty"`
}

type Output struct {
	NotificationID  string   `json:"notificationId"`
	Status          string   `json:"notificationStatus"`
	Channels        []string `json:"channels"`
	UnassignedCount int      `json:"unassignedCount"`
	SentAt          string   `json:"sentAt"`
}

const inputSchema = `{
  "type": "object",
  "required": ["batchId"],
  "properties": {
    "batchId": {"type": "string", "minLength": 1, "maxLength": 128},
    "runId": {"type": "string"},
    "kind": {"type": "string", "enum": ["subjects", "internships"]},
    "unassigned": {
      "type": ["array", "null"],
      "items": {"type": "string", "minLength": 1}
    }
  }
}`
