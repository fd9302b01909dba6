package messagequeue

import "time"

// TriggerEventPayload is the schema for triggers.events.* messages.
type TriggerEventPayload struct {
	EventID    string         `json:"event_id"`
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// OutcomeRecordedPayload is the schema for outcomes.recorded messages.
type OutcomeRecordedPayload struct {
	RecordID    string `json:"record_id"`
	PolicyID    string `json:"policy_id"`
	PolicyName  string `json:"policy_name"`
	TriggerName string `json:"trigger_name"`
	EventID     string `json:"event_id"`
	Status      string `json:"status"`
	Gate        string `json:"gate,omitempty"`
	Error       string `json:"error,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

// PolicyChangedPayload is the schema for policies.changed messages.
type PolicyChangedPayload struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Change   string `json:"change"` // created|updated|deleted|enabled|disabled
}

// BreakerTrippedPayload is the schema for breakers.tripped messages.
type BreakerTrippedPayload struct {
	Subject  string `json:"subject"`
	Failures int    `json:"failures"`
}
