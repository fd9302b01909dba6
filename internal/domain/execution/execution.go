// Package execution defines the immutable outcome records produced by
// policy dispatch. Every attempt yields exactly one record; a policy's
// History references records by id rather than embedding them.
package execution

import (
	"encoding/json"
	"time"
)

// Status classifies the outcome of one policy evaluation attempt.
type Status string

const (
	StatusSucceeded           Status = "succeeded"
	StatusConditionNotMet     Status = "condition_not_met"
	StatusRejectedValidation  Status = "rejected_validation"
	StatusRejectedQuota       Status = "rejected_quota"
	StatusRejectedBreaker     Status = "rejected_breaker"
	StatusSuppressedDuplicate Status = "suppressed_duplicate"
	StatusFailedTimeout       Status = "failed_timeout"
	StatusFailedRuntime       Status = "failed_runtime"
	StatusFailedCapability    Status = "failed_capability"
	StatusDryRun              Status = "dry_run"
)

// Gate identifies the pipeline stage that decided a non-success outcome.
type Gate string

const (
	GateValidate   Gate = "validate"
	GateBreaker    Gate = "breaker"
	GateQuota      Gate = "quota"
	GateDedup      Gate = "dedup"
	GateCapability Gate = "capability"
	GateCondition  Gate = "condition"
	GateAction     Gate = "action"
)

// Record is the persisted outcome of one policy evaluation attempt.
// Immutable once produced.
type Record struct {
	ID           string          `json:"id"`
	PolicyID     string          `json:"policy_id"`
	PolicyName   string          `json:"policy_name,omitempty"`
	TriggerName  string          `json:"trigger_name"`
	EventID      string          `json:"event_id,omitempty"`
	Status       Status          `json:"status"`
	Gate         Gate            `json:"gate,omitempty"`
	ConditionMet bool            `json:"condition_met"`
	Value        json.RawMessage `json:"value,omitempty"`
	Error        string          `json:"error,omitempty"`
	Elapsed      time.Duration   `json:"elapsed_ns"`
	DryRun       bool            `json:"dry_run,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Success reports whether the record represents a fully successful
// action execution, the only outcome that appends to policy history.
func (s Status) Success() bool {
	return s == StatusSucceeded
}

// Failure reports whether the outcome counts against the policy's
// circuit breaker. Gate rejections and suppressed duplicates are
// structural, not failures; only executed code that timed out, threw,
// or breached its capability surface trips the breaker.
func (s Status) Failure() bool {
	switch s {
	case StatusFailedTimeout, StatusFailedRuntime, StatusFailedCapability:
		return true
	}
	return false
}
