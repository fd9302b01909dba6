// Package executionstore defines the port interface for the append-only
// execution record store. One record is written per policy attempt,
// whatever gate it stopped at.
package executionstore

import (
	"context"
	"time"

	"github.com/Strob0t/RuleForge/internal/domain/execution"
)

// Filter controls which records are returned by ListRecords.
type Filter struct {
	PolicyID string             `json:"policy_id,omitempty"`
	Statuses []execution.Status `json:"statuses,omitempty"`
	After    *time.Time         `json:"after,omitempty"`
	Before   *time.Time         `json:"before,omitempty"`
}

// Page is a cursor-paginated page of execution records.
type Page struct {
	Records []execution.Record `json:"records"`
	Cursor  string             `json:"cursor"`
	HasMore bool               `json:"has_more"`
	Total   int                `json:"total"`
}

// Summary contains aggregate stats over recorded executions.
type Summary struct {
	Total        int            `json:"total"`
	StatusCounts map[string]int `json:"status_counts"`
	Failures     int            `json:"failures"`
	Succeeded    int            `json:"succeeded"`
	AvgElapsedMS int64          `json:"avg_elapsed_ms"`
}

// Store is the port interface for appending and loading execution
// records.
type Store interface {
	// Append persists a new record.
	Append(ctx context.Context, rec *execution.Record) error

	// Get returns the record with the given id.
	Get(ctx context.Context, id string) (*execution.Record, error)

	// ListRecords returns a cursor-paginated page of records, newest
	// first, with optional filtering.
	ListRecords(ctx context.Context, filter Filter, cursor string, limit int) (*Page, error)

	// Stats returns aggregate statistics, optionally scoped to one
	// policy (empty policyID means all).
	Stats(ctx context.Context, policyID string) (*Summary, error)
}
