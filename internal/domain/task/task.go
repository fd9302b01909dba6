// Package task defines the Task domain entity. Tasks are the work
// items policy actions create and update through the task-store
// capabilities; they are never mutated by sandboxed code directly.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Priority levels, lowest to highest.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task represents a unit of work produced by an automation policy or
// registered manually.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	Labels      []string  `json:"labels,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Status      Status    `json:"status"`
	PolicyID    string    `json:"policy_id,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	PolicyID    string   `json:"policy_id,omitempty"`
	EventID     string   `json:"event_id,omitempty"`
}

const maxTitleLength = 500

// Validate checks the request and fills defaults. An empty priority
// becomes normal.
func (r *CreateRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > maxTitleLength {
		return fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if !ValidPriority(r.Priority) {
		return fmt.Errorf("unknown priority %q", r.Priority)
	}
	return nil
}

// UpdateRequest holds a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	Status      *Status   `json:"status,omitempty"`
}

// Validate checks the populated fields of the request.
func (r *UpdateRequest) Validate() error {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		if t == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if len(t) > maxTitleLength {
			return fmt.Errorf("title exceeds %d characters", maxTitleLength)
		}
		r.Title = &t
	}
	if r.Priority != nil && !ValidPriority(*r.Priority) {
		return fmt.Errorf("unknown priority %q", *r.Priority)
	}
	if r.Status != nil && !ValidStatus(*r.Status) {
		return fmt.Errorf("unknown status %q", *r.Status)
	}
	return nil
}

// Apply copies the populated fields onto t.
func (r *UpdateRequest) Apply(t *Task) {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
	}
	if r.Labels != nil {
		t.Labels = *r.Labels
	}
	if r.Assignee != nil {
		t.Assignee = *r.Assignee
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
}
