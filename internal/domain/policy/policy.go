// Package policy defines the Policy domain entity for RuleForge's
// automation sandbox. A policy pairs a named trigger with a condition
// expression and an action script, both authored as short snippets of
// the restricted rule language. Snippet text is never executed without
// passing the static validator first; the sandbox never deletes a
// policy on its own, and the only sanctioned mutation during dispatch
// is appending an execution-record id to History after a fully
// successful action.
package policy

import (
	"time"
)

// Policy represents one automation rule bound to a trigger event.
type Policy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Trigger     string    `json:"trigger"`
	Condition   string    `json:"condition,omitempty"`
	Action      string    `json:"action"`
	Enabled     bool      `json:"enabled"`
	Version     int       `json:"version"`
	History     []string  `json:"history,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to register a new policy.
// Enabled defaults to true when omitted. The yaml tags support seed
// files loaded at startup.
type CreateRequest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     string `json:"trigger" yaml:"trigger"`
	Condition   string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Action      string `json:"action" yaml:"action"`
	Enabled     *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// UpdateRequest holds a partial update; nil fields are left unchanged.
// Version must match the stored policy (optimistic locking).
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Trigger     *string `json:"trigger,omitempty"`
	Condition   *string `json:"condition,omitempty"`
	Action      *string `json:"action,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
	Version     int     `json:"version"`
}

// Apply copies the non-nil fields of the request onto the policy.
func (r *UpdateRequest) Apply(p *Policy) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Trigger != nil {
		p.Trigger = *r.Trigger
	}
	if r.Condition != nil {
		p.Condition = *r.Condition
	}
	if r.Action != nil {
		p.Action = *r.Action
	}
	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
}
