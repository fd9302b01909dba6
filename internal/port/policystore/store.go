// Package policystore defines the persistence port for policy records.
package policystore

import (
	"context"

	"github.com/Strob0t/RuleForge/internal/domain/policy"
)

// Store is the port interface for policy persistence.
type Store interface {
	// List returns all policies ordered by creation time.
	List(ctx context.Context) ([]policy.Policy, error)

	// Get returns the policy with the given id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*policy.Policy, error)

	// Create persists a new policy built from req.
	Create(ctx context.Context, req policy.CreateRequest) (*policy.Policy, error)

	// Update applies req to the stored policy. It returns
	// domain.ErrConflict when req.Version does not match the stored
	// version.
	Update(ctx context.Context, id string, req policy.UpdateRequest) (*policy.Policy, error)

	// Delete removes the policy.
	Delete(ctx context.Context, id string) error

	// SetEnabled toggles a policy without bumping its version.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// AppendHistory appends an execution record id to the policy's
	// history. Called only for fully successful executions.
	AppendHistory(ctx context.Context, id string, recordID string) error
}
