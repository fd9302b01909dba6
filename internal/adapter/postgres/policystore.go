package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
)

// PolicyStore implements policystore.Store using PostgreSQL.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a new PolicyStore backed by the given connection pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// policyColumns is the SELECT column list for policies queries.
const policyColumns = `id, name, description, trigger_name, condition_src, action_src, enabled, version, history, created_at, updated_at`

func scanPolicy(row scannable) (policy.Policy, error) {
	var p policy.Policy
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Trigger, &p.Condition, &p.Action,
		&p.Enabled, &p.Version, &p.History, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// List returns all policies ordered by creation time.
func (s *PolicyStore) List(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM policies ORDER BY created_at ASC`, policyColumns))
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// Get returns the policy with the given id.
func (s *PolicyStore) Get(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM policies WHERE id = $1`, policyColumns), id)

	p, err := scanPolicy(row)
	if err != nil {
		return nil, notFoundWrap(err, "get policy %s", id)
	}
	return &p, nil
}

// Create persists a new policy. Enabled defaults to true when the
// request leaves it unset.
func (s *PolicyStore) Create(ctx context.Context, req policy.CreateRequest) (*policy.Policy, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO policies (name, description, trigger_name, condition_src, action_src, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING %s`, policyColumns),
		req.Name, req.Description, req.Trigger, req.Condition, req.Action, enabled)

	p, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}
	return &p, nil
}

// Update applies req under optimistic locking. The version check in Go
// gives a precise error message; the version guard on the UPDATE closes
// the race against a concurrent writer.
func (s *PolicyStore) Update(ctx context.Context, id string, req policy.UpdateRequest) (*policy.Policy, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != p.Version {
		return nil, fmt.Errorf("update policy %s: version %d does not match stored %d: %w",
			id, req.Version, p.Version, domain.ErrConflict)
	}
	req.Apply(p)

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE policies
		 SET name = $2, description = $3, trigger_name = $4, condition_src = $5, action_src = $6, enabled = $7,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $8
		 RETURNING %s`, policyColumns),
		id, p.Name, p.Description, p.Trigger, p.Condition, p.Action, p.Enabled, req.Version)

	updated, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update policy %s: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}
	return &updated, nil
}

// Delete removes the policy.
func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete policy %s", id)
}

// SetEnabled toggles a policy without bumping its version.
func (s *PolicyStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	return execExpectOne(tag, err, "set policy %s enabled", id)
}

// AppendHistory appends an execution record id to the policy's history.
func (s *PolicyStore) AppendHistory(ctx context.Context, id string, recordID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET history = array_append(history, $2) WHERE id = $1`, id, recordID)
	return execExpectOne(tag, err, "append history to policy %s", id)
}
