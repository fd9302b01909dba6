package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/RuleForge/internal/adapter/ws"
	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/interp"
	"github.com/Strob0t/RuleForge/internal/port/broadcast"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
	"github.com/Strob0t/RuleForge/internal/port/policystore"
	"github.com/Strob0t/RuleForge/internal/validator"
)

// PolicyService handles policy registration and lifecycle. Snippets
// are checked at write time, both statically and syntactically, so a
// policy that can never pass dispatch validation is rejected before it
// is stored.
type PolicyService struct {
	store   policystore.Store
	checker *validator.Cached
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
}

// NewPolicyService creates a PolicyService.
func NewPolicyService(store policystore.Store, checker *validator.Cached) *PolicyService {
	return &PolicyService{store: store, checker: checker}
}

// SetQueue wires the message queue for change notifications.
func (s *PolicyService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetBroadcaster wires the real-time hub for change notifications.
func (s *PolicyService) SetBroadcaster(b broadcast.Broadcaster) { s.hub = b }

// List returns all policies in registration order.
func (s *PolicyService) List(ctx context.Context) ([]policy.Policy, error) {
	return s.store.List(ctx)
}

// Get returns a policy by ID.
func (s *PolicyService) Get(ctx context.Context, id string) (*policy.Policy, error) {
	return s.store.Get(ctx, id)
}

// Create validates, checks and persists a new policy.
func (s *PolicyService) Create(ctx context.Context, req policy.CreateRequest) (*policy.Policy, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	if err := s.checkSnippets(ctx, req.Condition, req.Action); err != nil {
		return nil, err
	}

	p, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.notifyChange(ctx, p, "created")
	slog.Info("policy created", "policy_id", p.ID, "name", p.Name, "trigger", p.Trigger)
	return p, nil
}

// Update applies a partial update under optimistic locking.
func (s *PolicyService) Update(ctx context.Context, id string, req policy.UpdateRequest) (*policy.Policy, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	cond, act := "", ""
	if req.Condition != nil {
		cond = *req.Condition
	}
	if req.Action != nil {
		act = *req.Action
	}
	if err := s.checkSnippets(ctx, cond, act); err != nil {
		return nil, err
	}

	p, err := s.store.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.notifyChange(ctx, p, "updated")
	return p, nil
}

// Delete removes a policy.
func (s *PolicyService) Delete(ctx context.Context, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyChange(ctx, p, "deleted")
	return nil
}

// Toggle enables or disables a policy without bumping its version.
func (s *PolicyService) Toggle(ctx context.Context, id string, enabled bool) (*policy.Policy, error) {
	if err := s.store.SetEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	change := "disabled"
	if enabled {
		change = "enabled"
	}
	s.notifyChange(ctx, p, change)
	return p, nil
}

// Seed loads policy definitions from a directory of YAML files and
// registers the ones whose name is not taken yet. Used at startup so a
// fresh deployment comes up with its baseline automations.
func (s *PolicyService) Seed(ctx context.Context, dir string) (int, error) {
	reqs, err := policy.LoadFromDirectory(dir)
	if err != nil {
		return 0, fmt.Errorf("load seed policies: %w", err)
	}
	if len(reqs) == 0 {
		return 0, nil
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list policies: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, p := range existing {
		taken[p.Name] = true
	}

	created := 0
	for _, req := range reqs {
		if taken[req.Name] {
			continue
		}
		if _, err := s.Create(ctx, req); err != nil {
			slog.Error("seed policy failed", "name", req.Name, "error", err)
			continue
		}
		created++
	}
	return created, nil
}

// checkSnippets rejects code the dispatch validator or parser would
// refuse. Empty snippets pass; the condition is optional and an empty
// action is caught by request validation where it matters.
func (s *PolicyService) checkSnippets(ctx context.Context, condition, action string) error {
	if res := s.checker.Validate(ctx, condition); !res.Valid {
		return fmt.Errorf("%w: condition %s", domain.ErrInvalid, res.Violations[0].Message)
	}
	if res := s.checker.Validate(ctx, action); !res.Valid {
		return fmt.Errorf("%w: action %s", domain.ErrInvalid, res.Violations[0].Message)
	}
	if err := interp.CheckCondition(condition); err != nil {
		return fmt.Errorf("%w: condition %v", domain.ErrInvalid, err)
	}
	if err := interp.CheckAction(action); err != nil {
		return fmt.Errorf("%w: action %v", domain.ErrInvalid, err)
	}
	return nil
}

func (s *PolicyService) notifyChange(ctx context.Context, p *policy.Policy, change string) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventPolicyChanged, ws.PolicyChangedEvent{
			PolicyID: p.ID,
			Name:     p.Name,
			Change:   change,
		})
	}
	if s.queue == nil || !s.queue.IsConnected() {
		return
	}
	data, err := json.Marshal(messagequeue.PolicyChangedPayload{
		PolicyID: p.ID,
		Name:     p.Name,
		Change:   change,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectPolicyChanged, data); err != nil {
		slog.Error("publish policy change", "policy_id", p.ID, "change", change, "error", err)
	}
}
