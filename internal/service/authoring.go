package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/RuleForge/internal/capability"
	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/validator"
)

// TestReport is the outcome of a policy test run. It carries the full
// validation picture (including warnings, which dispatch ignores) so
// authors see everything at once.
type TestReport struct {
	Matched             bool             `json:"matched"`
	ConditionValidation validator.Result `json:"condition_validation"`
	ActionValidation    validator.Result `json:"action_validation"`
	ConditionMet        bool             `json:"condition_met"`
	ConditionError      string           `json:"condition_error,omitempty"`
	ActionValue         any              `json:"action_value,omitempty"`
	ActionError         string           `json:"action_error,omitempty"`
	TimedOut            bool             `json:"timed_out,omitempty"`
	DryRun              bool             `json:"dry_run"`
	Calls               []capability.Call `json:"calls,omitempty"`
	ElapsedMS           int64            `json:"elapsed_ms"`
}

// TestPolicy runs the authoring pipeline for a policy, saved or not,
// against a sample event: validate, wire capabilities, evaluate the
// condition, and execute the action (stubbed when dryRun). Quota,
// breaker and dedup gates are bypassed and nothing is persisted or
// appended to history.
func (s *DispatchService) TestPolicy(ctx context.Context, p *policy.Policy, sample trigger.Event, dryRun bool) (*TestReport, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: policy is required", domain.ErrInvalid)
	}
	if sample.Name == "" {
		sample = trigger.New(p.Trigger, sample.Payload)
	}
	if sample.ID == "" {
		sample.ID = trigger.New(sample.Name, nil).ID
	}
	if sample.OccurredAt.IsZero() {
		sample.OccurredAt = time.Now().UTC()
	}

	start := time.Now()
	report := &TestReport{
		Matched: p.MatchesTrigger(sample.Name),
		DryRun:  dryRun,
	}
	defer func() { report.ElapsedMS = time.Since(start).Milliseconds() }()

	report.ConditionValidation = s.checker.Validate(ctx, p.Condition)
	report.ActionValidation = s.checker.Validate(ctx, p.Action)
	if !report.ConditionValidation.Valid || !report.ActionValidation.Valid {
		return report, nil
	}

	env, err := buildEnv(s.tasks, p, sample, s.cfg.Capabilities)
	if err != nil {
		report.ConditionError = err.Error()
		return report, nil
	}

	cres := s.engine.EvalCondition(ctx, p.Condition, env, s.cfg.ConditionTimeout)
	report.ConditionMet = cres.Met
	if cres.Err != nil {
		report.ConditionError = cres.Err.Error()
		return report, nil
	}
	if !cres.Met {
		return report, nil
	}

	if dryRun {
		ares := s.engine.DryRunAction(ctx, p.Action, env, s.cfg.ActionTimeout)
		report.ActionValue = ares.Value
		report.TimedOut = ares.TimedOut
		report.Calls = ares.Calls
		if ares.Err != nil {
			report.ActionError = ares.Err.Error()
		}
		return report, nil
	}

	ares := s.engine.ExecAction(ctx, p.Action, env, s.cfg.ActionTimeout)
	report.ActionValue = ares.Value
	report.TimedOut = ares.TimedOut
	if ares.Err != nil {
		report.ActionError = ares.Err.Error()
	}
	return report, nil
}
