package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/RuleForge/internal/adapter/ws"
	"github.com/Strob0t/RuleForge/internal/capability"
	"github.com/Strob0t/RuleForge/internal/dedup"
	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/execution"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/interp"
	"github.com/Strob0t/RuleForge/internal/port/broadcast"
	"github.com/Strob0t/RuleForge/internal/port/executionstore"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
	"github.com/Strob0t/RuleForge/internal/port/policystore"
	"github.com/Strob0t/RuleForge/internal/port/taskstore"
	"github.com/Strob0t/RuleForge/internal/port/telemetry"
	"github.com/Strob0t/RuleForge/internal/resilience"
	"github.com/Strob0t/RuleForge/internal/validator"
)

// DispatchConfig tunes the dispatch pipeline and the guards it owns.
type DispatchConfig struct {
	ConditionTimeout time.Duration
	ActionTimeout    time.Duration
	Capabilities     []string
	Quota            resilience.QuotaConfig
	Breaker          resilience.BreakerConfig
	DedupWindow      time.Duration
	DedupRetention   time.Duration
	MaxConcurrent    int
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if len(c.Capabilities) == 0 {
		c.Capabilities = DefaultCapabilities
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	return c
}

// DispatchService runs the policy pipeline for trigger events:
// match, validate, breaker, quota, dedup, capability wiring, condition,
// action, record. Each policy is isolated; one policy's failure never
// prevents the remaining matches from being attempted.
type DispatchService struct {
	policies policystore.Store
	records  executionstore.Store
	tasks    taskstore.Store
	checker  *validator.Cached
	engine   *interp.Engine

	limiter  *resilience.Limiter
	breakers *resilience.BreakerGroup
	ledger   dedup.Ledger
	pool     *resilience.Pool

	queue messagequeue.Queue
	hub   broadcast.Broadcaster
	sink  telemetry.Sink

	cfg DispatchConfig
}

// NewDispatchService creates a DispatchService owning its quota
// limiter, breaker group, dedup ledger and concurrency pool.
func NewDispatchService(
	policies policystore.Store,
	records executionstore.Store,
	tasks taskstore.Store,
	checker *validator.Cached,
	engine *interp.Engine,
	cfg DispatchConfig,
) *DispatchService {
	cfg = cfg.withDefaults()
	return &DispatchService{
		policies: policies,
		records:  records,
		tasks:    tasks,
		checker:  checker,
		engine:   engine,
		limiter:  resilience.NewLimiter(cfg.Quota),
		breakers: resilience.NewBreakerGroup(cfg.Breaker),
		ledger:   dedup.NewMemory(cfg.DedupWindow, cfg.DedupRetention),
		pool:     resilience.NewPool(cfg.MaxConcurrent),
		sink:     telemetry.Nop{},
		cfg:      cfg,
	}
}

// SetQueue wires the outbound message queue for outcome publication.
func (s *DispatchService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetBroadcaster wires the real-time hub for outcome broadcast.
func (s *DispatchService) SetBroadcaster(b broadcast.Broadcaster) { s.hub = b }

// SetSink wires the telemetry sink for gate-transition events.
func (s *DispatchService) SetSink(sink telemetry.Sink) {
	if sink != nil {
		s.sink = sink
	}
}

// SetLedger replaces the in-memory dedup ledger, e.g. with the
// JetStream KV ledger when several instances share ingestion.
func (s *DispatchService) SetLedger(l dedup.Ledger) {
	if l != nil {
		s.ledger = l
	}
}

// StartMaintenance starts the background eviction loops for quota
// windows, breaker circuits and dedup entries. The returned function
// stops all of them.
func (s *DispatchService) StartMaintenance(interval, maxIdle time.Duration) func() {
	stops := []func(){
		s.limiter.StartCleanup(interval, maxIdle),
		s.breakers.StartCleanup(interval, maxIdle),
	}
	if mem, ok := s.ledger.(*dedup.Memory); ok {
		stops = append(stops, mem.StartSweep(interval))
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// Dispatch builds a fresh event for triggerName and runs the full
// pipeline over all enabled policies matching it. It returns one
// record per matched policy, in registration order.
func (s *DispatchService) Dispatch(ctx context.Context, triggerName string, payload map[string]any) ([]execution.Record, error) {
	return s.DispatchEvent(ctx, trigger.New(triggerName, payload))
}

// DispatchEvent runs the pipeline for an already-formed event, e.g.
// one delivered over the message queue with its id assigned upstream.
func (s *DispatchService) DispatchEvent(ctx context.Context, ev trigger.Event) ([]execution.Record, error) {
	if strings.TrimSpace(ev.Name) == "" {
		return nil, fmt.Errorf("%w: trigger name is required", domain.ErrInvalid)
	}

	var out []execution.Record
	err := s.pool.Run(ctx, func() error {
		all, err := s.policies.List(ctx)
		if err != nil {
			return fmt.Errorf("load policies: %w", err)
		}
		matched := matchingPolicies(all, ev.Name)
		out = make([]execution.Record, 0, len(matched))
		for i := range matched {
			rec := s.runPolicy(ctx, &matched[i], ev)
			s.persist(ctx, &rec)
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// matchingPolicies filters to enabled policies whose trigger matches
// name, in registration order.
func matchingPolicies(all []policy.Policy, name string) []policy.Policy {
	matched := make([]policy.Policy, 0, len(all))
	for _, p := range all {
		if p.Enabled && p.MatchesTrigger(name) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched
}

// runPolicy walks one policy through the gates and returns its record.
// A panic anywhere inside snippet handling is confined to this policy.
func (s *DispatchService) runPolicy(ctx context.Context, p *policy.Policy, ev trigger.Event) (rec execution.Record) {
	start := time.Now()
	rec = execution.Record{
		ID:          uuid.NewString(),
		PolicyID:    p.ID,
		PolicyName:  p.Name,
		TriggerName: ev.Name,
		EventID:     ev.ID,
		CreatedAt:   start.UTC(),
	}
	stage := execution.GateValidate
	defer func() {
		rec.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			rec.Status = execution.StatusFailedRuntime
			rec.Gate = stage
			rec.Error = fmt.Sprintf("panic: %v", r)
			slog.Error("policy dispatch panicked",
				"policy_id", p.ID, "gate", stage, "panic", r)
			s.recordFailure(ctx, p.ID)
		}
	}()

	attrs := func(extra ...any) map[string]any {
		m := map[string]any{"policy_id": p.ID, "trigger": ev.Name, "event_id": ev.ID}
		for i := 0; i+1 < len(extra); i += 2 {
			m[extra[i].(string)] = extra[i+1]
		}
		return m
	}

	condCheck := s.checker.Validate(ctx, p.Condition)
	actCheck := s.checker.Validate(ctx, p.Action)
	if !condCheck.Valid || !actCheck.Valid {
		rec.Status = execution.StatusRejectedValidation
		rec.Gate = execution.GateValidate
		rec.Error = validationSummary(condCheck, actCheck)
		s.emit(ctx, "dispatch.validate", telemetry.StatusSkipped, attrs("error", rec.Error))
		return rec
	}
	s.emit(ctx, "dispatch.validate", telemetry.StatusOK, attrs("risk", string(maxRisk(condCheck, actCheck))))

	stage = execution.GateBreaker
	if allowed, state := s.breakers.Allow(p.ID); !allowed {
		rec.Status = execution.StatusRejectedBreaker
		rec.Gate = execution.GateBreaker
		rec.Error = resilience.ErrCircuitOpen.Error()
		s.emit(ctx, "dispatch.breaker", telemetry.StatusSkipped, attrs("state", string(state)))
		return rec
	}
	s.emit(ctx, "dispatch.breaker", telemetry.StatusOK, attrs())

	stage = execution.GateQuota
	if d := s.limiter.Check(p.ID, 1); !d.Allowed {
		rec.Status = execution.StatusRejectedQuota
		rec.Gate = execution.GateQuota
		rec.Error = d.Reason
		s.emit(ctx, "dispatch.quota", telemetry.StatusSkipped, attrs("reason", d.Reason, "remaining", d.Remaining))
		return rec
	}
	s.emit(ctx, "dispatch.quota", telemetry.StatusOK, attrs())

	stage = execution.GateDedup
	dup, err := s.ledger.IsDuplicate(ctx, p.ID, ev.Fingerprint())
	if err != nil {
		// A ledger outage must not stall automation: log and process.
		slog.Error("dedup check failed", "policy_id", p.ID, "error", err)
		s.emit(ctx, "dispatch.dedup", telemetry.StatusError, attrs("error", err.Error()))
	} else if dup {
		rec.Status = execution.StatusSuppressedDuplicate
		rec.Gate = execution.GateDedup
		s.emit(ctx, "dispatch.dedup", telemetry.StatusSkipped, attrs())
		return rec
	} else {
		s.emit(ctx, "dispatch.dedup", telemetry.StatusOK, attrs())
	}

	stage = execution.GateCapability
	env, err := buildEnv(s.tasks, p, ev, s.cfg.Capabilities)
	if err != nil {
		rec.Status = execution.StatusFailedCapability
		rec.Gate = execution.GateCapability
		rec.Error = err.Error()
		s.emit(ctx, "dispatch.capability", telemetry.StatusError, attrs("error", rec.Error))
		s.recordFailure(ctx, p.ID)
		return rec
	}
	s.emit(ctx, "dispatch.capability", telemetry.StatusOK, attrs("capabilities", env.Names()))

	stage = execution.GateCondition
	cres := s.engine.EvalCondition(ctx, p.Condition, env, s.cfg.ConditionTimeout)
	if cres.Err != nil {
		classify(&rec, execution.GateCondition, cres.Err)
		s.emit(ctx, "dispatch.condition", telemetry.StatusError, attrs("error", rec.Error))
		s.recordFailure(ctx, p.ID)
		return rec
	}
	rec.ConditionMet = cres.Met
	if !cres.Met {
		rec.Status = execution.StatusConditionNotMet
		rec.Gate = execution.GateCondition
		s.emit(ctx, "dispatch.condition", telemetry.StatusSkipped, attrs("met", false))
		return rec
	}
	s.emit(ctx, "dispatch.condition", telemetry.StatusOK, attrs("met", true))

	stage = execution.GateAction
	ares := s.engine.ExecAction(ctx, p.Action, env, s.cfg.ActionTimeout)
	if ares.Err != nil {
		classify(&rec, execution.GateAction, ares.Err)
		s.emit(ctx, "dispatch.action", telemetry.StatusError, attrs("error", rec.Error, "timed_out", ares.TimedOut))
		s.recordFailure(ctx, p.ID)
		return rec
	}

	rec.Status = execution.StatusSucceeded
	if ares.Value != nil {
		if data, err := json.Marshal(ares.Value); err == nil {
			rec.Value = data
		}
	}
	s.breakers.Record(p.ID, true)
	s.emit(ctx, "dispatch.action", telemetry.StatusOK, attrs("elapsed_ms", ares.Elapsed.Milliseconds()))
	return rec
}

// classify maps a condition/action error onto the record's status.
func classify(rec *execution.Record, gate execution.Gate, err error) {
	rec.Gate = gate
	rec.Error = err.Error()
	var capErr *capability.Error
	switch {
	case errors.Is(err, interp.ErrTimeout):
		rec.Status = execution.StatusFailedTimeout
	case errors.As(err, &capErr):
		rec.Status = execution.StatusFailedCapability
	default:
		rec.Status = execution.StatusFailedRuntime
	}
}

// recordFailure counts a failure against the policy's circuit and
// publishes a trip notification when this failure opened it.
func (s *DispatchService) recordFailure(ctx context.Context, policyID string) {
	before := s.breakers.Snapshot(policyID).State
	s.breakers.Record(policyID, false)
	after := s.breakers.Snapshot(policyID)
	if before != resilience.StateOpen && after.State == resilience.StateOpen {
		slog.Warn("circuit opened", "subject", policyID, "failures", after.Failures)
		s.publish(ctx, messagequeue.SubjectBreakerTripped, messagequeue.BreakerTrippedPayload{
			Subject:  policyID,
			Failures: after.Failures,
		})
		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ws.EventBreakerTripped, ws.BreakerTrippedEvent{
				PolicyID: policyID,
				Failures: after.Failures,
			})
		}
	}
}

// persist appends the record, updates history for full successes, and
// fans the outcome out to the queue and the hub. Storage problems are
// logged, never propagated into the dispatch result.
func (s *DispatchService) persist(ctx context.Context, rec *execution.Record) {
	if err := s.records.Append(ctx, rec); err != nil {
		slog.Error("append execution record",
			"record_id", rec.ID, "policy_id", rec.PolicyID, "error", err)
	}
	if rec.Status.Success() && !rec.DryRun {
		if err := s.policies.AppendHistory(ctx, rec.PolicyID, rec.ID); err != nil {
			slog.Error("append policy history",
				"record_id", rec.ID, "policy_id", rec.PolicyID, "error", err)
		}
	}

	s.publish(ctx, messagequeue.SubjectOutcomeRecord, messagequeue.OutcomeRecordedPayload{
		RecordID:    rec.ID,
		PolicyID:    rec.PolicyID,
		PolicyName:  rec.PolicyName,
		TriggerName: rec.TriggerName,
		EventID:     rec.EventID,
		Status:      string(rec.Status),
		Gate:        string(rec.Gate),
		Error:       rec.Error,
		ElapsedMS:   rec.Elapsed.Milliseconds(),
		DryRun:      rec.DryRun,
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventExecutionRecorded, rec)
	}
	s.emit(ctx, "dispatch.record", telemetry.StatusOK, map[string]any{
		"record_id": rec.ID,
		"policy_id": rec.PolicyID,
		"status":    string(rec.Status),
	})
}

func (s *DispatchService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil || !s.queue.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish outcome", "subject", subject, "error", err)
	}
}

func (s *DispatchService) emit(ctx context.Context, name, status string, attrs map[string]any) {
	s.sink.Emit(ctx, telemetry.Event{Name: name, Status: status, Attrs: attrs})
}

func validationSummary(cond, act validator.Result) string {
	var parts []string
	if !cond.Valid && len(cond.Violations) > 0 {
		parts = append(parts, "condition: "+cond.Violations[0].Message)
	}
	if !act.Valid && len(act.Violations) > 0 {
		parts = append(parts, "action: "+act.Violations[0].Message)
	}
	if len(parts) == 0 {
		return "code rejected by static validation"
	}
	return strings.Join(parts, "; ")
}

func maxRisk(cond, act validator.Result) validator.Severity {
	return validator.MaxSeverity(cond.Risk, act.Risk)
}
