package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/RuleForge/internal/resilience"
)

// SubjectStats merges execution counters with the live quota and
// breaker state for one subject. An empty subject aggregates across
// all policies; the guard fields are then omitted since they are kept
// per subject.
type SubjectStats struct {
	Subject         string           `json:"subject,omitempty"`
	Executions      int              `json:"executions"`
	Succeeded       int              `json:"succeeded"`
	Failures        int              `json:"failures"`
	StatusCounts    map[string]int   `json:"status_counts,omitempty"`
	AvgElapsedMS    int64            `json:"avg_elapsed_ms"`
	CircuitState    resilience.State `json:"circuit_state,omitempty"`
	BreakerFailures int              `json:"breaker_failures,omitempty"`
	LastFailure     *time.Time       `json:"last_failure,omitempty"`
	QuotaUsed       int              `json:"quota_used,omitempty"`
	QuotaRemaining  int              `json:"quota_remaining,omitempty"`
	QuotaViolations int64            `json:"quota_violations,omitempty"`
}

// Stats reports operational visibility for a subject (policy id), or
// global execution counters when subject is empty.
func (s *DispatchService) Stats(ctx context.Context, subject string) (*SubjectStats, error) {
	sum, err := s.records.Stats(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}

	stats := &SubjectStats{
		Subject:      subject,
		Executions:   sum.Total,
		Succeeded:    sum.Succeeded,
		Failures:     sum.Failures,
		StatusCounts: sum.StatusCounts,
		AvgElapsedMS: sum.AvgElapsedMS,
	}
	if subject == "" {
		return stats, nil
	}

	breaker := s.breakers.Snapshot(subject)
	stats.CircuitState = breaker.State
	stats.BreakerFailures = breaker.Failures
	if !breaker.LastFailure.IsZero() {
		last := breaker.LastFailure
		stats.LastFailure = &last
	}

	quota := s.limiter.Snapshot(subject)
	stats.QuotaUsed = quota.Used
	stats.QuotaRemaining = quota.Remaining
	stats.QuotaViolations = quota.Violations
	return stats, nil
}
