package resilience

import (
	"context"
	"sync"
	"time"
)

// Machine-readable rejection reasons carried on Decision.Reason.
const (
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonCostTooLarge  = "cost_exceeds_per_request_ceiling"
)

// QuotaConfig tunes one limiter. As with breakers, every subsystem
// constructs its own limiter with its own numbers.
type QuotaConfig struct {
	Window        time.Duration // observation window
	MaxPerWindow  int           // ceiling on summed cost per window
	MaxPerRequest int           // absolute ceiling for a single request's cost, 0 = MaxPerWindow
}

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// QuotaSnapshot is a point-in-time view of one subject for stats.
type QuotaSnapshot struct {
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	Violations  int64     `json:"lifetime_violations"`
}

type quotaState struct {
	count       int
	windowStart time.Time
	violations  int64
	touched     time.Time
}

// Limiter maintains a fixed observation window per subject and rejects
// when the summed cost would exceed the ceiling. The count tracks
// attempts, not successes: an allowed check increments immediately and
// stays counted even if the execution that follows fails. Failure
// accounting is the breaker's job, not the quota's.
type Limiter struct {
	mu       sync.Mutex
	cfg      QuotaConfig
	subjects map[string]*quotaState
	now      func() time.Time // for testing
}

// NewLimiter creates a limiter with the given window and ceilings.
func NewLimiter(cfg QuotaConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = 60
	}
	if cfg.MaxPerRequest <= 0 {
		cfg.MaxPerRequest = cfg.MaxPerWindow
	}
	return &Limiter{
		cfg:      cfg,
		subjects: make(map[string]*quotaState),
		now:      time.Now,
	}
}

// Check performs an atomic check-and-increment for the subject. The
// window resets lazily once it has fully elapsed. Rejections bump the
// subject's lifetime violation counter and do not consume quota.
func (l *Limiter) Check(subject string, cost int) Decision {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s, ok := l.subjects[subject]
	if !ok {
		s = &quotaState{windowStart: now}
		l.subjects[subject] = s
	}
	s.touched = now

	if now.Sub(s.windowStart) > l.cfg.Window {
		s.count = 0
		s.windowStart = now
	}

	if cost > l.cfg.MaxPerRequest {
		s.violations++
		return Decision{
			Allowed:   false,
			Remaining: l.remaining(s),
			Reason:    ReasonCostTooLarge,
		}
	}

	if s.count+cost > l.cfg.MaxPerWindow {
		s.violations++
		return Decision{
			Allowed:   false,
			Remaining: l.remaining(s),
			Reason:    ReasonQuotaExceeded,
		}
	}

	s.count += cost
	return Decision{Allowed: true, Remaining: l.remaining(s)}
}

// Snapshot returns the subject's current quota view without consuming
// anything. Unknown subjects report a full window.
func (l *Limiter) Snapshot(subject string) QuotaSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.subjects[subject]
	if !ok {
		return QuotaSnapshot{Remaining: l.cfg.MaxPerWindow}
	}
	used := s.count
	if l.now().Sub(s.windowStart) > l.cfg.Window {
		used = 0
	}
	return QuotaSnapshot{
		Used:        used,
		Remaining:   l.cfg.MaxPerWindow - used,
		WindowStart: s.windowStart,
		Violations:  s.violations,
	}
}

// Len returns the number of tracked subjects (for metrics and testing).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subjects)
}

// StartCleanup spawns a goroutine that removes idle subjects every
// interval. Returns a cancel function that stops the goroutine.
func (l *Limiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (l *Limiter) cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	for subject, s := range l.subjects {
		if s.touched.Before(cutoff) {
			delete(l.subjects, subject)
		}
	}
}

// remaining must be called with l.mu held.
func (l *Limiter) remaining(s *quotaState) int {
	r := l.cfg.MaxPerWindow - s.count
	if r < 0 {
		return 0
	}
	return r
}
