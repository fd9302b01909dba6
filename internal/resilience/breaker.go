// Package resilience provides the per-subject throttling guards the
// dispatch pipeline consults before running any snippet: a fixed-window
// quota limiter and a consecutive-failure circuit breaker. All state is
// keyed by subject id (policy id, tenant id, or an IP+endpoint
// composite) and updated under one mutex per group so check-and-record
// stays linearizable per subject.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a circuit is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of one subject's circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerConfig tunes one breaker group. Parameters are deliberately
// per-group: the dispatch pipeline, the HTTP surface and webhook
// ingestion each construct their own group with their own numbers.
type BreakerConfig struct {
	Threshold int           // consecutive failures before opening
	Cooldown  time.Duration // open duration before a half-open probe
}

// BreakerSnapshot is a point-in-time view of one circuit for stats.
type BreakerSnapshot struct {
	State       State     `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	LastFailure time.Time `json:"last_failure"`
}

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
	touched     time.Time
}

// BreakerGroup tracks one circuit per subject. The zero value is not
// usable; construct with NewBreakerGroup.
type BreakerGroup struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	circuits map[string]*circuit
	now      func() time.Time // for testing
}

// NewBreakerGroup creates a group whose circuits open after
// cfg.Threshold consecutive failures and probe again after
// cfg.Cooldown.
func NewBreakerGroup(cfg BreakerConfig) *BreakerGroup {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &BreakerGroup{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// Allow reports whether the subject may proceed. An open circuit whose
// cooldown has elapsed transitions to half-open here, with its failure
// counter cleared, and grants the probe.
func (g *BreakerGroup) Allow(subject string) (bool, State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.circuit(subject)
	switch c.state {
	case StateClosed:
		return true, StateClosed
	case StateOpen:
		if g.now().Sub(c.lastFailure) > g.cfg.Cooldown {
			c.state = StateHalfOpen
			c.failures = 0
			return true, StateHalfOpen
		}
		return false, StateOpen
	case StateHalfOpen:
		return true, StateHalfOpen
	}
	return false, c.state
}

// Record feeds an execution outcome into the subject's circuit.
// A success closes the circuit and resets the counter; a failure
// increments it, opening the circuit at the threshold, and a half-open
// probe failure reopens immediately.
func (g *BreakerGroup) Record(subject string, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.circuit(subject)
	if success {
		c.state = StateClosed
		c.failures = 0
		return
	}

	c.failures++
	c.lastFailure = g.now()
	if c.state == StateHalfOpen || c.failures >= g.cfg.Threshold {
		c.state = StateOpen
	}
}

// Snapshot returns the subject's current circuit view without mutating
// it. Unknown subjects report a closed circuit.
func (g *BreakerGroup) Snapshot(subject string) BreakerSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.circuits[subject]
	if !ok {
		return BreakerSnapshot{State: StateClosed}
	}
	return BreakerSnapshot{
		State:       c.state,
		Failures:    c.failures,
		LastFailure: c.lastFailure,
	}
}

// Len returns the number of tracked circuits (for metrics and testing).
func (g *BreakerGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.circuits)
}

// StartCleanup spawns a goroutine that removes closed, idle circuits
// every interval. Returns a cancel function that stops the goroutine.
func (g *BreakerGroup) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (g *BreakerGroup) cleanup(maxIdle time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-maxIdle)
	for subject, c := range g.circuits {
		// Open and half-open circuits are live protection state and
		// are never evicted.
		if c.state == StateClosed && c.touched.Before(cutoff) {
			delete(g.circuits, subject)
		}
	}
}

// circuit returns the subject's circuit, creating it closed. Callers
// must hold g.mu.
func (g *BreakerGroup) circuit(subject string) *circuit {
	c, ok := g.circuits[subject]
	if !ok {
		c = &circuit{state: StateClosed}
		g.circuits[subject] = c
	}
	c.touched = g.now()
	return c
}
