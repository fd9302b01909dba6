// Package dedup implements the short-horizon ledger that suppresses
// re-execution of the same subject against the same event content.
// Keys are (subject id, content hash) pairs; the hash is computed over
// a canonical serialization of the triggering event so retried
// deliveries of the same logical event collapse to one execution.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Ledger is the dedup surface the dispatch pipeline and webhook
// ingestion consult. IsDuplicate is check-and-record in one atomic
// step: the first caller for a pair records it and proceeds, any
// caller within the suppression window after that is told to stop.
// Implementations must keep that step linearizable per pair.
type Ledger interface {
	// IsDuplicate reports whether the pair was recorded within the
	// suppression window. When it was not, the pair is recorded as part
	// of the same atomic step and false is returned.
	IsDuplicate(ctx context.Context, subject, hash string) (bool, error)

	// Record stamps the pair unconditionally, refreshing its timestamp
	// and thereby extending suppression.
	Record(ctx context.Context, subject, hash string) error
}

type key struct {
	subject string
	hash    string
}

// Memory is the in-process Ledger. Entries older than the suppression
// window stop suppressing immediately; they linger until the retention
// horizon so sweeps, not reads, bound memory.
type Memory struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	entries   map[key]time.Time
	now       func() time.Time // for testing
}

// NewMemory creates an in-memory ledger. retention is clamped to at
// least the window; both fall back to defaults when unset (60s window,
// 5m retention).
func NewMemory(window, retention time.Duration) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	if retention < window {
		retention = window
	}
	return &Memory{
		window:    window,
		retention: retention,
		entries:   make(map[key]time.Time),
		now:       time.Now,
	}
}

// IsDuplicate implements Ledger.
func (m *Memory) IsDuplicate(_ context.Context, subject, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{subject, hash}
	now := m.now()
	if at, ok := m.entries[k]; ok && now.Sub(at) <= m.window {
		return true, nil
	}
	m.entries[k] = now
	return false, nil
}

// Record implements Ledger.
func (m *Memory) Record(_ context.Context, subject, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key{subject, hash}] = m.now()
	return nil
}

// Len returns the number of retained entries (for metrics and testing).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartSweep spawns a goroutine that purges entries older than the
// retention horizon every interval. Returns a cancel function that
// stops the goroutine.
func (m *Memory) StartSweep(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
	return cancel
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.retention)
	for k, at := range m.entries {
		if at.Before(cutoff) {
			delete(m.entries, k)
		}
	}
}
