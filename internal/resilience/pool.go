package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many trigger events are dispatched concurrently,
// using a weighted semaphore. Policies within one dispatch cycle are
// always processed sequentially; the pool only caps cross-event
// parallelism so an event storm cannot exhaust the process.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent
// dispatch cycles.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. Blocks if all
// slots are busy. Returns ctx.Err() if the context is cancelled while
// waiting for a slot. A nil pool executes fn directly without
// concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
