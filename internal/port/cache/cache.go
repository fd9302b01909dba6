// Package cache defines the key-value caching port. RuleForge layers
// it: ristretto in-process as L1, a JetStream KV bucket as L2, and the
// tiered adapter composing both for validation verdicts.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value cache. Get reports a miss with
// ok=false and a nil error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
