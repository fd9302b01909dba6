package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Strob0t/RuleForge/internal/port/cache"
)

// Cached memoizes validation results by source hash. Validation is a
// pure function of source text and the process-fixed config, so cached
// results never go stale within one process lifetime. A nil cache
// makes every call a passthrough, which keeps tests and minimal
// deployments free of cache wiring.
type Cached struct {
	inner *Validator
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps v with a result cache. c may be nil.
func NewCached(v *Validator, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: v, cache: c, ttl: ttl}
}

// Validate returns the memoized result for code, computing and storing
// it on a miss. Cache errors are ignored; the validator itself is the
// source of truth.
func (c *Cached) Validate(ctx context.Context, code string) Result {
	if c.cache == nil {
		return c.inner.Validate(code)
	}

	key := cacheKey(code)
	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var res Result
		if json.Unmarshal(data, &res) == nil {
			return res
		}
	}

	res := c.inner.Validate(code)
	if data, err := json.Marshal(res); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return res
}

func cacheKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return "validate:" + hex.EncodeToString(sum[:])
}
