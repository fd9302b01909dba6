// Package tiered composes the in-process cache with the shared
// JetStream KV bucket into the two-level validation cache. Reads try
// the local level first and backfill it on a shared hit; writes land in
// the shared level before the local one, so no replica ever serves a
// verdict newer than what the bucket holds.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/RuleForge/internal/port/cache"
)

// Cache layers a local cache over a shared one.
type Cache struct {
	local       cache.Cache
	shared      cache.Cache
	backfillTTL time.Duration
}

// New builds a tiered cache. backfillTTL bounds how long entries copied
// down from the shared level live locally.
func New(local, shared cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, backfillTTL: backfillTTL}
}

// Get tries the local level, then the shared one. A local read failure
// is not fatal; the shared level still gets a chance to answer. Shared
// hits are copied into the local level on the way out.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, localErr := c.local.Get(ctx, key)
	if localErr == nil && found {
		return val, true, nil
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.local.Set(ctx, key, val, c.backfillTTL)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes the shared level first, then the local one. If the shared
// write fails the local level is left untouched, so a replica cannot
// run ahead of the bucket.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, ttl)
}

// Delete removes the key from both levels. Both deletes are attempted
// even if the first fails; a stale shared entry would otherwise keep
// resurfacing through backfill on every replica.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.local.Delete(ctx, key),
		c.shared.Delete(ctx, key),
	)
}
