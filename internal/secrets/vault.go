// Package secrets holds the webhook signing secrets and API keys in a
// reloadable in-memory vault. SIGHUP triggers a reload alongside the
// config, so rotating a forwarder's secret never needs a restart.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Loader fetches the full secret set from wherever it lives; EnvLoader
// is the default source.
type Loader func() (map[string]string, error)

// Vault is a read-mostly map of secret names to values. Reads take a
// shared lock; Reload swaps the whole map under the write lock.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault runs the loader once and fails if the initial load does,
// so the server never starts with webhook verification half-configured.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload re-runs the loader and swaps in the result. A failing loader
// leaves the previous values in place; a rotation that half-succeeds
// must not wipe secrets that verification is actively using.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Redacted returns a masked form of the secret for key, safe to log.
// Missing keys yield an empty string.
func (v *Vault) Redacted(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	if !ok {
		return ""
	}
	return mask(val)
}

// RedactString replaces every secret value occurring in s with its
// masked form. Values shorter than 4 characters are left alone; they
// collide with ordinary text too easily to scrub safely.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, val := range v.values {
		if len(val) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, val, mask(val))
	}
	return s
}

// Keys returns the secret names currently held, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mask(val string) string {
	if len(val) <= 4 {
		return "****"
	}
	return val[:2] + "****"
}
