package config

import "sync"

// Holder provides concurrency-safe access to a Config that can be
// reloaded at runtime (SIGHUP). Reload re-runs the full hierarchy
// against the original file path; a failed reload keeps the previous
// config in place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded config.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the current config snapshot.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-reads the config from disk and environment. On validation
// failure the held config is left unchanged and the error is returned.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	return nil
}
