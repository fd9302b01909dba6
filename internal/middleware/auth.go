package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// publicPaths are exempt from API key authentication. Webhook
// endpoints are also exempt: they carry per-source signatures instead.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// APIKeyAuth returns middleware that validates the X-API-Key header
// (or an Authorization: Bearer token) against a bcrypt hash produced
// by `ruleforge admin hash-key`. When enabled is false all requests
// pass through. WebSocket upgrades authenticate via the ?key= query
// parameter since browsers cannot set headers on WebSocket requests.
//
// A successful bcrypt comparison is memoized by SHA-256 digest so the
// bcrypt cost is paid once per key, not per request.
func APIKeyAuth(keyHash string, enabled bool) func(http.Handler) http.Handler {
	checker := &keyChecker{hash: []byte(keyHash)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			if publicPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/api/v1/webhooks/") {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					key = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if key == "" && r.URL.Path == "/ws" {
				key = r.URL.Query().Get("key")
			}

			if key == "" {
				unauthorized(w, "api key required")
				return
			}
			if !checker.valid(key) {
				unauthorized(w, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// keyChecker memoizes the digest of keys that passed bcrypt so hot
// paths skip the expensive comparison.
type keyChecker struct {
	hash []byte

	mu    sync.RWMutex
	known [sha256.Size]byte
	seen  bool
}

func (c *keyChecker) valid(key string) bool {
	digest := sha256.Sum256([]byte(key))

	c.mu.RLock()
	hit := c.seen && subtle.ConstantTimeCompare(digest[:], c.known[:]) == 1
	c.mu.RUnlock()
	if hit {
		return true
	}

	if bcrypt.CompareHashAndPassword(c.hash, []byte(key)) != nil {
		return false
	}

	c.mu.Lock()
	c.known = digest
	c.seen = true
	c.mu.Unlock()

	return true
}
