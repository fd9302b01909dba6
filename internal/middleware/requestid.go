// Package middleware provides the HTTP middleware RuleForge mounts in
// front of its API and webhook surfaces.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/Strob0t/RuleForge/internal/logger"
)

const headerRequestID = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied IDs. Forwarders may propagate
// their own; anything oversized is replaced instead of being reflected
// into the response header and every log record for the request.
const maxRequestIDLen = 64

// RequestID takes X-Request-ID from the request header or generates a
// fresh one, stores it in the context for the logger, and echoes it on
// the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = generateID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateID returns a 16-byte random hex string (32 chars).
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
