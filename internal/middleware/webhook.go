package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxWebhookBody caps how much of a delivery the verifier will read.
// Trigger payloads are small; anything bigger is noise or abuse.
const maxWebhookBody = 5 << 20

// WebhookHMAC returns middleware that validates HMAC-SHA256 delivery
// signatures for sources configured with the hmac-sha256 scheme. The
// header parameter names the HTTP header carrying the signature, e.g.
// "X-Hub-Signature-256" for GitHub-style senders.
func WebhookHMAC(secret, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, `{"error":"webhook secret not configured"}`, http.StatusServiceUnavailable)
				return
			}

			sig := r.Header.Get(header)
			if sig == "" {
				http.Error(w, "missing webhook signature", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					http.Error(w, "delivery body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyHMAC(body, sig, secret) {
				http.Error(w, "invalid webhook signature", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifyHMAC checks an HMAC-SHA256 signature. Accepts raw hex and the
// "sha256=<hex>" prefixed form.
func verifyHMAC(payload []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(sigBytes, expected)
}

// WebhookToken returns middleware that validates a shared-token header
// for sources configured with the token scheme, e.g. "X-Gitlab-Token".
func WebhookToken(token, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error":"webhook token not configured"}`, http.StatusServiceUnavailable)
				return
			}

			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, fmt.Sprintf("invalid %s token", header), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
