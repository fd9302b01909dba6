package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/RuleForge/internal/middleware"
)

func testKeyHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(hash)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_Disabled_PassesThrough(t *testing.T) {
	handler := middleware.APIKeyAuth("", false)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKeyAuth_Enabled_NoKey_Returns401(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuth_WrongKey_Returns401(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", http.NoBody)
	req.Header.Set("X-API-Key", "not-the-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuth_ValidKey_Passes(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	// Twice: second request exercises the memoized fast path.
	for i := range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", http.NoBody)
		req.Header.Set("X-API-Key", "secret-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestAPIKeyAuth_BearerForm_Passes(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKeyAuth_PublicPaths_NoAuthRequired(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	for _, path := range []string{"/health", "/health/ready", "/api/v1/webhooks/github"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestAPIKeyAuth_WebSocketQueryParam(t *testing.T) {
	hash := testKeyHash(t, "secret-key")
	handler := middleware.APIKeyAuth(hash, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/ws?key=secret-key", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// Missing param still rejected.
	req = httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
