//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthLiveness(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status        string            `json:"status"`
		Components    map[string]string `json:"components"`
		WSConnections int               `json:"ws_connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status 'ok', got %q", body.Status)
	}
	if body.Components["postgres"] != "up" {
		t.Fatalf("expected postgres 'up', got %q", body.Components["postgres"])
	}

	// The harness runs without NATS; unconfigured backends must not be
	// reported at all, as opposed to being reported down.
	if v, ok := body.Components["nats"]; ok {
		t.Fatalf("expected no nats component without a queue, got %q", v)
	}
	if body.WSConnections != 0 {
		t.Fatalf("expected 0 ws connections, got %d", body.WSConnections)
	}
}

func TestAPIVersion(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/api/v1/")
	if err != nil {
		t.Fatalf("GET /api/v1/: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Version == "" {
		t.Fatal("expected non-empty version")
	}
}
