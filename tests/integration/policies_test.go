//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestPolicyCRUDLifecycle(t *testing.T) {
	// Clean before this test
	cleanDB(testPool)

	// 1. List policies — should be empty
	resp, err := http.Get(testServer.URL + "/api/v1/policies")
	if err != nil {
		t.Fatalf("list policies: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}

	var policies []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&policies); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(policies) != 0 {
		t.Fatalf("expected 0 policies, got %d", len(policies))
	}

	// 2. Create a policy
	createBody, _ := json.Marshal(map[string]any{
		"name":        "escalate-build-failures",
		"description": "integration test policy",
		"trigger":     "build.failed",
		"condition":   "event.payload.status == 'failed'",
		"action":      "let t = createTask('Investigate: ' + event.payload.job, {priority: 'high'}); t.id",
	})

	resp2, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp2.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	policyID, ok := created["id"].(string)
	if !ok || policyID == "" {
		t.Fatal("expected non-empty policy ID")
	}
	if created["name"] != "escalate-build-failures" {
		t.Fatalf("expected name 'escalate-build-failures', got %v", created["name"])
	}
	if created["enabled"] != true {
		t.Fatalf("expected enabled by default, got %v", created["enabled"])
	}
	if created["version"] != float64(1) {
		t.Fatalf("expected version 1, got %v", created["version"])
	}

	// 3. Duplicate name — should conflict
	resp3, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatalf("create duplicate: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()

	if resp3.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", resp3.StatusCode)
	}

	// 4. Get the policy by ID
	resp4, err := http.Get(testServer.URL + "/api/v1/policies/" + policyID)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	defer func() { _ = resp4.Body.Close() }()

	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp4.StatusCode)
	}

	var fetched map[string]any
	if err := json.NewDecoder(resp4.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode fetched: %v", err)
	}
	if fetched["id"] != policyID {
		t.Fatalf("expected ID %q, got %v", policyID, fetched["id"])
	}

	// 5. Update under optimistic locking
	updateBody, _ := json.Marshal(map[string]any{
		"description": "now escalates to on-call",
		"version":     1,
	})
	req, _ := http.NewRequest(http.MethodPut, testServer.URL+"/api/v1/policies/"+policyID, bytes.NewReader(updateBody))
	req.Header.Set("Content-Type", "application/json")
	resp5, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("update policy: %v", err)
	}
	defer func() { _ = resp5.Body.Close() }()

	if resp5.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp5.StatusCode)
	}

	var updated map[string]any
	_ = json.NewDecoder(resp5.Body).Decode(&updated)
	if updated["version"] != float64(2) {
		t.Fatalf("expected version 2 after update, got %v", updated["version"])
	}

	// 6. Replaying the stale version — should conflict
	req2, _ := http.NewRequest(http.MethodPut, testServer.URL+"/api/v1/policies/"+policyID, bytes.NewReader(updateBody))
	req2.Header.Set("Content-Type", "application/json")
	resp6, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	defer func() { _ = resp6.Body.Close() }()

	if resp6.StatusCode != http.StatusConflict {
		t.Fatalf("stale update: expected 409, got %d", resp6.StatusCode)
	}

	// 7. Delete the policy
	req3, _ := http.NewRequest(http.MethodDelete, testServer.URL+"/api/v1/policies/"+policyID, http.NoBody)
	resp7, err := http.DefaultClient.Do(req3)
	if err != nil {
		t.Fatalf("delete policy: %v", err)
	}
	defer func() { _ = resp7.Body.Close() }()

	if resp7.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp7.StatusCode)
	}

	// 8. Get deleted policy — should be 404
	resp8, err := http.Get(testServer.URL + "/api/v1/policies/" + policyID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	defer func() { _ = resp8.Body.Close() }()

	if resp8.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", resp8.StatusCode)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	// Missing trigger should return 400
	body, _ := json.Marshal(map[string]any{
		"name":   "no-trigger",
		"action": "log('x')",
	})

	resp, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create without trigger: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// A blocked snippet should be rejected at write time
	body2, _ := json.Marshal(map[string]any{
		"name":    "sneaky",
		"trigger": "build.failed",
		"action":  "eval('2+2')",
	})

	resp2, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(body2))
	if err != nil {
		t.Fatalf("create with blocked snippet: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("blocked snippet: expected 400, got %d", resp2.StatusCode)
	}
}

func TestGetNonexistentPolicy(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/api/v1/policies/00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("get nonexistent: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDispatchPersistence(t *testing.T) {
	cleanDB(testPool)

	// Register a policy whose action creates a task
	polBody, _ := json.Marshal(map[string]any{
		"name":      "dispatch-persistence",
		"trigger":   "build.failed",
		"condition": "event.payload.status == 'failed'",
		"action":    "let t = createTask('Investigate: ' + event.payload.job, {priority: 'high'}); t.id",
	})
	resp, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(polBody))
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var pol map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&pol)
	policyID := pol["id"].(string)

	// Dispatch an event the condition matches
	evBody, _ := json.Marshal(map[string]any{
		"trigger": "build.failed",
		"payload": map[string]any{"status": "failed", "job": "unit"},
	})
	resp2, err := http.Post(testServer.URL+"/api/v1/dispatch", "application/json", bytes.NewReader(evBody))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("dispatch: expected 200, got %d", resp2.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["status"] != "succeeded" {
		t.Fatalf("expected status succeeded, got %v (error: %v)", records[0]["status"], records[0]["error"])
	}
	if records[0]["condition_met"] != true {
		t.Fatal("expected condition_met true")
	}
	recordID := records[0]["id"].(string)

	// The record is durable
	resp3, err := http.Get(testServer.URL + "/api/v1/executions/" + recordID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()

	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("get record: expected 200, got %d", resp3.StatusCode)
	}

	// It shows up in the policy's execution page
	resp4, err := http.Get(testServer.URL + "/api/v1/policies/" + policyID + "/executions")
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	defer func() { _ = resp4.Body.Close() }()

	var page struct {
		Records []map[string]any `json:"records"`
		Total   int              `json:"total"`
	}
	if err := json.NewDecoder(resp4.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected page total 1, got %d", page.Total)
	}

	// The action's task landed in the store, stamped with the policy
	resp5, err := http.Get(testServer.URL + "/api/v1/tasks")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	defer func() { _ = resp5.Body.Close() }()

	var tasks []map[string]any
	_ = json.NewDecoder(resp5.Body).Decode(&tasks)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0]["title"] != "Investigate: unit" {
		t.Fatalf("expected task title 'Investigate: unit', got %v", tasks[0]["title"])
	}
	if tasks[0]["policy_id"] != policyID {
		t.Fatalf("expected task policy_id %q, got %v", policyID, tasks[0]["policy_id"])
	}

	// Full success appended the record to policy history
	resp6, err := http.Get(testServer.URL + "/api/v1/policies/" + policyID)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	defer func() { _ = resp6.Body.Close() }()

	var fetched struct {
		History []string `json:"history"`
	}
	_ = json.NewDecoder(resp6.Body).Decode(&fetched)
	if len(fetched.History) != 1 || fetched.History[0] != recordID {
		t.Fatalf("expected history [%s], got %v", recordID, fetched.History)
	}

	// A non-matching event yields condition_not_met and no new task
	evBody2, _ := json.Marshal(map[string]any{
		"trigger": "build.failed",
		"payload": map[string]any{"status": "passed", "job": "unit"},
	})
	resp7, err := http.Post(testServer.URL+"/api/v1/dispatch", "application/json", bytes.NewReader(evBody2))
	if err != nil {
		t.Fatalf("dispatch non-matching: %v", err)
	}
	defer func() { _ = resp7.Body.Close() }()

	var records2 []map[string]any
	_ = json.NewDecoder(resp7.Body).Decode(&records2)
	if len(records2) != 1 || records2[0]["status"] != "condition_not_met" {
		t.Fatalf("expected condition_not_met, got %v", records2)
	}

	// Stats aggregate both outcomes
	resp8, err := http.Get(testServer.URL + "/api/v1/policies/" + policyID + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer func() { _ = resp8.Body.Close() }()

	var stats struct {
		Executions int `json:"executions"`
		Succeeded  int `json:"succeeded"`
	}
	if err := json.NewDecoder(resp8.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Executions != 2 {
		t.Fatalf("expected 2 executions, got %d", stats.Executions)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("expected 1 succeeded, got %d", stats.Succeeded)
	}
}

func TestWebhookDeliveryIngestion(t *testing.T) {
	cleanDB(testPool)

	// Policy bound to the trigger the "ci" source produces for push events
	polBody, _ := json.Marshal(map[string]any{
		"name":    "ci-push-audit",
		"trigger": "ci.push",
		"action":  "log('push from ' + event.payload.repo)",
	})
	resp, err := http.Post(testServer.URL+"/api/v1/policies", "application/json", bytes.NewReader(polBody))
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create policy: expected 201, got %d", resp.StatusCode)
	}

	deliver := func(deliveryID, token string) (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodPost, testServer.URL+"/api/v1/webhooks/ci",
			bytes.NewReader([]byte(`{"repo":"core","ref":"main"}`)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Ci-Token", token)
		req.Header.Set("X-Ci-Event", "push")
		req.Header.Set("X-Ci-Delivery", deliveryID)
		return http.DefaultClient.Do(req)
	}

	// Valid delivery runs the pipeline
	resp2, err := deliver("delivery-1", ciWebhookSecret)
	if err != nil {
		t.Fatalf("deliver webhook: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("delivery: expected 200, got %d", resp2.StatusCode)
	}

	var result struct {
		Trigger    string           `json:"trigger"`
		Suppressed bool             `json:"suppressed"`
		Records    []map[string]any `json:"records"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Trigger != "ci.push" {
		t.Fatalf("expected trigger ci.push, got %q", result.Trigger)
	}
	if result.Suppressed {
		t.Fatal("first delivery should not be suppressed")
	}
	if len(result.Records) != 1 || result.Records[0]["status"] != "succeeded" {
		t.Fatalf("expected 1 succeeded record, got %v", result.Records)
	}

	// Redelivery of the same delivery id is suppressed, no new records
	resp3, err := deliver("delivery-1", ciWebhookSecret)
	if err != nil {
		t.Fatalf("redeliver webhook: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()

	var redelivered struct {
		Suppressed bool             `json:"suppressed"`
		Records    []map[string]any `json:"records"`
	}
	_ = json.NewDecoder(resp3.Body).Decode(&redelivered)
	if !redelivered.Suppressed {
		t.Fatal("expected redelivery to be suppressed")
	}
	if len(redelivered.Records) != 0 {
		t.Fatalf("expected no records on redelivery, got %d", len(redelivered.Records))
	}

	// Wrong token is rejected before ingestion
	resp4, err := deliver("delivery-2", "wrong-token")
	if err != nil {
		t.Fatalf("deliver with bad token: %v", err)
	}
	defer func() { _ = resp4.Body.Close() }()

	if resp4.StatusCode != http.StatusForbidden {
		t.Fatalf("bad token: expected 403, got %d", resp4.StatusCode)
	}
}
