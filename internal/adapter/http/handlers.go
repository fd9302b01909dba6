package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/RuleForge/internal/adapter/ws"
	"github.com/Strob0t/RuleForge/internal/domain/execution"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/task"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/domain/webhook"
	"github.com/Strob0t/RuleForge/internal/port/executionstore"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
	"github.com/Strob0t/RuleForge/internal/service"
)

// Execution listings default to one page of recent records; larger
// requests are clamped rather than rejected.
const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Policies   *service.PolicyService
	Dispatch   *service.DispatchService
	Tasks      *service.TaskService
	Ingest     *service.IngestService
	Executions executionstore.Store
	Hub        *ws.Hub
	Queue      messagequeue.Queue
	DB         *pgxpool.Pool
	BodyLimit  int64
}

// --- Policy Endpoints ---

// ListPolicies handles GET /api/v1/policies
func (h *Handlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	handleList(h.Policies.List)(w, r)
}

// GetPolicy handles GET /api/v1/policies/{id}
func (h *Handlers) GetPolicy(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Policies.Get, "policy not found")(w, r)
}

// CreatePolicy handles POST /api/v1/policies
func (h *Handlers) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.BodyLimit, func(ctx context.Context, req *policy.CreateRequest) (*policy.Policy, error) {
		return h.Policies.Create(ctx, *req)
	})(w, r)
}

// UpdatePolicy handles PUT /api/v1/policies/{id}
func (h *Handlers) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.BodyLimit, h.Policies.Update, "policy not found")(w, r)
}

// DeletePolicy handles DELETE /api/v1/policies/{id}
func (h *Handlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Policies.Delete, "policy not found")(w, r)
}

// TogglePolicy handles POST /api/v1/policies/{id}/toggle
func (h *Handlers) TogglePolicy(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	req, ok := readJSON[struct {
		Enabled *bool `json:"enabled"`
	}](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	p, err := h.Policies.Toggle(r.Context(), id, *req.Enabled)
	if err != nil {
		writeDomainError(w, err, "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// testRequest is the body for policy test runs: a sample event plus
// the dry-run switch. An empty trigger falls back to the policy's own.
type testRequest struct {
	Trigger string         `json:"trigger,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	DryRun  bool           `json:"dry_run,omitempty"`
}

// TestPolicy handles POST /api/v1/policies/{id}/test
func (h *Handlers) TestPolicy(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	req, ok := readJSON[testRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	p, err := h.Policies.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "policy not found")
		return
	}

	report, err := h.Dispatch.TestPolicy(r.Context(), p, trigger.Event{Name: req.Trigger, Payload: req.Payload}, req.DryRun)
	if err != nil {
		writeDomainError(w, err, "policy test failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// TestDraftPolicy handles POST /api/v1/policies/test
// It runs an unsaved policy definition against a sample event without
// persisting anything.
func (h *Handlers) TestDraftPolicy(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Name      string         `json:"name,omitempty"`
		Trigger   string         `json:"trigger"`
		Condition string         `json:"condition,omitempty"`
		Action    string         `json:"action"`
		Payload   map[string]any `json:"payload,omitempty"`
		DryRun    bool           `json:"dry_run,omitempty"`
	}](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.Trigger, "trigger") {
		return
	}
	if !requireField(w, req.Action, "action") {
		return
	}

	name := req.Name
	if name == "" {
		name = "draft"
	}
	p := &policy.Policy{
		Name:      name,
		Trigger:   req.Trigger,
		Condition: req.Condition,
		Action:    req.Action,
		Enabled:   true,
	}

	report, err := h.Dispatch.TestPolicy(r.Context(), p, trigger.Event{Name: req.Trigger, Payload: req.Payload}, req.DryRun)
	if err != nil {
		writeDomainError(w, err, "policy test failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Dispatch Endpoints ---

// DispatchTrigger handles POST /api/v1/dispatch
func (h *Handlers) DispatchTrigger(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Trigger string         `json:"trigger"`
		Payload map[string]any `json:"payload,omitempty"`
	}](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.Trigger, "trigger") {
		return
	}

	records, err := h.Dispatch.Dispatch(r.Context(), req.Trigger, req.Payload)
	if err != nil {
		writeDomainError(w, err, "dispatch failed")
		return
	}
	if records == nil {
		records = []execution.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Execution Record Endpoints ---

// ListExecutions handles GET /api/v1/executions
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	h.listExecutions(w, r, r.URL.Query().Get("policy_id"))
}

// ListPolicyExecutions handles GET /api/v1/policies/{id}/executions
func (h *Handlers) ListPolicyExecutions(w http.ResponseWriter, r *http.Request) {
	h.listExecutions(w, r, urlParam(r, "id"))
}

func (h *Handlers) listExecutions(w http.ResponseWriter, r *http.Request, policyID string) {
	q := r.URL.Query()
	filter := executionstore.Filter{PolicyID: policyID}

	if statuses := q.Get("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, execution.Status(s))
			}
		}
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an RFC3339 timestamp")
			return
		}
		filter.After = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		filter.Before = &t
	}

	limit := defaultPageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		if n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	page, err := h.Executions.ListRecords(r.Context(), filter, q.Get("cursor"), limit)
	if err != nil {
		writeDomainError(w, err, "failed to list executions")
		return
	}
	if page.Records == nil {
		page.Records = []execution.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GetExecution handles GET /api/v1/executions/{id}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Executions.Get, "execution record not found")(w, r)
}

// --- Stats Endpoints ---

// GetStats handles GET /api/v1/stats?policy_id=<id>
// An empty policy_id aggregates across all policies.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Dispatch.Stats(r.Context(), r.URL.Query().Get("policy_id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PolicyStats handles GET /api/v1/policies/{id}/stats
func (h *Handlers) PolicyStats(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.Policies.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "policy not found")
		return
	}

	stats, err := h.Dispatch.Stats(r.Context(), id)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Task Endpoints ---

// ListTasks handles GET /api/v1/tasks?limit=<n>
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	tasks, err := h.Tasks.List(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /api/v1/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Tasks.Get, "task not found")(w, r)
}

// CreateTask handles POST /api/v1/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.BodyLimit, func(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
		return h.Tasks.Create(ctx, *req)
	})(w, r)
}

// UpdateTask handles PUT /api/v1/tasks/{id}
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.BodyLimit, h.Tasks.Update, "task not found")(w, r)
}

// --- Webhook Endpoints ---

// ListWebhookSources handles GET /api/v1/webhooks
func (h *Handlers) ListWebhookSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"sources": h.Ingest.Sources(),
	})
}

// HandleWebhook returns the delivery handler for one configured
// source. Signature verification happens in middleware before this
// runs; the handler extracts the provider headers and hands the raw
// body to ingestion.
func (h *Handlers) HandleWebhook(src webhook.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.BodyLimit))
		if err != nil {
			if err.Error() == "http: request body too large" {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			} else {
				writeError(w, http.StatusBadRequest, "failed to read request body")
			}
			return
		}

		d := webhook.Delivery{
			Source:     src.Name,
			Kind:       r.Header.Get(src.EventHeader),
			DeliveryID: r.Header.Get(src.DeliveryHeader),
			Body:       body,
		}

		result, err := h.Ingest.HandleDelivery(r.Context(), d)
		if err != nil {
			writeDomainError(w, err, "webhook source not found")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// --- Infrastructure Endpoints ---

type healthResponse struct {
	Status        string            `json:"status"`
	Components    map[string]string `json:"components,omitempty"`
	WSConnections int               `json:"ws_connections"`
}

// Health handles GET /health. Optional dependencies degrade the
// component map without failing the probe; only a dead database turns
// the status to unavailable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := healthResponse{Status: "ok", Components: map[string]string{}}

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			resp.Components["postgres"] = "down"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Components["postgres"] = "up"
		}
	}
	if h.Queue != nil {
		if h.Queue.IsConnected() {
			resp.Components["nats"] = "connected"
		} else {
			resp.Components["nats"] = "disconnected"
		}
	}
	if h.Hub != nil {
		resp.WSConnections = h.Hub.ConnectionCount()
	}

	writeJSON(w, status, resp)
}

// ServeWS handles GET /ws, upgrading the connection onto the event hub.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event hub not configured")
		return
	}
	h.Hub.HandleWS(w, r)
}
