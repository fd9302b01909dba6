package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/RuleForge/internal/domain/webhook"
	"github.com/Strob0t/RuleForge/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
//
// Webhook delivery routes sit outside the API-key guard; each source
// is protected by its own signature or token middleware instead.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		for _, name := range h.Ingest.Sources() {
			src, ok := h.Ingest.Source(name)
			if !ok {
				continue
			}
			verify := middleware.WebhookHMAC(src.Secret, src.SignatureHeader)
			if src.Scheme == webhook.SchemeToken {
				verify = middleware.WebhookToken(src.Secret, src.SignatureHeader)
			}
			r.With(verify).Post("/"+src.Name, h.HandleWebhook(src))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Policies
		r.Get("/policies", h.ListPolicies)
		r.Post("/policies", h.CreatePolicy)
		r.Post("/policies/test", h.TestDraftPolicy)
		r.Get("/policies/{id}", h.GetPolicy)
		r.Put("/policies/{id}", h.UpdatePolicy)
		r.Delete("/policies/{id}", h.DeletePolicy)
		r.Post("/policies/{id}/toggle", h.TogglePolicy)
		r.Post("/policies/{id}/test", h.TestPolicy)
		r.Get("/policies/{id}/executions", h.ListPolicyExecutions)
		r.Get("/policies/{id}/stats", h.PolicyStats)

		// Dispatch
		r.Post("/dispatch", h.DispatchTrigger)

		// Execution records
		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)

		// Stats
		r.Get("/stats", h.GetStats)

		// Tasks
		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Put("/tasks/{id}", h.UpdateTask)

		// Webhook source visibility (deliveries are mounted above, outside auth)
		r.Get("/webhooks", h.ListWebhookSources)
	})
}
