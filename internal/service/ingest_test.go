package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/execution"
	"github.com/Strob0t/RuleForge/internal/domain/webhook"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
)

func newIngestFixture(t *testing.T) (*IngestService, *dispatchFixture) {
	t.Helper()
	f := newDispatchFixture(t, testDispatchConfig())
	sources := webhook.NewRegistry(
		webhook.Source{Name: "github", TriggerPrefix: "github", Scheme: webhook.SchemeHMAC},
		webhook.Source{Name: "gitlab", TriggerPrefix: "gitlab", Scheme: webhook.SchemeToken},
	)
	return NewIngestService(f.svc, sources, nil), f
}

func TestHandleDeliveryDispatches(t *testing.T) {
	ing, f := newIngestFixture(t)
	f.addPolicy(t, "on-push", "github.push", "", `log('push', event.payload.ref)`)

	res, err := ing.HandleDelivery(context.Background(), webhook.Delivery{
		Source:     "github",
		Kind:       "push",
		DeliveryID: "d-1",
		Body:       []byte(`{"ref":"refs/heads/main"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Trigger != "github.push" {
		t.Errorf("trigger = %q, want github.push", res.Trigger)
	}
	if res.Suppressed {
		t.Error("first delivery must not be suppressed")
	}
	if len(res.Records) != 1 || res.Records[0].Status != execution.StatusSucceeded {
		t.Fatalf("expected one succeeded record, got %+v", res.Records)
	}
	if res.EventID == "" {
		t.Error("expected event id on result")
	}
}

func TestHandleDeliveryUnknownSource(t *testing.T) {
	ing, _ := newIngestFixture(t)

	_, err := ing.HandleDelivery(context.Background(), webhook.Delivery{
		Source: "bitbucket",
		Kind:   "push",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleDeliveryRedeliverySuppressed(t *testing.T) {
	ing, f := newIngestFixture(t)
	f.addPolicy(t, "on-push", "github.push", "", `createTask('deploy')`)

	d := webhook.Delivery{
		Source:     "github",
		Kind:       "push",
		DeliveryID: "d-42",
		Body:       []byte(`{"ref":"refs/heads/main"}`),
	}

	first, err := ing.HandleDelivery(context.Background(), d)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if first.Suppressed {
		t.Fatal("first delivery must execute")
	}

	second, err := ing.HandleDelivery(context.Background(), d)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !second.Suppressed {
		t.Fatal("redelivery with the same delivery id must be suppressed")
	}
	if len(second.Records) != 0 {
		t.Fatalf("suppressed delivery must not produce records, got %d", len(second.Records))
	}
	if len(f.tasks.tasks) != 1 {
		t.Fatalf("action must run exactly once, got %d tasks", len(f.tasks.tasks))
	}
}

func TestHandleDeliveryDistinctBodies(t *testing.T) {
	// No delivery id: dedup falls back to the body digest.
	ing, f := newIngestFixture(t)
	f.addPolicy(t, "on-push", "github.push", "", `log('x')`)

	for i, body := range []string{`{"n":1}`, `{"n":2}`} {
		res, err := ing.HandleDelivery(context.Background(), webhook.Delivery{
			Source: "github",
			Kind:   "push",
			Body:   []byte(body),
		})
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Suppressed {
			t.Fatalf("delivery %d: distinct bodies must not be suppressed", i)
		}
	}
}

func TestHandleTriggerMessage(t *testing.T) {
	ing, f := newIngestFixture(t)
	f.addPolicy(t, "on-deploy", "deploy.finished", "", `log('done')`)

	payload := messagequeue.TriggerEventPayload{
		EventID:    "ev-q1",
		Name:       "deploy.finished",
		Source:     "ci",
		Payload:    map[string]any{"status": "green"},
		OccurredAt: time.Now().UTC(),
	}
	data, _ := json.Marshal(payload)

	subject := messagequeue.SubjectTriggerEvents + ".ci"
	if err := ing.handleTriggerMessage(context.Background(), subject, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.records.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.records.records))
	}
	if f.records.records[0].EventID != "ev-q1" {
		t.Errorf("event id = %q, want ev-q1", f.records.records[0].EventID)
	}

	// JetStream redelivery of the same event id is suppressed.
	if err := ing.handleTriggerMessage(context.Background(), subject, data); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(f.records.records) != 1 {
		t.Fatalf("redelivery must not re-run policies, got %d records", len(f.records.records))
	}
}

func TestHandleTriggerMessageMalformed(t *testing.T) {
	ing, f := newIngestFixture(t)

	subject := messagequeue.SubjectTriggerEvents + ".ci"
	if err := ing.handleTriggerMessage(context.Background(), subject, []byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(f.records.records) != 0 {
		t.Fatal("malformed message must not dispatch")
	}
}
