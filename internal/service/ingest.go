package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/RuleForge/internal/dedup"
	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/execution"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/domain/webhook"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
)

// IngestService turns verified webhook deliveries and queue messages
// into dispatched trigger events. It keeps its own dedup ledger with a
// wider window than the dispatch pipeline's: providers redeliver
// webhooks for minutes, while per-policy suppression works in seconds.
type IngestService struct {
	dispatch *DispatchService
	sources  *webhook.Registry
	ledger   dedup.Ledger
	queue    messagequeue.Queue
}

// NewIngestService creates an IngestService. A nil ledger gets an
// in-memory one with a 5 minute window.
func NewIngestService(dispatch *DispatchService, sources *webhook.Registry, ledger dedup.Ledger) *IngestService {
	if sources == nil {
		sources = webhook.NewRegistry()
	}
	if ledger == nil {
		ledger = dedup.NewMemory(5*time.Minute, 15*time.Minute)
	}
	return &IngestService{
		dispatch: dispatch,
		sources:  sources,
		ledger:   ledger,
	}
}

// SetQueue wires the message queue for trigger subscription.
func (s *IngestService) SetQueue(q messagequeue.Queue) { s.queue = q }

// Source returns the configured webhook source by name.
func (s *IngestService) Source(name string) (webhook.Source, bool) {
	return s.sources.Lookup(name)
}

// Sources returns the configured source names.
func (s *IngestService) Sources() []string { return s.sources.Names() }

// IngestResult reports what happened to one delivery.
type IngestResult struct {
	EventID    string             `json:"event_id"`
	Trigger    string             `json:"trigger"`
	Suppressed bool               `json:"suppressed"`
	Records    []execution.Record `json:"records,omitempty"`
}

// HandleDelivery translates a webhook delivery into a trigger event
// and dispatches it. Signature verification already happened in the
// transport layer. Redeliveries inside the ingest window are
// suppressed before any policy work happens.
func (s *IngestService) HandleDelivery(ctx context.Context, d webhook.Delivery) (*IngestResult, error) {
	src, ok := s.sources.Lookup(d.Source)
	if !ok {
		return nil, fmt.Errorf("%w: webhook source %q", domain.ErrNotFound, d.Source)
	}

	ev := d.Event(src)

	dup, err := s.ledger.IsDuplicate(ctx, "webhook:"+src.Name, d.Hash())
	if err != nil {
		// A ledger outage must not drop deliveries: log and process.
		slog.Error("ingest dedup check failed", "source", src.Name, "error", err)
	} else if dup {
		slog.Info("webhook redelivery suppressed",
			"source", src.Name, "trigger", ev.Name, "delivery_id", d.DeliveryID)
		return &IngestResult{EventID: ev.ID, Trigger: ev.Name, Suppressed: true}, nil
	}

	slog.Info("webhook delivery accepted",
		"source", src.Name, "trigger", ev.Name, "event_id", ev.ID)

	records, err := s.dispatch.DispatchEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	return &IngestResult{EventID: ev.ID, Trigger: ev.Name, Records: records}, nil
}

// StartTriggerSubscriber consumes trigger events published on the
// queue (triggers.events.>) and dispatches them. Queue deliveries are
// deduplicated by event id within the ingest window, so JetStream
// redeliveries after a slow consumer do not re-run policies.
// Returns a cancel function for the subscription.
func (s *IngestService) StartTriggerSubscriber(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectTriggerEvents+".>", s.handleTriggerMessage)
}

func (s *IngestService) handleTriggerMessage(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("malformed trigger message", "subject", subject, "error", err)
		return err
	}

	var payload messagequeue.TriggerEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("decode trigger message", "subject", subject, "error", err)
		return err
	}

	ev := trigger.Event{
		ID:         payload.EventID,
		Name:       payload.Name,
		Source:     payload.Source,
		Payload:    payload.Payload,
		OccurredAt: payload.OccurredAt,
	}
	if ev.ID == "" {
		ev = trigger.New(payload.Name, payload.Payload)
		ev.Source = payload.Source
	}

	dup, err := s.ledger.IsDuplicate(ctx, "queue:"+subject, ev.ID)
	if err != nil {
		slog.Error("queue dedup check failed", "subject", subject, "error", err)
	} else if dup {
		slog.Debug("queue redelivery suppressed", "subject", subject, "event_id", ev.ID)
		return nil
	}

	if _, err := s.dispatch.DispatchEvent(ctx, ev); err != nil {
		slog.Error("queue trigger dispatch failed",
			"subject", subject, "event_id", ev.ID, "error", err)
		return err
	}
	return nil
}
