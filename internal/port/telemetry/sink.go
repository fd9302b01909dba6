// Package telemetry defines the port for structured gate-transition
// events. Sinks are audit surfaces, never control flow: a sink error
// is logged and ignored by callers.
package telemetry

import "context"

// Statuses attached to emitted events.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Event is one structured telemetry event.
type Event struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Sink receives telemetry events.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Multi fans one event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
