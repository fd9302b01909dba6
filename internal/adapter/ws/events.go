package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	// EventExecutionRecorded carries a full execution.Record each time
	// the dispatch pipeline finishes a policy.
	EventExecutionRecorded = "execution.recorded"
	EventPolicyChanged     = "policy.changed"
	EventBreakerTripped    = "breaker.tripped"
)

// PolicyChangedEvent is broadcast when a policy is created, updated,
// deleted, enabled or disabled.
type PolicyChangedEvent struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Change   string `json:"change"`
}

// BreakerTrippedEvent is broadcast when a policy's circuit opens.
type BreakerTrippedEvent struct {
	PolicyID string `json:"policy_id"`
	Failures int    `json:"failures"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
