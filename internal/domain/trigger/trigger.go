// Package trigger defines the transient events that drive policy
// dispatch. Events are not persisted by the sandbox; they exist for the
// duration of one dispatch cycle.
package trigger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a named trigger with an opaque structured payload.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New builds an Event with a fresh id and the current time.
func New(name string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Fingerprint returns a stable hash of the event's name and payload.
// encoding/json marshals map keys in sorted order, so two deliveries of
// the same logical event (a retried webhook, a redelivered message)
// produce the same fingerprint regardless of field ordering at the
// producer. The id and timestamp are deliberately excluded.
func (e Event) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(e.Name))
	h.Write([]byte{0})
	if e.Payload != nil {
		// Marshal of map[string]any only fails on unserializable
		// values, which cannot arrive through a JSON boundary.
		data, err := json.Marshal(e.Payload)
		if err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
