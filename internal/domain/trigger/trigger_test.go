package trigger

import "testing"

func TestNewEvent(t *testing.T) {
	e := New("task.created", map[string]any{"priority": 90})
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.Name != "task.created" {
		t.Errorf("expected name task.created, got %q", e.Name)
	}
	if e.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be set")
	}
}

func TestFingerprintStableAcrossFieldOrder(t *testing.T) {
	a := Event{Name: "task.created", Payload: map[string]any{"priority": 90, "title": "x"}}
	b := Event{Name: "task.created", Payload: map[string]any{"title": "x", "priority": 90}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must not depend on payload field order")
	}
}

func TestFingerprintIgnoresIDAndTime(t *testing.T) {
	a := New("task.created", map[string]any{"priority": 90})
	b := New("task.created", map[string]any{"priority": 90})
	if a.ID == b.ID {
		t.Fatal("expected distinct ids")
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must ignore id and timestamp")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := Event{Name: "task.created", Payload: map[string]any{"priority": 90}}
	b := Event{Name: "task.created", Payload: map[string]any{"priority": 50}}
	c := Event{Name: "task.updated", Payload: map[string]any{"priority": 90}}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different payloads must fingerprint differently")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different trigger names must fingerprint differently")
	}
}

func TestFingerprintNilPayload(t *testing.T) {
	a := Event{Name: "tick"}
	b := Event{Name: "tick"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("nil payloads must fingerprint identically")
	}
	if a.Fingerprint() == "" {
		t.Error("fingerprint must not be empty")
	}
}
