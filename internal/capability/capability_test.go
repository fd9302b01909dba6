package capability

import (
	"context"
	"errors"
	"testing"
)

func testBase() map[string]any {
	return map[string]any{
		"event": map[string]any{"priority": 90},
		"log": Func(func(_ context.Context, args []any) (any, error) {
			return nil, nil
		}),
		"createTask": Func(func(_ context.Context, args []any) (any, error) {
			return map[string]any{"id": "t-1"}, nil
		}),
		"secret": "hidden-from-snippets",
	}
}

func TestNewContextGrantsExactlyAllowed(t *testing.T) {
	cc, err := NewContext(testBase(), []string{"event", "log"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cc.Get("event"); err != nil {
		t.Errorf("allowed key must resolve: %v", err)
	}
	if _, err := cc.Get("secret"); err == nil {
		t.Error("un-allowlisted key must fail, not resolve")
	}

	names := cc.Names()
	if len(names) != 2 || names[0] != "event" || names[1] != "log" {
		t.Errorf("enumeration must yield exactly the allowed set, got %v", names)
	}
}

func TestNewContextUnknownCapability(t *testing.T) {
	_, err := NewContext(testBase(), []string{"event", "doesNotExist"})
	if err == nil {
		t.Fatal("expected error for capability missing from base")
	}
	var capErr *Error
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *capability.Error, got %T: %v", err, err)
	}
	if capErr.Name != "doesNotExist" {
		t.Errorf("expected error to name the missing capability, got %q", capErr.Name)
	}
}

func TestGetUnknownReturnsCapabilityError(t *testing.T) {
	cc, err := NewContext(testBase(), []string{"event"})
	if err != nil {
		t.Fatal(err)
	}
	v, err := cc.Get("log")
	if err == nil {
		t.Fatal("expected capability error")
	}
	if v != nil {
		t.Error("failed access must not return a value")
	}
	var capErr *Error
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *capability.Error, got %T", err)
	}
}

func TestNamesIsACopy(t *testing.T) {
	cc, err := NewContext(testBase(), []string{"event", "log"})
	if err != nil {
		t.Fatal(err)
	}
	names := cc.Names()
	names[0] = "tampered"
	if cc.Names()[0] != "event" {
		t.Error("mutating the returned slice must not affect the view")
	}
}

func TestBaseChangesDoNotLeakIn(t *testing.T) {
	base := testBase()
	cc, err := NewContext(base, []string{"event"})
	if err != nil {
		t.Fatal(err)
	}
	base["late"] = "added after construction"
	if cc.Has("late") {
		t.Error("keys added to base after construction must not appear")
	}
	if cc.Len() != 1 {
		t.Errorf("expected 1 capability, got %d", cc.Len())
	}
}

func TestWithoutFuncsStripsCallables(t *testing.T) {
	cc, err := NewContext(testBase(), []string{"event", "log", "createTask"})
	if err != nil {
		t.Fatal(err)
	}
	cond := cc.WithoutFuncs()

	if !cond.Has("event") {
		t.Error("plain values must survive WithoutFuncs")
	}
	if cond.Has("log") || cond.Has("createTask") {
		t.Error("function capabilities must be stripped for conditions")
	}
	var capErr *Error
	if _, err := cond.Get("createTask"); !errors.As(err, &capErr) {
		t.Errorf("expected capability error for stripped func, got %v", err)
	}
	// The original view is unchanged.
	if !cc.Has("createTask") {
		t.Error("deriving must not mutate the source view")
	}
}

func TestWithStubsRecordsAndReturnsSynthetic(t *testing.T) {
	cc, err := NewContext(testBase(), []string{"event", "createTask"})
	if err != nil {
		t.Fatal(err)
	}
	rec := &Recorder{}
	dry := cc.WithStubs(rec)

	v, err := dry.Get("createTask")
	if err != nil {
		t.Fatal(err)
	}
	fn, ok := v.(Func)
	if !ok {
		t.Fatalf("expected Func, got %T", v)
	}
	out, err := fn(context.Background(), []any{map[string]any{"title": "Escalate"}})
	if err != nil {
		t.Fatalf("stub must not fail: %v", err)
	}
	synthetic, ok := out.(map[string]any)
	if !ok || synthetic["would_execute"] != "createTask" {
		t.Errorf("expected synthetic would-execute value, got %v", out)
	}

	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Name != "createTask" {
		t.Fatalf("expected one recorded call to createTask, got %v", calls)
	}

	// Plain values pass through unchanged.
	ev, err := dry.Get("event")
	if err != nil {
		t.Fatal(err)
	}
	if _, isFunc := ev.(Func); isFunc {
		t.Error("plain values must not be stubbed")
	}
}
