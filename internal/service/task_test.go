package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/task"
)

func TestTaskCreateFillsDefaults(t *testing.T) {
	store := &mockTaskStore{}
	svc := NewTaskService(store)

	got, err := svc.Create(context.Background(), task.CreateRequest{
		Title: "  Investigate flaky build  ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Investigate flaky build" {
		t.Errorf("expected trimmed title, got %q", got.Title)
	}
	if got.Priority != task.PriorityNormal {
		t.Errorf("expected default priority normal, got %q", got.Priority)
	}
	if got.Status != task.StatusOpen {
		t.Errorf("expected status open, got %q", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
}

func TestTaskCreateRejectsInvalid(t *testing.T) {
	store := &mockTaskStore{}
	svc := NewTaskService(store)
	ctx := context.Background()

	cases := []struct {
		name string
		req  task.CreateRequest
	}{
		{"empty title", task.CreateRequest{Title: "   "}},
		{"unknown priority", task.CreateRequest{Title: "x", Priority: "asap"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			if !errors.Is(err, domain.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
	if len(store.tasks) != 0 {
		t.Error("invalid requests must not reach the store")
	}
}

func TestTaskUpdateStatus(t *testing.T) {
	store := &mockTaskStore{}
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, task.CreateRequest{Title: "triage"})
	if err != nil {
		t.Fatal(err)
	}

	done := task.StatusDone
	got, err := svc.Update(ctx, created.ID, task.UpdateRequest{Status: &done})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusDone {
		t.Errorf("expected status done, got %q", got.Status)
	}
	if got.Version != created.Version+1 {
		t.Errorf("expected version bump, got %d", got.Version)
	}

	bogus := task.Status("archived")
	_, err = svc.Update(ctx, created.ID, task.UpdateRequest{Status: &bogus})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown status, got %v", err)
	}

	title := "renamed"
	_, err = svc.Update(ctx, "missing", task.UpdateRequest{Title: &title})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskListLimit(t *testing.T) {
	store := &mockTaskStore{}
	svc := NewTaskService(store)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.Create(ctx, task.CreateRequest{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}

	all, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
}
