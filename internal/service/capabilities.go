package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/RuleForge/internal/capability"
	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/task"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/port/taskstore"
)

// DefaultCapabilities is the sanctioned function surface for policy
// actions. Conditions see none of these; the engine strips functions
// before evaluating a condition.
var DefaultCapabilities = []string{"createTask", "updateTask", "log"}

// buildEnv assembles the capability context for one (policy, event)
// pair. The event view is always present; the effectful functions are
// restricted to the allowed set, and each is bound to the policy so
// task provenance survives into the store.
func buildEnv(tasks taskstore.Store, p *policy.Policy, ev trigger.Event, allowed []string) (*capability.Context, error) {
	base := map[string]any{
		"event":      eventView(ev),
		"createTask": createTaskFunc(tasks, p, ev),
		"updateTask": updateTaskFunc(tasks),
		"log":        logFunc(p),
	}
	names := append([]string{"event"}, allowed...)
	return capability.NewContext(base, names)
}

// eventView exposes the trigger event as plain interpreter values.
func eventView(ev trigger.Event) map[string]any {
	return map[string]any{
		"id":          ev.ID,
		"name":        ev.Name,
		"source":      ev.Source,
		"payload":     ev.Payload,
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339),
	}
}

// taskView exposes a stored task as plain interpreter values. Numbers
// become float64 so snippet comparisons behave.
func taskView(t *task.Task) map[string]any {
	labels := make([]any, 0, len(t.Labels))
	for _, l := range t.Labels {
		labels = append(labels, l)
	}
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"priority":    t.Priority,
		"labels":      labels,
		"assignee":    t.Assignee,
		"status":      string(t.Status),
		"version":     float64(t.Version),
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func createTaskFunc(tasks taskstore.Store, p *policy.Policy, ev trigger.Event) capability.Func {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("createTask expects a title and optional options, got %d arguments", len(args))
		}
		title, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("createTask title must be a string")
		}
		req := task.CreateRequest{Title: title, PolicyID: p.ID, EventID: ev.ID}
		if len(args) == 2 && args[1] != nil {
			opts, ok := args[1].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("createTask options must be an object")
			}
			if err := applyCreateOptions(&req, opts); err != nil {
				return nil, fmt.Errorf("createTask: %w", err)
			}
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("createTask: %w", err)
		}
		t, err := tasks.CreateTask(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("createTask: %w", err)
		}
		return taskView(t), nil
	}
}

func updateTaskFunc(tasks taskstore.Store) capability.Func {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("updateTask expects an id and an updates object, got %d arguments", len(args))
		}
		id, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("updateTask id must be a string")
		}
		updates, ok := args[1].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("updateTask updates must be an object")
		}
		req, err := updateRequestFromMap(updates)
		if err != nil {
			return nil, fmt.Errorf("updateTask: %w", err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("updateTask: %w", err)
		}
		t, err := tasks.UpdateTask(ctx, id, req)
		if err != nil {
			return nil, fmt.Errorf("updateTask: %w", err)
		}
		return taskView(t), nil
	}
}

// logFunc emits a structured log line attributed to the policy. The
// message is the space-joined arguments, mirroring console-style
// logging in authored snippets.
func logFunc(p *policy.Policy) capability.Func {
	return func(_ context.Context, args []any) (any, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, fmt.Sprintf("%v", a))
		}
		slog.Info("policy log",
			"policy_id", p.ID,
			"policy_name", p.Name,
			"message", strings.Join(parts, " "))
		return nil, nil
	}
}

// applyCreateOptions copies the recognized option keys onto req.
// Unknown keys are errors so typos surface during authoring instead of
// being silently dropped.
func applyCreateOptions(req *task.CreateRequest, opts map[string]any) error {
	for key, v := range opts {
		switch key {
		case "description":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("description must be a string")
			}
			req.Description = s
		case "priority":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("priority must be a string")
			}
			req.Priority = s
		case "assignee":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("assignee must be a string")
			}
			req.Assignee = s
		case "labels":
			labels, err := stringSlice(v)
			if err != nil {
				return fmt.Errorf("labels: %w", err)
			}
			req.Labels = labels
		default:
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return nil
}

func updateRequestFromMap(updates map[string]any) (task.UpdateRequest, error) {
	var req task.UpdateRequest
	for key, v := range updates {
		switch key {
		case "title":
			s, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("title must be a string")
			}
			req.Title = &s
		case "description":
			s, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("description must be a string")
			}
			req.Description = &s
		case "priority":
			s, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("priority must be a string")
			}
			req.Priority = &s
		case "assignee":
			s, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("assignee must be a string")
			}
			req.Assignee = &s
		case "status":
			s, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("status must be a string")
			}
			st := task.Status(s)
			req.Status = &st
		case "labels":
			labels, err := stringSlice(v)
			if err != nil {
				return req, fmt.Errorf("labels: %w", err)
			}
			req.Labels = &labels
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}
	return req, nil
}

func stringSlice(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("must be an array of strings")
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		s, ok := el.(string)
		if !ok {
			return nil, fmt.Errorf("must be an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
