package interp

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/RuleForge/internal/capability"
)

func TestEvalConditionEmptyIsMet(t *testing.T) {
	eng := New(Config{})
	for _, code := range []string{"", "   ", "\n\t"} {
		res := eng.EvalCondition(context.Background(), code, eventCaps(t), 0)
		if !res.Met || res.Err != nil {
			t.Errorf("EvalCondition(%q) = met %v err %v, want met nil", code, res.Met, res.Err)
		}
	}
}

func TestEvalConditionCoercion(t *testing.T) {
	eng := New(Config{})
	env := eventCaps(t)
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"boolean true", "event.payload.priority == 'high'", true},
		{"boolean false", "event.payload.priority == 'low'", false},
		{"truthy string", "event.source", true},
		{"falsy missing field", "event.payload.owner", false},
		{"truthy count", "event.payload.count", true},
		{"builtin in condition", "contains(event.name, 'created')", true},
		{"multi-line", "event.payload.priority == 'high' &&\nevent.source == 'webhook'", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.EvalCondition(context.Background(), tt.code, env, 0)
			if res.Err != nil {
				t.Fatalf("EvalCondition(%q) error = %v", tt.code, res.Err)
			}
			if res.Met != tt.want {
				t.Errorf("EvalCondition(%q) met = %v, want %v", tt.code, res.Met, tt.want)
			}
		})
	}
}

func TestEvalConditionErrorIsNotMet(t *testing.T) {
	eng := New(Config{})
	env := eventCaps(t)
	tests := []struct {
		name string
		code string
	}{
		{"parse error", "event.name =="},
		{"runtime error", "1 / 0"},
		{"unknown capability", "ghost.field == 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.EvalCondition(context.Background(), tt.code, env, 0)
			if res.Met {
				t.Error("errored condition reported as met")
			}
			if res.Err == nil {
				t.Error("expected surfaced error")
			}
		})
	}
}

func TestConditionCannotPerformEffects(t *testing.T) {
	var invoked atomic.Bool
	env := testCaps(t, map[string]any{
		"event": map[string]any{"name": "task.created"},
		"createTask": capability.Func(func(context.Context, []any) (any, error) {
			invoked.Store(true)
			return nil, nil
		}),
	})

	eng := New(Config{})
	res := eng.EvalCondition(context.Background(), "createTask('x')", env, 0)
	if res.Met {
		t.Error("effectful condition reported as met")
	}
	var capErr *capability.Error
	if !errors.As(res.Err, &capErr) {
		t.Fatalf("error = %v, want *capability.Error", res.Err)
	}
	if capErr.Name != "createTask" {
		t.Errorf("capability = %q, want createTask", capErr.Name)
	}
	if invoked.Load() {
		t.Error("condition evaluation invoked an effectful capability")
	}
}

func TestExecActionValueAndOrder(t *testing.T) {
	var order []string
	env := testCaps(t, map[string]any{
		"event": map[string]any{"name": "task.created"},
		"log": capability.Func(func(_ context.Context, args []any) (any, error) {
			order = append(order, args[0].(string))
			return nil, nil
		}),
		"createTask": capability.Func(func(_ context.Context, args []any) (any, error) {
			order = append(order, "create")
			return map[string]any{"id": "t-9"}, nil
		}),
	})

	eng := New(Config{})
	res := eng.ExecAction(context.Background(), "log('first')\nlet task = createTask('x')\nlog('second')\ntask.id", env, 0)
	if res.Err != nil {
		t.Fatalf("ExecAction: %v", res.Err)
	}
	if res.TimedOut {
		t.Error("unexpected timeout")
	}
	if res.Value != "t-9" {
		t.Errorf("value = %#v, want id of created task", res.Value)
	}
	want := []string{"first", "create", "second"}
	if len(order) != len(want) {
		t.Fatalf("calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestExecActionTimeout(t *testing.T) {
	env := testCaps(t, map[string]any{
		"wait": capability.Func(func(ctx context.Context, _ []any) (any, error) {
			select {
			case <-time.After(10 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	})

	eng := New(Config{})
	start := time.Now()
	res := eng.ExecAction(context.Background(), "wait()", env, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Error("expected TimedOut")
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", res.Err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("returned after %v, want roughly the 100ms budget", elapsed)
	}
	if res.Value != nil {
		t.Errorf("value = %#v, want nil on timeout", res.Value)
	}
}

func TestExecActionTimeoutDoesNotObserveLateResult(t *testing.T) {
	release := make(chan struct{})
	env := testCaps(t, map[string]any{
		"wait": capability.Func(func(ctx context.Context, _ []any) (any, error) {
			<-release // ignores ctx: simulates a capability that cannot be interrupted
			return "late", nil
		}),
	})

	eng := New(Config{})
	res := eng.ExecAction(context.Background(), "wait()", env, 50*time.Millisecond)
	close(release)

	if !res.TimedOut || !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("result = %+v, want timeout", res)
	}
	if res.Value != nil {
		t.Errorf("late value leaked into result: %#v", res.Value)
	}
}

func TestExecActionParentCancelIsNotTimeout(t *testing.T) {
	env := testCaps(t, map[string]any{
		"wait": capability.Func(func(ctx context.Context, _ []any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	eng := New(Config{})
	res := eng.ExecAction(ctx, "wait()", env, 10*time.Second)
	if res.TimedOut {
		t.Error("caller cancellation misreported as timeout")
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", res.Err)
	}
}

func TestExecActionParseError(t *testing.T) {
	eng := New(Config{})
	res := eng.ExecAction(context.Background(), "log('a' log('b')", eventCaps(t), 0)
	var parseErr *ParseError
	if !errors.As(res.Err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", res.Err)
	}
}

func TestDryRunRecordsWithoutEffects(t *testing.T) {
	var invoked atomic.Bool
	env := testCaps(t, map[string]any{
		"event": map[string]any{"name": "task.created"},
		"createTask": capability.Func(func(context.Context, []any) (any, error) {
			invoked.Store(true)
			return nil, nil
		}),
		"log": capability.Func(func(context.Context, []any) (any, error) {
			invoked.Store(true)
			return nil, nil
		}),
	})

	eng := New(Config{})
	res := eng.DryRunAction(context.Background(), "log('about to escalate')\ncreateTask('escalate: ' + event.name)", env, 0)
	if res.Err != nil {
		t.Fatalf("DryRunAction: %v", res.Err)
	}
	if !res.DryRun {
		t.Error("result not marked as dry run")
	}
	if invoked.Load() {
		t.Error("dry run invoked a real capability")
	}

	if len(res.Calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(res.Calls))
	}
	if res.Calls[0].Name != "log" || res.Calls[1].Name != "createTask" {
		t.Errorf("call order = %q, %q", res.Calls[0].Name, res.Calls[1].Name)
	}
	if res.Calls[1].Args[0] != "escalate: task.created" {
		t.Errorf("recorded args = %#v, want evaluated argument", res.Calls[1].Args)
	}

	out, ok := res.Value.(map[string]any)
	if !ok || out["would_execute"] != "createTask" {
		t.Errorf("value = %#v, want synthetic would_execute result", res.Value)
	}
}

func TestCheckConditionAndAction(t *testing.T) {
	if err := CheckCondition("event.name == 'x'"); err != nil {
		t.Errorf("CheckCondition valid = %v", err)
	}
	if err := CheckCondition(""); err != nil {
		t.Errorf("CheckCondition empty = %v", err)
	}
	if err := CheckCondition("a ("); err == nil {
		t.Error("CheckCondition accepted malformed expression")
	}
	if err := CheckCondition("a; b"); err == nil {
		t.Error("CheckCondition accepted a statement list")
	}
	if err := CheckAction("log('a'); log('b')"); err != nil {
		t.Errorf("CheckAction valid = %v", err)
	}
	if err := CheckAction("let = 1"); err == nil {
		t.Error("CheckAction accepted malformed let")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ConditionTimeout != defaultConditionTimeout || cfg.ActionTimeout != defaultActionTimeout {
		t.Errorf("timeouts = %v/%v, want defaults", cfg.ConditionTimeout, cfg.ActionTimeout)
	}
	if cfg.MaxNodes != defaultMaxNodes || cfg.MaxCalls != defaultMaxCalls {
		t.Errorf("budgets = %d/%d, want defaults", cfg.MaxNodes, cfg.MaxCalls)
	}
	kept := Config{ConditionTimeout: time.Second, ActionTimeout: 2 * time.Second, MaxNodes: 5, MaxCalls: 1}.withDefaults()
	if kept.MaxNodes != 5 || kept.MaxCalls != 1 {
		t.Errorf("explicit budgets overwritten: %+v", kept)
	}
}

func TestConditionStringBudget(t *testing.T) {
	eng := New(Config{MaxNodes: 10})
	res := eng.EvalCondition(context.Background(), strings.Repeat("1 + ", 20)+"1 > 0", eventCaps(t), 0)
	if res.Met {
		t.Error("budget-exhausted condition reported met")
	}
	var runtimeErr *RuntimeError
	if !errors.As(res.Err, &runtimeErr) {
		t.Errorf("error = %v, want *RuntimeError budget failure", res.Err)
	}
}
