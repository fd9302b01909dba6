// Package interp executes policy snippets under a restricted grammar,
// an enumerated capability surface and a hard wall-clock deadline. It
// is the only place sandboxed code runs; everything above it deals in
// structured results, never panics or leaked goroutines.
package interp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/RuleForge/internal/capability"
)

// ErrTimeout reports that a snippet exceeded its wall-clock budget.
// The deadline wins ties: work whose result arrives after expiry is
// still reported as timed out.
var ErrTimeout = errors.New("execution deadline exceeded")

// Config bounds a single snippet run. Zero fields fall back to the
// defaults below.
type Config struct {
	ConditionTimeout time.Duration `json:"condition_timeout" yaml:"condition_timeout"`
	ActionTimeout    time.Duration `json:"action_timeout" yaml:"action_timeout"`
	MaxNodes         int           `json:"max_nodes" yaml:"max_nodes"`
	MaxCalls         int           `json:"max_calls" yaml:"max_calls"`
}

const (
	defaultConditionTimeout = 1 * time.Second
	defaultActionTimeout    = 5 * time.Second
	defaultMaxNodes         = 10_000
	defaultMaxCalls         = 64
)

func (c Config) withDefaults() Config {
	if c.ConditionTimeout <= 0 {
		c.ConditionTimeout = defaultConditionTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = defaultActionTimeout
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = defaultMaxNodes
	}
	if c.MaxCalls <= 0 {
		c.MaxCalls = defaultMaxCalls
	}
	return c
}

// ConditionResult is the outcome of evaluating a condition expression.
// Errors never abort a dispatch; they surface here and the condition
// counts as not met.
type ConditionResult struct {
	Met     bool
	Err     error
	Elapsed time.Duration
}

// ActionResult is the outcome of running an action body.
type ActionResult struct {
	Value    any
	Err      error
	Elapsed  time.Duration
	TimedOut bool
	DryRun   bool
	Calls    []capability.Call
}

// Engine runs conditions and actions. It is stateless and safe for
// concurrent use.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// CheckCondition parses code as a condition expression without running
// it. Used by policy validation at registration time.
func CheckCondition(code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	_, err := parseExpr(code)
	return err
}

// CheckAction parses code as an action body without running it.
func CheckAction(code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	_, err := parseProgram(code)
	return err
}

// EvalCondition evaluates code as a single boolean expression against
// env with every function capability removed, so a condition cannot
// perform effects. An empty condition is unconditionally met. Any
// parse, runtime, capability or timeout error comes back in the
// result with Met=false.
func (e *Engine) EvalCondition(ctx context.Context, code string, env *capability.Context, timeout time.Duration) ConditionResult {
	start := time.Now()
	if strings.TrimSpace(code) == "" {
		return ConditionResult{Met: true, Elapsed: time.Since(start)}
	}
	if timeout <= 0 {
		timeout = e.cfg.ConditionTimeout
	}

	expr, err := parseExpr(code)
	if err != nil {
		return ConditionResult{Err: err, Elapsed: time.Since(start)}
	}

	pure := env.WithoutFuncs()
	v, err, _ := e.race(ctx, timeout, func(runCtx context.Context) (any, error) {
		ev := newEvaluator(runCtx, pure, e.cfg.MaxNodes, e.cfg.MaxCalls)
		return ev.eval(expr)
	})
	if err != nil {
		return ConditionResult{Err: err, Elapsed: time.Since(start)}
	}
	return ConditionResult{Met: truthy(v), Elapsed: time.Since(start)}
}

// ExecAction runs code as a statement list against env. The run is
// raced against the deadline; the context handed to every capability
// Func is cancelled when the deadline fires, so late effects are
// refused at the capability boundary rather than landing unobserved.
func (e *Engine) ExecAction(ctx context.Context, code string, env *capability.Context, timeout time.Duration) ActionResult {
	return e.execAction(ctx, code, env, timeout, nil)
}

// DryRunAction behaves like ExecAction but replaces every function
// capability with a recording stub, returning the calls the action
// would have made instead of performing them.
func (e *Engine) DryRunAction(ctx context.Context, code string, env *capability.Context, timeout time.Duration) ActionResult {
	rec := &capability.Recorder{}
	res := e.execAction(ctx, code, env.WithStubs(rec), timeout, rec)
	return res
}

func (e *Engine) execAction(ctx context.Context, code string, env *capability.Context, timeout time.Duration, rec *capability.Recorder) ActionResult {
	start := time.Now()
	dry := rec != nil
	if timeout <= 0 {
		timeout = e.cfg.ActionTimeout
	}

	prog, err := parseProgram(code)
	if err != nil {
		return ActionResult{Err: err, Elapsed: time.Since(start), DryRun: dry}
	}

	v, err, timedOut := e.race(ctx, timeout, func(runCtx context.Context) (any, error) {
		ev := newEvaluator(runCtx, env, e.cfg.MaxNodes, e.cfg.MaxCalls)
		return ev.runProgram(prog)
	})

	res := ActionResult{
		Value:    v,
		Err:      err,
		Elapsed:  time.Since(start),
		TimedOut: timedOut,
		DryRun:   dry,
	}
	if rec != nil {
		res.Calls = rec.Calls()
	}
	return res
}

// race runs fn in its own goroutine and waits for either its result or
// the deadline. The result channel is buffered so an abandoned run can
// deposit its outcome and exit; nothing blocks forever and nothing the
// late run produces is observed by the caller.
func (e *Engine) race(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error, bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &RuntimeError{Msg: fmt.Sprintf("panic: %v", r)}}
			}
		}()
		v, err := fn(runCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout, true
		}
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, ErrTimeout, true
		}
		return out.value, out.err, false
	case <-runCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err(), false
		}
		return nil, ErrTimeout, true
	}
}
