package capability

import (
	"context"
	"sync"
)

// Call records one capability invocation a dry run would have made.
type Call struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// Recorder collects the calls made through stubbed capabilities.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(name string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Name: name, Args: args})
}

// Calls returns a copy of the recorded invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// WithStubs derives a dry-run view: every Func is replaced by a no-op
// stand-in that records its invocation on rec and returns a synthetic
// "would execute" value. Plain values pass through unchanged, so
// conditions and data access behave exactly as they would live.
func (c *Context) WithStubs(rec *Recorder) *Context {
	values := make(map[string]any, len(c.values))
	names := make([]string, len(c.names))
	copy(names, c.names)
	for name, v := range c.values {
		if _, isFunc := v.(Func); isFunc {
			stubName := name
			values[name] = Func(func(_ context.Context, args []any) (any, error) {
				rec.record(stubName, args)
				return map[string]any{"would_execute": stubName}, nil
			})
			continue
		}
		values[name] = v
	}
	return &Context{values: values, names: names}
}
