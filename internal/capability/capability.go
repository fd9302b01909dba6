// Package capability implements the enumerated, immutable view of the
// values and functions a sandboxed snippet may reference. Every name
// the snippet touches resolves through this view; anything outside the
// allowed set fails with an explicit Error at the moment of access
// instead of silently resolving to an outer scope.
package capability

import (
	"context"
	"fmt"
	"sort"
)

// Func is the only callable shape exposed to sandboxed code. The ctx
// carries the dispatch deadline; implementations must respect it so a
// timed-out execution cannot land late effects.
type Func func(ctx context.Context, args []any) (any, error)

// Error reports an access outside the sanctioned capability surface.
type Error struct {
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("capability %q is not in the allowed set", e.Name)
}

// Context is a read-only view over a base mapping restricted to an
// allowed set of names. It has no mutating API, its enumeration yields
// exactly the allowed names, and function values carry the typed Func
// signature so invoking them cannot recover or rebind host scope.
type Context struct {
	values map[string]any
	names  []string
}

// NewContext builds the view. Every allowed name must be present in
// base; requesting a capability the registry does not provide is a
// wiring error surfaced immediately, not a silent hole at access time.
func NewContext(base map[string]any, allowed []string) (*Context, error) {
	values := make(map[string]any, len(allowed))
	names := make([]string, 0, len(allowed))
	for _, name := range allowed {
		v, ok := base[name]
		if !ok {
			return nil, fmt.Errorf("build capability context: %w", &Error{Name: name})
		}
		if _, dup := values[name]; dup {
			continue
		}
		values[name] = v
		names = append(names, name)
	}
	sort.Strings(names)
	return &Context{values: values, names: names}, nil
}

// Get resolves a name. Unknown names return *Error, never a nil value
// that could be mistaken for an empty capability.
func (c *Context) Get(name string) (any, error) {
	v, ok := c.values[name]
	if !ok {
		return nil, &Error{Name: name}
	}
	return v, nil
}

// Has reports whether name is in the allowed set.
func (c *Context) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Names enumerates exactly the allowed set, sorted. The returned slice
// is a copy; callers cannot widen the view through it.
func (c *Context) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of capabilities in the view.
func (c *Context) Len() int {
	return len(c.values)
}

// WithoutFuncs derives a view with every function capability removed.
// Condition evaluation runs against this view so that conditions stay
// side-effect-free: referencing an effectful capability from a
// condition fails as a capability error.
func (c *Context) WithoutFuncs() *Context {
	values := make(map[string]any, len(c.values))
	names := make([]string, 0, len(c.names))
	for _, name := range c.names {
		if _, isFunc := c.values[name].(Func); isFunc {
			continue
		}
		values[name] = c.values[name]
		names = append(names, name)
	}
	return &Context{values: values, names: names}
}
