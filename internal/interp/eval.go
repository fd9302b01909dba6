package interp

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/Strob0t/RuleForge/internal/capability"
)

// budget bounds evaluation work so a pathological snippet cannot spin
// inside a single dispatch slot. Node and call counts are independent
// ceilings; crossing either is a runtime error.
type budget struct {
	nodes    int
	maxNodes int
	calls    int
	maxCalls int
}

type evaluator struct {
	ctx    context.Context
	caps   *capability.Context
	locals map[string]any
	budget budget
}

func newEvaluator(ctx context.Context, caps *capability.Context, maxNodes, maxCalls int) *evaluator {
	return &evaluator{
		ctx:    ctx,
		caps:   caps,
		locals: make(map[string]any),
		budget: budget{maxNodes: maxNodes, maxCalls: maxCalls},
	}
}

// runProgram executes a statement list and returns the value of the
// last statement. Context expiry is checked at every statement
// boundary so an abandoned evaluation exits promptly.
func (e *evaluator) runProgram(prog *program) (any, error) {
	var last any
	for _, stmt := range prog.stmts {
		if err := e.ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.eval(stmt)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (e *evaluator) eval(n node) (any, error) {
	e.budget.nodes++
	if e.budget.nodes > e.budget.maxNodes {
		return nil, &RuntimeError{Pos: n.pos(), Msg: fmt.Sprintf("evaluation budget of %d nodes exhausted", e.budget.maxNodes)}
	}
	// A cheap expiry check on every node keeps runaway expressions from
	// outliving their deadline between statement boundaries.
	if e.budget.nodes%64 == 0 {
		if err := e.ctx.Err(); err != nil {
			return nil, err
		}
	}

	switch n := n.(type) {
	case *numberLit:
		return n.value, nil
	case *stringLit:
		return n.value, nil
	case *boolLit:
		return n.value, nil
	case *nilLit:
		return nil, nil
	case *ident:
		return e.resolve(n)
	case *letStmt:
		v, err := e.eval(n.x)
		if err != nil {
			return nil, err
		}
		e.locals[n.name] = v
		return v, nil
	case *member:
		return e.evalMember(n)
	case *index:
		return e.evalIndex(n)
	case *call:
		return e.evalCall(n)
	case *unary:
		return e.evalUnary(n)
	case *binary:
		return e.evalBinary(n)
	case *objectLit:
		obj := make(map[string]any, len(n.keys))
		for i, key := range n.keys {
			v, err := e.eval(n.vals[i])
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		return obj, nil
	case *arrayLit:
		arr := make([]any, 0, len(n.elems))
		for _, el := range n.elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	return nil, &RuntimeError{Pos: n.pos(), Msg: "unknown node"}
}

// resolve looks a bare identifier up: let-bound locals shadow
// capabilities; anything else is a capability error, never a silent
// nil.
func (e *evaluator) resolve(n *ident) (any, error) {
	if v, ok := e.locals[n.name]; ok {
		return v, nil
	}
	return e.caps.Get(n.name)
}

// evalMember reads a field from a map value. A missing field yields
// nil, mirroring how absent event payload fields behave; only the
// top-level capability lookup hard-fails.
func (e *evaluator) evalMember(n *member) (any, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	obj, ok := x.(map[string]any)
	if !ok {
		return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot read field %q of %s", n.name, typeName(x))}
	}
	return obj[n.name], nil
}

func (e *evaluator) evalIndex(n *index) (any, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	i, err := e.eval(n.i)
	if err != nil {
		return nil, err
	}
	switch seq := x.(type) {
	case []any:
		f, ok := i.(float64)
		if !ok {
			return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("array index must be a number, got %s", typeName(i))}
		}
		idx := int(f)
		if idx < 0 || idx >= len(seq) {
			return nil, nil
		}
		return seq[idx], nil
	case map[string]any:
		key, ok := i.(string)
		if !ok {
			return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("object index must be a string, got %s", typeName(i))}
		}
		return seq[key], nil
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot index %s", typeName(x))}
}

func (e *evaluator) evalCall(n *call) (any, error) {
	e.budget.calls++
	if e.budget.calls > e.budget.maxCalls {
		return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("call budget of %d exhausted", e.budget.maxCalls)}
	}

	if fn, ok := builtins[n.fn]; ok {
		if _, shadowed := e.locals[n.fn]; !shadowed && !e.caps.Has(n.fn) {
			return e.callBuiltin(n, fn)
		}
	}

	target, err := e.resolve(&ident{name: n.fn, at: n.at})
	if err != nil {
		return nil, err
	}
	capFn, ok := target.(capability.Func)
	if !ok {
		return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("%q is not callable", n.fn)}
	}

	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := capFn(e.ctx, args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", n.fn, err)
	}
	return out, nil
}

func (e *evaluator) callBuiltin(n *call, fn builtinFunc) (any, error) {
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := fn(args)
	if err != nil {
		return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("%s: %v", n.fn, err)}
	}
	return out, nil
}

func (e *evaluator) evalUnary(n *unary) (any, error) {
	x, err := e.eval(n.x)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !truthy(x), nil
	case "-":
		f, ok := x.(float64)
		if !ok {
			return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot negate %s", typeName(x))}
		}
		return -f, nil
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("unknown unary operator %q", n.op)}
}

func (e *evaluator) evalBinary(n *binary) (any, error) {
	// Logical operators short-circuit; everything else is strict.
	switch n.op {
	case "&&":
		l, err := e.eval(n.l)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := e.eval(n.r)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case "||":
		l, err := e.eval(n.l)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := e.eval(n.r)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := e.eval(n.l)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(n.r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equals(l, r), nil
	case "!=":
		return !equals(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n, l, r)
	case "+":
		return add(n, l, r)
	case "-", "*", "/", "%":
		return arithmetic(n, l, r)
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("unknown operator %q", n.op)}
}

func compare(n *binary, l, r any) (any, error) {
	if lf, ok := l.(float64); ok {
		rf, ok := r.(float64)
		if !ok {
			return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot compare number with %s", typeName(r))}
		}
		switch n.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot compare string with %s", typeName(r))}
		}
		switch n.op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot compare %s with %s", typeName(l), typeName(r))}
}

func add(n *binary, l, r any) (any, error) {
	if lf, ok := l.(float64); ok {
		if rf, ok := r.(float64); ok {
			return lf + rf, nil
		}
	}
	if ls, ok := l.(string); ok {
		return ls + stringify(r), nil
	}
	if rs, ok := r.(string); ok {
		return stringify(l) + rs, nil
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("cannot add %s and %s", typeName(l), typeName(r))}
}

func arithmetic(n *binary, l, r any) (any, error) {
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if !lok || !rok {
		return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("operator %q needs numbers, got %s and %s", n.op, typeName(l), typeName(r))}
	}
	switch n.op {
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, &RuntimeError{Pos: n.at, Msg: "division by zero"}
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, &RuntimeError{Pos: n.at, Msg: "division by zero"}
		}
		return math.Mod(lf, rf), nil
	}
	return nil, &RuntimeError{Pos: n.at, Msg: fmt.Sprintf("unknown operator %q", n.op)}
}

// truthy coerces a value to boolean: nil, false, zero and the empty
// string are false, everything else is true.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

func equals(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	switch lv := l.(type) {
	case float64:
		rv, ok := r.(float64)
		return ok && lv == rv
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	}
	return reflect.DeepEqual(l, r)
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprintf("%v", v)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case capability.Func:
		return "function"
	}
	return fmt.Sprintf("%T", v)
}
