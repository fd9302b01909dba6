package interp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type builtinFunc func(args []any) (any, error)

// builtins are pure helpers available to every snippet. They never
// touch the outside world, so they are safe in conditions as well as
// actions. A capability or local of the same name shadows them.
var builtins = map[string]builtinFunc{
	"len":      builtinLen,
	"contains": builtinContains,
	"lower":    builtinLower,
	"upper":    builtinUpper,
	"str":      builtinStr,
	"num":      builtinNum,
}

func builtinLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expects one argument")
	}
	switch v := args[0].(type) {
	case string:
		return float64(len(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	case nil:
		return float64(0), nil
	}
	return nil, fmt.Errorf("cannot take length of %s", typeName(args[0]))
}

func builtinContains(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("expects two arguments")
	}
	switch v := args[0].(type) {
	case string:
		needle, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("cannot search a string for %s", typeName(args[1]))
		}
		return strings.Contains(v, needle), nil
	case []any:
		for _, el := range v {
			if equals(el, args[1]) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("object keys are strings, got %s", typeName(args[1]))
		}
		_, found := v[key]
		return found, nil
	case nil:
		return false, nil
	}
	return nil, fmt.Errorf("cannot search %s", typeName(args[0]))
}

func builtinLower(args []any) (any, error) {
	s, err := oneString(args)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func builtinUpper(args []any) (any, error) {
	s, err := oneString(args)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

func builtinStr(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expects one argument")
	}
	return stringify(args[0]), nil
}

func builtinNum(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expects one argument")
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %s to a number", typeName(args[0]))
}

func oneString(args []any) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expects one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("expects a string, got %s", typeName(args[0]))
	}
	return s, nil
}
