package policy

import "path/filepath"

// MatchesTrigger reports whether the policy subscribes to the named
// trigger. Exact names match directly; a trigger specifier may also use
// glob-style wildcards via filepath.Match:
//   - "*" matches everything
//   - "task.*" matches "task.created"
//   - "task.created" matches exactly
func (p *Policy) MatchesTrigger(name string) bool {
	if p.Trigger == name {
		return true
	}
	matched, err := filepath.Match(p.Trigger, name)
	return err == nil && matched
}
