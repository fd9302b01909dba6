package policy

import (
	"fmt"
	"strings"
)

// maxSnippetLength bounds condition/action text at the domain boundary.
// The static validator applies its own configurable ceiling; this check
// only rejects absurd payloads before they reach storage.
const maxSnippetLength = 64 * 1024

// Validate checks that a CreateRequest is well-formed.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("policy: name is required")
	}
	if err := validateTrigger(r.Trigger); err != nil {
		return err
	}
	if strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("policy: action is required")
	}
	if len(r.Condition) > maxSnippetLength {
		return fmt.Errorf("policy: condition exceeds %d bytes", maxSnippetLength)
	}
	if len(r.Action) > maxSnippetLength {
		return fmt.Errorf("policy: action exceeds %d bytes", maxSnippetLength)
	}
	return nil
}

// Validate checks that an UpdateRequest is well-formed.
func (r *UpdateRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("policy: name cannot be empty")
	}
	if r.Trigger != nil {
		if err := validateTrigger(*r.Trigger); err != nil {
			return err
		}
	}
	if r.Action != nil && strings.TrimSpace(*r.Action) == "" {
		return fmt.Errorf("policy: action cannot be empty")
	}
	if r.Condition != nil && len(*r.Condition) > maxSnippetLength {
		return fmt.Errorf("policy: condition exceeds %d bytes", maxSnippetLength)
	}
	if r.Action != nil && len(*r.Action) > maxSnippetLength {
		return fmt.Errorf("policy: action exceeds %d bytes", maxSnippetLength)
	}
	if r.Version < 0 {
		return fmt.Errorf("policy: version must be >= 0")
	}
	return nil
}

func validateTrigger(trigger string) error {
	if strings.TrimSpace(trigger) == "" {
		return fmt.Errorf("policy: trigger is required")
	}
	if strings.ContainsAny(trigger, " \t\n") {
		return fmt.Errorf("policy: trigger %q must not contain whitespace", trigger)
	}
	return nil
}
