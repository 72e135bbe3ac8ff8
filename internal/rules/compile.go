package rules

import (
	"errors"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
)

// CompiledTrigger is a trigger whose stored rules have been parsed once.
// A trigger that failed to compile never matches and resolves nobody.
type CompiledTrigger struct {
	Trigger    *domain.Trigger
	conditions Conditions
	sources    []Source
	err        error
}

// Compile parses a trigger's condition and recipient rules
func Compile(t *domain.Trigger) *CompiledTrigger {
	ct := &CompiledTrigger{Trigger: t}

	conditions, condErr := ParseConditions(t.ConditionRules)
	sources, srcErr := ParseRecipients(t.RecipientRules)

	ct.conditions = conditions
	ct.sources = sources
	ct.err = errors.Join(condErr, srcErr)
	return ct
}

// Err returns the compile error, if any
func (c *CompiledTrigger) Err() error { return c.err }

// Matches evaluates the trigger's conditions against the payload
func (c *CompiledTrigger) Matches(payload map[string]any) bool {
	if c.err != nil {
		return false
	}
	return c.conditions.Match(payload)
}

// Sources returns the recipient sources, or nil when the trigger is broken
func (c *CompiledTrigger) Sources() []Source {
	if c.err != nil {
		return nil
	}
	return c.sources
}
