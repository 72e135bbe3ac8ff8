package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison supported by condition rules
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpInArray     Operator = "in_array"
)

// ErrMalformedRules is wrapped by every parse failure
var ErrMalformedRules = errors.New("malformed rules")

func (op Operator) valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpInArray:
		return true
	}
	return false
}

// Condition is a single (field, operator, value) comparison
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Conditions is an AND-ed set of comparisons. The zero value matches everything.
type Conditions struct {
	rules []Condition
}

// Len returns the number of comparisons
func (c Conditions) Len() int { return len(c.rules) }

// Match reports whether every comparison holds for the payload
func (c Conditions) Match(payload map[string]any) bool {
	for _, rule := range c.rules {
		if !rule.Match(payload) {
			return false
		}
	}
	return true
}

// Match evaluates a single comparison. A missing field fails every operator except not_equals.
func (r Condition) Match(payload map[string]any) bool {
	actual, present := Lookup(payload, r.Field)
	if !present {
		return r.Operator == OpNotEquals
	}

	switch r.Operator {
	case OpEquals:
		return strictEqual(actual, r.Value)
	case OpNotEquals:
		return !strictEqual(actual, r.Value)
	case OpContains:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, FormatScalar(r.Value))
	case OpGreaterThan, OpLessThan:
		a, okA := coerceNumber(actual)
		b, okB := coerceNumber(r.Value)
		if !okA || !okB {
			return false
		}
		if r.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	case OpInArray:
		list, ok := r.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if strictEqual(actual, item) {
				return true
			}
		}
		return false
	}
	return false
}

// ParseConditions parses stored condition rules.
// Empty input, null, {} and [] all mean "always match".
func ParseConditions(raw string) (Conditions, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return Conditions{}, nil
	}

	var list []Condition
	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return Conditions{}, fmt.Errorf("%w: %v", ErrMalformedRules, err)
		}
	case '{':
		var wrapper struct {
			Conditions []Condition `json:"conditions"`
			Rules      []Condition `json:"rules"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return Conditions{}, fmt.Errorf("%w: %v", ErrMalformedRules, err)
		}
		list = append(wrapper.Conditions, wrapper.Rules...)
	default:
		return Conditions{}, fmt.Errorf("%w: condition rules must be a JSON array or object", ErrMalformedRules)
	}

	for i, rule := range list {
		if strings.TrimSpace(rule.Field) == "" {
			return Conditions{}, fmt.Errorf("%w: condition %d has no field", ErrMalformedRules, i)
		}
		if !rule.Operator.valid() {
			return Conditions{}, fmt.Errorf("%w: condition %d has unknown operator %q", ErrMalformedRules, i, rule.Operator)
		}
		if rule.Operator == OpInArray {
			if _, ok := rule.Value.([]any); !ok {
				return Conditions{}, fmt.Errorf("%w: condition %d in_array value must be a list", ErrMalformedRules, i)
			}
		}
	}

	return Conditions{rules: list}, nil
}

// strictEqual compares without cross-kind coercion: "1" never equals 1
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	}
	return false
}

// toFloat accepts numeric kinds only
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// coerceNumber additionally accepts numeric strings and booleans
func coerceNumber(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
