package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
)

func payloadFromJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestParseConditions_EmptyMatchesEverything(t *testing.T) {
	payloads := []map[string]any{
		nil,
		{},
		{"sessionType": "intake"},
		{"nested": map[string]any{"a": 1.0}},
	}

	for _, raw := range []string{"", "   ", "null", "[]", "{}", `{"conditions":[]}`} {
		conds, err := ParseConditions(raw)
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, 0, conds.Len())
		for _, p := range payloads {
			assert.True(t, conds.Match(p), "raw=%q payload=%v", raw, p)
		}
	}
}

func TestCondition_EqualsSessionType(t *testing.T) {
	conds, err := ParseConditions(`[{"field":"sessionType","operator":"equals","value":"intake"}]`)
	require.NoError(t, err)

	assert.True(t, conds.Match(map[string]any{"sessionType": "intake"}))
	assert.False(t, conds.Match(map[string]any{"sessionType": "followup"}))
	assert.False(t, conds.Match(map[string]any{"other": "intake"}))
}

func TestCondition_Operators(t *testing.T) {
	payload := map[string]any{
		"sessionType": "intake",
		"duration":    50.0,
		"count":       "10",
		"notes":       "client requested telehealth",
		"isVirtual":   true,
		"client": map[string]any{
			"name":  "Jane",
			"age":   34,
			"flags": []any{"new", "minor"},
		},
		"nothing": nil,
	}

	tests := []struct {
		name string
		rule Condition
		want bool
	}{
		{"equals string", Condition{"sessionType", OpEquals, "intake"}, true},
		{"equals nested path", Condition{"client.name", OpEquals, "Jane"}, true},
		{"equals int vs float", Condition{"client.age", OpEquals, 34.0}, true},
		{"equals is strict across kinds", Condition{"count", OpEquals, 10.0}, false},
		{"equals bool", Condition{"isVirtual", OpEquals, true}, true},
		{"equals null", Condition{"nothing", OpEquals, nil}, true},
		{"equals missing", Condition{"missing", OpEquals, "x"}, false},
		{"not_equals different", Condition{"sessionType", OpNotEquals, "followup"}, true},
		{"not_equals same", Condition{"sessionType", OpNotEquals, "intake"}, false},
		{"not_equals missing field", Condition{"missing", OpNotEquals, "x"}, true},
		{"contains substring", Condition{"notes", OpContains, "telehealth"}, true},
		{"contains absent substring", Condition{"notes", OpContains, "in person"}, false},
		{"contains on non string", Condition{"duration", OpContains, "5"}, false},
		{"contains missing", Condition{"missing", OpContains, "a"}, false},
		{"greater_than number", Condition{"duration", OpGreaterThan, 45.0}, true},
		{"greater_than numeric string field", Condition{"count", OpGreaterThan, 5.0}, true},
		{"greater_than numeric string value", Condition{"duration", OpGreaterThan, "60"}, false},
		{"greater_than non numeric", Condition{"sessionType", OpGreaterThan, 1.0}, false},
		{"greater_than missing", Condition{"missing", OpGreaterThan, 1.0}, false},
		{"less_than number", Condition{"duration", OpLessThan, 60.0}, true},
		{"less_than bool coerces", Condition{"isVirtual", OpLessThan, 2.0}, true},
		{"less_than null", Condition{"nothing", OpLessThan, 1.0}, false},
		{"in_array member", Condition{"sessionType", OpInArray, []any{"intake", "assessment"}}, true},
		{"in_array non member", Condition{"sessionType", OpInArray, []any{"followup"}}, false},
		{"in_array numeric", Condition{"duration", OpInArray, []any{30.0, 50.0}}, true},
		{"in_array missing", Condition{"missing", OpInArray, []any{"x"}}, false},
		{"in_array non list", Condition{"sessionType", OpInArray, "intake"}, false},
		{"slice index path", Condition{"client.flags.1", OpEquals, "minor"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Match(payload))
		})
	}
}

func TestConditions_AreANDed(t *testing.T) {
	conds, err := ParseConditions(`{"conditions":[
		{"field":"sessionType","operator":"equals","value":"intake"},
		{"field":"duration","operator":"greater_than","value":30}
	]}`)
	require.NoError(t, err)
	require.Equal(t, 2, conds.Len())

	assert.True(t, conds.Match(payloadFromJSON(t, `{"sessionType":"intake","duration":50}`)))
	assert.False(t, conds.Match(payloadFromJSON(t, `{"sessionType":"intake","duration":20}`)))
	assert.False(t, conds.Match(payloadFromJSON(t, `{"sessionType":"followup","duration":50}`)))
}

func TestParseConditions_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `[{"field":`},
		{"scalar", `"equals"`},
		{"unknown operator", `[{"field":"a","operator":"matches","value":"x"}]`},
		{"missing field", `[{"operator":"equals","value":"x"}]`},
		{"in_array without list", `[{"field":"a","operator":"in_array","value":"x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConditions(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedRules)
		})
	}
}

func TestCompile_BrokenTriggerNeverMatches(t *testing.T) {
	broken := Compile(&domain.Trigger{
		Name:           "broken",
		ConditionRules: `{not json`,
		RecipientRules: `{"roles":["admin"]}`,
	})
	require.Error(t, broken.Err())
	assert.False(t, broken.Matches(map[string]any{}))
	assert.Nil(t, broken.Sources())

	badRecipients := Compile(&domain.Trigger{
		Name:           "bad recipients",
		RecipientRules: `[1,2`,
	})
	require.Error(t, badRecipients.Err())
	assert.False(t, badRecipients.Matches(map[string]any{}))

	ok := Compile(&domain.Trigger{
		Name:           "ok",
		RecipientRules: `{"roles":["admin"]}`,
	})
	require.NoError(t, ok.Err())
	assert.True(t, ok.Matches(map[string]any{"anything": 1}))
	assert.Len(t, ok.Sources(), 1)
}

func TestLookup(t *testing.T) {
	payload := map[string]any{
		"client": map[string]any{"name": "Jane", "id": 42.0},
		"tags":   []any{"a", "b"},
		"meta":   map[string]string{"source": "portal"},
	}

	v, ok := Lookup(payload, "client.name")
	assert.True(t, ok)
	assert.Equal(t, "Jane", v)

	_, ok = Lookup(payload, "client.missing")
	assert.False(t, ok)

	_, ok = Lookup(payload, "client.name.first")
	assert.False(t, ok)

	_, ok = Lookup(payload, "tags.5")
	assert.False(t, ok)

	v, ok = Lookup(payload, "meta.source")
	assert.True(t, ok)
	assert.Equal(t, "portal", v)

	_, ok = Lookup(payload, "client..name")
	assert.False(t, ok)

	id, ok := LookupString(payload, "client.id")
	assert.True(t, ok)
	assert.Equal(t, "42", id)
}
