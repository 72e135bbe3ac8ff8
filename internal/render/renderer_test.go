package render

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoadLocation(t testing.TB, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestRender(t *testing.T) {
	r := NewRenderer(mustLoadLocation(t, "America/New_York"), nil)

	tests := []struct {
		name     string
		template string
		data     map[string]any
		expected string
	}{
		{
			name:     "single variable",
			template: "Hello {{name}}!",
			data:     map[string]any{"name": "John"},
			expected: "Hello John!",
		},
		{
			name:     "dotted path and localized session date",
			template: "Hi {{client.name}}, session on {{sessionDate}}",
			data: map[string]any{
				"client":      map[string]any{"name": "Jane"},
				"sessionDate": "2024-03-01T14:00:00Z",
			},
			expected: "Hi Jane, session on Friday, March 1, 2024 at 9:00 AM EST",
		},
		{
			name:     "unresolved token left verbatim",
			template: "Value: {{missingField}}",
			data:     map[string]any{},
			expected: "Value: {{missingField}}",
		},
		{
			name:     "null value left verbatim",
			template: "Value: {{note}}",
			data:     map[string]any{"note": nil},
			expected: "Value: {{note}}",
		},
		{
			name:     "whitespace inside braces",
			template: "Hello {{ name }}",
			data:     map[string]any{"name": "John"},
			expected: "Hello John",
		},
		{
			name:     "numbers without exponent",
			template: "{{count}} tasks, {{ratio}} done",
			data:     map[string]any{"count": 3.0, "ratio": 0.5},
			expected: "3 tasks, 0.5 done",
		},
		{
			name:     "unparsable date left as text",
			template: "On {{sessionDate}}",
			data:     map[string]any{"sessionDate": "next tuesday"},
			expected: "On next tuesday",
		},
		{
			name:     "non date field keeps ISO text",
			template: "Created {{createdAt}}",
			data:     map[string]any{"createdAt": "2024-03-01T14:00:00Z"},
			expected: "Created 2024-03-01T14:00:00Z",
		},
		{
			name:     "nested date field",
			template: "{{session.startTime}}",
			data:     map[string]any{"session": map[string]any{"startTime": "2024-07-04T18:30:00Z"}},
			expected: "Thursday, July 4, 2024 at 2:30 PM EDT",
		},
		{
			name:     "no tokens",
			template: "Hello World!",
			data:     nil,
			expected: "Hello World!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Render(tt.template, tt.data); got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRender_NotUTC(t *testing.T) {
	r := NewRenderer(mustLoadLocation(t, "America/Los_Angeles"), nil)
	got := r.Render("{{sessionDate}}", map[string]any{"sessionDate": "2024-03-01T14:00:00Z"})
	if strings.Contains(got, "2:00 PM") || strings.Contains(got, "UTC") {
		t.Errorf("date rendered in UTC: %q", got)
	}
	if got != "Friday, March 1, 2024 at 6:00 AM PST" {
		t.Errorf("Render() = %q", got)
	}
}

func TestRenderHTML_EscapesValues(t *testing.T) {
	r := NewRenderer(time.UTC, nil)
	got := r.RenderHTML("Hello {{name}}!", map[string]any{"name": "<script>alert('xss')</script>"})
	want := "Hello &lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;!"
	if got != want {
		t.Errorf("RenderHTML() = %q, want %q", got, want)
	}
}

func BenchmarkRenderMultiple(b *testing.B) {
	r := NewRenderer(time.UTC, nil)
	template := "Hello {{name}}, welcome to {{company}}! Your session {{session.id}} is on {{sessionDate}}."
	data := map[string]any{
		"name":        "John Doe",
		"company":     "Acme Counseling",
		"session":     map[string]any{"id": "S-12345"},
		"sessionDate": "2024-03-01T14:00:00Z",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Render(template, data)
	}
}
