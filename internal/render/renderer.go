package render

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/rules"
)

// DefaultDateLayout is the wall-clock layout used for localized date fields
const DefaultDateLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// DefaultDateFields are the payload fields rendered in the practice timezone
var DefaultDateFields = []string{"sessionDate", "sessionDateTime", "startTime", "endTime", "scheduledAt"}

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Renderer substitutes {{path}} tokens with payload values.
// Tokens that do not resolve are left in place so misconfigured templates stay visible.
type Renderer struct {
	location   *time.Location
	layout     string
	dateFields map[string]struct{}
}

// NewRenderer creates a renderer formatting date fields in the given location.
// A nil location falls back to UTC; empty fields fall back to DefaultDateFields.
func NewRenderer(location *time.Location, dateFields []string) *Renderer {
	if location == nil {
		location = time.UTC
	}
	if len(dateFields) == 0 {
		dateFields = DefaultDateFields
	}
	fields := make(map[string]struct{}, len(dateFields))
	for _, f := range dateFields {
		fields[strings.TrimSpace(f)] = struct{}{}
	}
	return &Renderer{
		location:   location,
		layout:     DefaultDateLayout,
		dateFields: fields,
	}
}

// Location returns the practice timezone
func (r *Renderer) Location() *time.Location { return r.location }

// Render substitutes tokens with plain-text values
func (r *Renderer) Render(tmpl string, data map[string]any) string {
	return r.render(tmpl, data, false)
}

// RenderHTML substitutes tokens with HTML-escaped values
func (r *Renderer) RenderHTML(tmpl string, data map[string]any) string {
	return r.render(tmpl, data, true)
}

func (r *Renderer) render(tmpl string, data map[string]any, escape bool) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return tokenPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		match := tokenPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return token
		}
		path := match[1]

		value, ok := rules.Lookup(data, path)
		if !ok || value == nil {
			return token
		}

		text, ok := r.format(path, value)
		if !ok {
			return token
		}
		if escape {
			return html.EscapeString(text)
		}
		return text
	})
}

func (r *Renderer) format(path string, value any) (string, bool) {
	if r.isDateField(path) {
		if t, ok := parseTime(value); ok {
			return t.In(r.location).Format(r.layout), true
		}
	}

	switch v := value.(type) {
	case string:
		return v, true
	case time.Time:
		return v.Format(time.RFC3339), true
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}

	s := rules.FormatScalar(value)
	return s, s != ""
}

func (r *Renderer) isDateField(path string) bool {
	name := path
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		name = path[idx+1:]
	}
	_, ok := r.dateFields[name]
	return ok
}

func parseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
