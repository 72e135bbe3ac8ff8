package service

import "github.com/vhvplatform/go-notification-engine/internal/domain"

// recipientKey is the payload key exposing the current recipient to templates
const recipientKey = "recipient"

// renderData overlays recipient fields onto a shallow copy of the payload.
// An existing "recipient" key in the payload wins.
func renderData(payload map[string]any, r domain.Recipient) map[string]any {
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	if _, taken := data[recipientKey]; !taken && r != nil {
		data[recipientKey] = map[string]any{
			"id":    r.ID(),
			"name":  r.Name(),
			"email": r.Email(),
			"role":  r.Role(),
		}
	}
	return data
}

// clonePayload deep-copies maps and slices so queued events are isolated from the caller
func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
