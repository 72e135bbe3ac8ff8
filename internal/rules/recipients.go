package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// AssignedToField is the payload field naming the assigned staff member
	AssignedToField = "assignedToId"
	// DefaultTherapistField is the entity-specific therapist field used when assignedToId is absent
	DefaultTherapistField = "therapistId"
	// DefaultClientField is the payload field naming the client who owns the event
	DefaultClientField = "clientId"
)

// Source is one way of selecting recipients. The concrete types below are the only implementations.
type Source interface {
	source()
}

// RoleSource selects every active user holding one of the roles
type RoleSource struct {
	Roles []string
}

// UserSource selects specific users by id
type UserSource struct {
	IDs []string
}

// AssignedTherapistSource selects the staff member referenced by the payload
type AssignedTherapistSource struct {
	Field string
}

// SupervisorSource selects the active supervisor of the therapist referenced by the payload
type SupervisorSource struct {
	TherapistField string
}

// ClientSource selects the client owning the event, subject to their email opt-in
type ClientSource struct {
	Field string
}

func (RoleSource) source()              {}
func (UserSource) source()              {}
func (AssignedTherapistSource) source() {}
func (SupervisorSource) source()        {}
func (ClientSource) source()            {}

// TherapistID resolves the therapist referenced by the payload: assignedToId first, then the entity field
func TherapistID(payload map[string]any, field string) (string, bool) {
	if id, ok := LookupString(payload, AssignedToField); ok {
		return id, true
	}
	if field == "" {
		field = DefaultTherapistField
	}
	return LookupString(payload, field)
}

type recipientRulesDoc struct {
	Roles             []string `json:"roles"`
	SpecificUsers     []string `json:"specificUsers"`
	AssignedTherapist bool     `json:"assignedTherapist"`
	TherapistField    string   `json:"therapistField"`
	Supervisor        bool     `json:"supervisor"`
	SessionClient     bool     `json:"sessionClient"`
	ClientField       string   `json:"clientField"`
}

// ParseRecipients parses stored recipient rules into sources.
// Empty input yields no sources.
func ParseRecipients(raw string) ([]Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var doc recipientRulesDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRules, err)
	}

	therapistField := strings.TrimSpace(doc.TherapistField)
	if therapistField == "" {
		therapistField = DefaultTherapistField
	}
	clientField := strings.TrimSpace(doc.ClientField)
	if clientField == "" {
		clientField = DefaultClientField
	}

	var sources []Source
	if roles := compact(doc.Roles); len(roles) > 0 {
		sources = append(sources, RoleSource{Roles: roles})
	}
	if ids := compact(doc.SpecificUsers); len(ids) > 0 {
		sources = append(sources, UserSource{IDs: ids})
	}
	if doc.AssignedTherapist {
		sources = append(sources, AssignedTherapistSource{Field: therapistField})
	}
	if doc.Supervisor {
		sources = append(sources, SupervisorSource{TherapistField: therapistField})
	}
	if doc.SessionClient {
		sources = append(sources, ClientSource{Field: clientField})
	}
	return sources, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
