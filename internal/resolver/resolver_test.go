package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/rules"
)

type fakeDirectory struct {
	users       map[string]domain.User
	clients     map[string]domain.Client
	supervisors map[string]string // therapist -> supervisor
	err         error
}

func (f *fakeDirectory) UsersByRoles(_ context.Context, roles []string) ([]domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, r := range roles {
		want[r] = true
	}
	var out []domain.User
	for _, id := range []string{"admin1", "admin2", "ther1", "ther2", "sup1"} {
		if u, ok := f.users[id]; ok && u.IsActive && want[u.Role] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UsersByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ActiveSupervisorOf(_ context.Context, therapistID string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	supID, ok := f.supervisors[therapistID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := f.users[supID]
	return &u, nil
}

func (f *fakeDirectory) ClientByID(_ context.Context, id string) (*domain.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]domain.User{
			"admin1": {ID: "admin1", Email: "a1@example.com", Role: "admin", IsActive: true},
			"admin2": {ID: "admin2", Email: "a2@example.com", Role: "admin", IsActive: false},
			"ther1":  {ID: "ther1", Email: "t1@example.com", Role: "therapist", IsActive: true},
			"ther2":  {ID: "ther2", Email: "t2@example.com", Role: "therapist", IsActive: true},
			"sup1":   {ID: "sup1", Email: "s1@example.com", Role: "supervisor", IsActive: true},
		},
		clients: map[string]domain.Client{
			"c-opt-in":  {ID: "c-opt-in", Email: "jane@example.com", EmailNotifications: true},
			"c-opt-out": {ID: "c-opt-out", Email: "joe@example.com", EmailNotifications: false},
			"c-blank":   {ID: "c-blank", Email: "   ", EmailNotifications: true},
		},
		supervisors: map[string]string{"ther1": "sup1"},
	}
}

func ids(recipients []domain.Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.ID())
	}
	return out
}

func resolveRaw(t *testing.T, r *Resolver, raw string, payload map[string]any) ([]domain.Recipient, error) {
	t.Helper()
	sources, err := rules.ParseRecipients(raw)
	require.NoError(t, err)
	return r.Resolve(context.Background(), sources, payload)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		payload map[string]any
		want    []string
	}{
		{
			name: "roles and specific users are deduplicated",
			raw:  `{"roles":["admin"],"specificUsers":["admin1","ther2"]}`,
			want: []string{"admin1", "ther2"},
		},
		{
			name:    "assigned therapist prefers assignedToId",
			raw:     `{"assignedTherapist":true}`,
			payload: map[string]any{"assignedToId": "ther2", "therapistId": "ther1"},
			want:    []string{"ther2"},
		},
		{
			name:    "assigned therapist custom field",
			raw:     `{"assignedTherapist":true,"therapistField":"providerId"}`,
			payload: map[string]any{"providerId": "ther1"},
			want:    []string{"ther1"},
		},
		{
			name:    "supervisor of therapist",
			raw:     `{"assignedTherapist":true,"supervisor":true}`,
			payload: map[string]any{"therapistId": "ther1"},
			want:    []string{"ther1", "sup1"},
		},
		{
			name:    "no active supervision contributes nothing",
			raw:     `{"supervisor":true}`,
			payload: map[string]any{"therapistId": "ther2"},
			want:    []string{},
		},
		{
			name:    "opted in client",
			raw:     `{"sessionClient":true}`,
			payload: map[string]any{"clientId": "c-opt-in"},
			want:    []string{"c-opt-in"},
		},
		{
			name:    "opted out client excluded",
			raw:     `{"sessionClient":true}`,
			payload: map[string]any{"clientId": "c-opt-out"},
			want:    []string{},
		},
		{
			name:    "blank email client excluded",
			raw:     `{"sessionClient":true}`,
			payload: map[string]any{"clientId": "c-blank"},
			want:    []string{},
		},
		{
			name:    "missing payload fields",
			raw:     `{"assignedTherapist":true,"supervisor":true,"sessionClient":true}`,
			payload: map[string]any{},
			want:    []string{},
		},
		{
			name:    "inactive users never resolve",
			raw:     `{"specificUsers":["admin2"]}`,
			payload: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(newFakeDirectory())
			got, err := resolveRaw(t, r, tt.raw, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestResolve_StorageErrorEmptiesSet(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = errors.New("connection refused")
	r := New(dir)

	got, err := resolveRaw(t, r, `{"roles":["admin"],"sessionClient":true}`, map[string]any{"clientId": "c-opt-in"})
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestResolve_BrokenTriggerResolvesNobody(t *testing.T) {
	ct := rules.Compile(&domain.Trigger{Name: "broken", RecipientRules: `{"roles":`})
	require.Error(t, ct.Err())

	got, err := New(newFakeDirectory()).Resolve(context.Background(), ct.Sources(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_ClientRecipientEligibility(t *testing.T) {
	got, err := resolveRaw(t, New(newFakeDirectory()), `{"sessionClient":true}`, map[string]any{"clientId": "c-opt-in"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.RoleClient, got[0].Role())
	assert.True(t, got[0].Eligible(domain.ChannelEmail))
}
