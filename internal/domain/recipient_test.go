package domain

import "testing"

func TestNewClientRecipient(t *testing.T) {
	tests := []struct {
		name   string
		client Client
		want   bool
	}{
		{
			name:   "opted in with email",
			client: Client{ID: "c-1", Email: "jane@example.com", EmailNotifications: true},
			want:   true,
		},
		{
			name:   "opted out",
			client: Client{ID: "c-1", Email: "jane@example.com", EmailNotifications: false},
			want:   false,
		},
		{
			name:   "opted in without email",
			client: Client{ID: "c-1", Email: "", EmailNotifications: true},
			want:   false,
		},
		{
			name:   "opted in with blank email",
			client: Client{ID: "c-1", Email: "   ", EmailNotifications: true},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := NewClientRecipient(tt.client)
			if ok != tt.want {
				t.Fatalf("NewClientRecipient() ok = %v, want %v", ok, tt.want)
			}
			if !ok {
				if r != nil {
					t.Errorf("expected nil recipient when refused")
				}
				return
			}
			if r.Role() != RoleClient {
				t.Errorf("Role() = %q, want %q", r.Role(), RoleClient)
			}
			if !r.Eligible(ChannelEmail) || !r.Eligible(ChannelInApp) {
				t.Errorf("client recipient should be eligible for both channels")
			}
		})
	}
}

func TestStaffRecipient(t *testing.T) {
	r := NewStaffRecipient(User{ID: "u-1", Email: " dr@example.com ", FirstName: "Ann", LastName: "Lee", Role: "therapist"})
	if r.ID() != "u-1" || r.Role() != "therapist" {
		t.Errorf("unexpected identity %q/%q", r.ID(), r.Role())
	}
	if r.Email() != "dr@example.com" {
		t.Errorf("Email() = %q", r.Email())
	}
	if r.Name() != "Ann Lee" {
		t.Errorf("Name() = %q", r.Name())
	}
	if !r.Eligible(ChannelEmail) {
		t.Errorf("staff with email should be email eligible")
	}

	noEmail := NewStaffRecipient(User{ID: "u-2"})
	if noEmail.Eligible(ChannelEmail) {
		t.Errorf("staff without email must not be email eligible")
	}
	if !noEmail.Eligible(ChannelInApp) {
		t.Errorf("staff should always be in-app eligible")
	}
}

func TestStateFor(t *testing.T) {
	if got := StateFor(nil, ChannelEmail); got != PreferenceUnset || !got.Enabled() {
		t.Errorf("missing preference should be unset and enabled, got %v", got)
	}

	pref := &NotificationPreference{DeliveryMethods: []Channel{ChannelInApp}}
	if got := StateFor(pref, ChannelEmail); got != PreferenceDisabled || got.Enabled() {
		t.Errorf("email excluded should be disabled, got %v", got)
	}
	if got := StateFor(pref, ChannelInApp); got != PreferenceEnabled {
		t.Errorf("in_app included should be enabled, got %v", got)
	}

	empty := &NotificationPreference{}
	if got := StateFor(empty, ChannelInApp); got != PreferenceDisabled {
		t.Errorf("empty delivery methods should disable every channel, got %v", got)
	}
}
