package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel is a delivery medium that can be toggled per user per trigger type
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// AllChannels lists every supported channel
var AllChannels = []Channel{ChannelInApp, ChannelEmail}

// Valid reports whether c is a supported channel
func (c Channel) Valid() bool {
	return c == ChannelInApp || c == ChannelEmail
}

// NotificationPreference holds a user's channel choices for one trigger type.
// A missing record means every channel is enabled.
type NotificationPreference struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID          string             `json:"userId" bson:"userId"`
	TriggerType     EventType          `json:"triggerType" bson:"triggerType"`
	DeliveryMethods []Channel          `json:"deliveryMethods" bson:"deliveryMethods"`
	Timing          string             `json:"timing,omitempty" bson:"timing,omitempty"`                   // immediate, digest
	QuietHoursStart string             `json:"quietHoursStart,omitempty" bson:"quietHoursStart,omitempty"` // "22:00"
	QuietHoursEnd   string             `json:"quietHoursEnd,omitempty" bson:"quietHoursEnd,omitempty"`     // "08:00"
	WeekendDelivery bool               `json:"weekendDelivery" bson:"weekendDelivery"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Allows reports whether the preference enables the given channel
func (p *NotificationPreference) Allows(channel Channel) bool {
	for _, m := range p.DeliveryMethods {
		if m == channel {
			return true
		}
	}
	return false
}

// PreferenceState is the result of a channel preference lookup
type PreferenceState int

const (
	// PreferenceUnset means no record exists for the (user, trigger type) pair
	PreferenceUnset PreferenceState = iota
	PreferenceEnabled
	PreferenceDisabled
)

// Enabled resolves the state, treating Unset as enabled
func (s PreferenceState) Enabled() bool {
	return s != PreferenceDisabled
}

func (s PreferenceState) String() string {
	switch s {
	case PreferenceEnabled:
		return "enabled"
	case PreferenceDisabled:
		return "disabled"
	default:
		return "unset"
	}
}

// StateFor resolves the three-state lookup for a channel from an optional record
func StateFor(pref *NotificationPreference, channel Channel) PreferenceState {
	if pref == nil {
		return PreferenceUnset
	}
	if pref.Allows(channel) {
		return PreferenceEnabled
	}
	return PreferenceDisabled
}
