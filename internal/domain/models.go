package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned by the caller
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned for identifiers that cannot be parsed
	ErrInvalidID = errors.New("invalid id")
)

// EventType identifies a notify-worthy domain event
type EventType string

const (
	EventSessionScheduled   EventType = "session_scheduled"
	EventSessionRescheduled EventType = "session_rescheduled"
	EventSessionCancelled   EventType = "session_cancelled"
	EventDocumentAssigned   EventType = "document_assigned"
	EventDocumentSigned     EventType = "document_signed"
	EventTaskCreated        EventType = "task_created"
	EventTaskAssigned       EventType = "task_assigned"
	EventClientCreated      EventType = "client_created"
)

// KnownEventTypes is the documented set of inbound event types
var KnownEventTypes = []EventType{
	EventSessionScheduled,
	EventSessionRescheduled,
	EventSessionCancelled,
	EventDocumentAssigned,
	EventDocumentSigned,
	EventTaskCreated,
	EventTaskAssigned,
	EventClientCreated,
}

// IsKnown reports whether t belongs to the documented event set
func (t EventType) IsKnown() bool {
	for _, known := range KnownEventTypes {
		if known == t {
			return true
		}
	}
	return false
}

// NotificationPriority represents the urgency attached to a trigger
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Normalize maps unknown or empty values to medium
func (p NotificationPriority) Normalize() NotificationPriority {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityMedium
	}
}

// Trigger associates an event type with conditions, recipient rules and a template.
// ConditionRules and RecipientRules are stored as raw JSON and compiled by the engine.
type Trigger struct {
	ID             primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Name           string               `json:"name" bson:"name"`
	EventType      EventType            `json:"eventType" bson:"eventType"`
	EntityType     string               `json:"entityType" bson:"entityType"`
	ConditionRules string               `json:"conditionRules,omitempty" bson:"conditionRules,omitempty"`
	RecipientRules string               `json:"recipientRules" bson:"recipientRules"`
	TemplateID     string               `json:"templateId,omitempty" bson:"templateId,omitempty"`
	Priority       NotificationPriority `json:"priority" bson:"priority"`
	IsActive       bool                 `json:"isActive" bson:"isActive"`
	CreatedAt      time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// Template holds the subject, body and action patterns used to render a notification
type Template struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Type        string             `json:"type" bson:"type"`
	Subject     string             `json:"subject" bson:"subject"`
	Body        string             `json:"body" bson:"body"`
	ActionURL   string             `json:"actionUrl,omitempty" bson:"actionUrl,omitempty"`
	ActionLabel string             `json:"actionLabel,omitempty" bson:"actionLabel,omitempty"`
	IsSystem    bool               `json:"isSystem" bson:"isSystem"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Notification is an in-app notification owned by exactly one user
type Notification struct {
	ID                primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	UserID            string               `json:"userId" bson:"userId"`
	Type              EventType            `json:"type" bson:"type"`
	Title             string               `json:"title" bson:"title"`
	Message           string               `json:"message" bson:"message"`
	Data              map[string]any       `json:"data,omitempty" bson:"data,omitempty"`
	Priority          NotificationPriority `json:"priority" bson:"priority"`
	IsRead            bool                 `json:"isRead" bson:"isRead"`
	ReadAt            *time.Time           `json:"readAt,omitempty" bson:"readAt,omitempty"`
	ActionURL         string               `json:"actionUrl,omitempty" bson:"actionUrl,omitempty"`
	ActionLabel       string               `json:"actionLabel,omitempty" bson:"actionLabel,omitempty"`
	GroupingKey       string               `json:"groupingKey" bson:"groupingKey"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	RelatedEntityType string               `json:"relatedEntityType,omitempty" bson:"relatedEntityType,omitempty"`
	RelatedEntityID   string               `json:"relatedEntityId,omitempty" bson:"relatedEntityId,omitempty"`
	TriggerID         string               `json:"triggerId,omitempty" bson:"triggerId,omitempty"`
	CreatedAt         time.Time            `json:"createdAt" bson:"createdAt"`
}

// FailedEmail is an email whose transport call failed, held for retry.
// Exhausted entries stay as dead letters until removed by an operator.
type FailedEmail struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID        string             `json:"userId" bson:"userId"`
	EventType     EventType          `json:"eventType" bson:"eventType"`
	TriggerName   string             `json:"triggerName" bson:"triggerName"`
	From          string             `json:"from" bson:"from"`
	To            string             `json:"to" bson:"to"`
	Subject       string             `json:"subject" bson:"subject"`
	HTML          string             `json:"html" bson:"html"`
	Text          string             `json:"text" bson:"text"`
	Error         string             `json:"error" bson:"error"`
	Attempts      int                `json:"attempts" bson:"attempts"`
	Exhausted     bool               `json:"exhausted" bson:"exhausted"`
	NextAttemptAt time.Time          `json:"nextAttemptAt" bson:"nextAttemptAt"`
	FailedAt      time.Time          `json:"failedAt" bson:"failedAt"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
}

// GroupingKey builds the key used by feeds to collapse duplicate entries
func GroupingKey(eventType EventType, entityID string) string {
	return string(eventType) + "_" + entityID
}
