package domain

// IngestEventRequest is the body of POST /api/v1/events and of queued broker messages
type IngestEventRequest struct {
	EventType EventType            `json:"eventType" binding:"required"`
	Payload   map[string]any       `json:"payload"`
	Priority  NotificationPriority `json:"priority,omitempty"`
}

// ListNotificationsRequest represents a request to list the caller's notifications
type ListNotificationsRequest struct {
	UnreadOnly bool `form:"unread"`
	Page       int  `form:"page"`
	PageSize   int  `form:"page_size"`
}

// NotificationPage is one page of a user's feed
type NotificationPage struct {
	Items    []*Notification `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// UpdatePreferenceRequest represents a request to set delivery preferences for one trigger type
type UpdatePreferenceRequest struct {
	DeliveryMethods []Channel `json:"deliveryMethods" binding:"required"`
	Timing          string    `json:"timing,omitempty"`
	QuietHoursStart string    `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   string    `json:"quietHoursEnd,omitempty"`
	WeekendDelivery *bool     `json:"weekendDelivery,omitempty"`
}

// EffectivePreference is a preference as seen by the caller, including defaults
type EffectivePreference struct {
	TriggerType     EventType `json:"triggerType"`
	DeliveryMethods []Channel `json:"deliveryMethods"`
	Timing          string    `json:"timing,omitempty"`
	QuietHoursStart string    `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   string    `json:"quietHoursEnd,omitempty"`
	WeekendDelivery bool      `json:"weekendDelivery"`
	IsDefault       bool      `json:"isDefault"`
}
