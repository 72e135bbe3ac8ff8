package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/queue"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// EventSubmitter accepts events for asynchronous processing
type EventSubmitter interface {
	Submit(eventType domain.EventType, payload map[string]any, priority domain.NotificationPriority) (string, error)
}

// EventHandler ingests domain events from practice services
type EventHandler struct {
	dispatcher EventSubmitter
	log        *logger.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(dispatcher EventSubmitter, log *logger.Logger) *EventHandler {
	return &EventHandler{dispatcher: dispatcher, log: log}
}

// Ingest queues an event and returns 202 without waiting for triggers to fire
func (h *EventHandler) Ingest(c *gin.Context) {
	var req domain.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.NewValidationError("invalid event body", err))
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	jobID, err := h.dispatcher.Submit(req.EventType, req.Payload, req.Priority)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			c.Header("Retry-After", "1")
			respondError(c, h.log, apperrors.NewUnavailableError("event queue is saturated", err))
			return
		}
		respondError(c, h.log, err)
		return
	}

	if !req.EventType.IsKnown() {
		h.log.Debug("Accepted custom event type", "event_type", req.EventType)
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":     jobID,
		"eventType": req.EventType,
	})
}
