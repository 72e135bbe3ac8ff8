package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/middleware"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// PreferenceService manages the caller's delivery preferences
type PreferenceService interface {
	List(ctx context.Context, userID string) ([]domain.EffectivePreference, error)
	Get(ctx context.Context, userID string, triggerType domain.EventType) (*domain.EffectivePreference, error)
	Update(ctx context.Context, userID string, triggerType domain.EventType, req domain.UpdatePreferenceRequest) (*domain.EffectivePreference, error)
}

// PreferencesHandler handles notification preferences requests
type PreferencesHandler struct {
	service PreferenceService
	log     *logger.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(service PreferenceService, log *logger.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		service: service,
		log:     log,
	}
}

// ListPreferences returns effective preferences for every trigger type
func (h *PreferencesHandler) ListPreferences(c *gin.Context) {
	prefs, err := h.service.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// GetPreference returns the effective preference for one trigger type
func (h *PreferencesHandler) GetPreference(c *gin.Context) {
	triggerType := domain.EventType(c.Param("trigger_type"))
	pref, err := h.service.Get(c.Request.Context(), middleware.GetUserID(c), triggerType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// UpdatePreference replaces the caller's preference for one trigger type
func (h *PreferencesHandler) UpdatePreference(c *gin.Context) {
	var req domain.UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.NewValidationError("invalid preference body", err))
		return
	}

	triggerType := domain.EventType(c.Param("trigger_type"))
	pref, err := h.service.Update(c.Request.Context(), middleware.GetUserID(c), triggerType, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}
