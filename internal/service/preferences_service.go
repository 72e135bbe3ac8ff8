package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// PreferenceStore persists notification preferences
type PreferenceStore interface {
	Get(ctx context.Context, userID string, triggerType domain.EventType) (*domain.NotificationPreference, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.NotificationPreference, error)
	Upsert(ctx context.Context, pref *domain.NotificationPreference) error
}

var triggerTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// PreferencesService manages the caller's own delivery preferences
type PreferencesService struct {
	store PreferenceStore
	log   *logger.Logger
}

// NewPreferencesService creates a new preferences service
func NewPreferencesService(store PreferenceStore, log *logger.Logger) *PreferencesService {
	return &PreferencesService{store: store, log: log}
}

// List returns effective preferences for every known event type plus any
// custom types the user has stored
func (s *PreferencesService) List(ctx context.Context, userID string) ([]domain.EffectivePreference, error) {
	stored, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load preferences", err)
	}

	byType := make(map[domain.EventType]*domain.NotificationPreference, len(stored))
	for _, p := range stored {
		byType[p.TriggerType] = p
	}

	out := make([]domain.EffectivePreference, 0, len(domain.KnownEventTypes)+len(stored))
	for _, t := range domain.KnownEventTypes {
		out = append(out, effective(t, byType[t]))
		delete(byType, t)
	}
	for _, p := range stored {
		if _, custom := byType[p.TriggerType]; custom {
			out = append(out, effective(p.TriggerType, p))
		}
	}
	return out, nil
}

// Get returns the effective preference for one trigger type
func (s *PreferencesService) Get(ctx context.Context, userID string, triggerType domain.EventType) (*domain.EffectivePreference, error) {
	if !triggerTypePattern.MatchString(string(triggerType)) {
		return nil, apperrors.NewValidationError("invalid trigger type", nil)
	}
	pref, err := s.store.Get(ctx, userID, triggerType)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load preference", err)
	}
	eff := effective(triggerType, pref)
	return &eff, nil
}

// Update validates and stores the preference for one trigger type
func (s *PreferencesService) Update(ctx context.Context, userID string, triggerType domain.EventType, req domain.UpdatePreferenceRequest) (*domain.EffectivePreference, error) {
	if !triggerTypePattern.MatchString(string(triggerType)) {
		return nil, apperrors.NewValidationError("invalid trigger type", nil)
	}
	if err := validatePreference(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}

	pref := &domain.NotificationPreference{
		UserID:          userID,
		TriggerType:     triggerType,
		DeliveryMethods: dedupeChannels(req.DeliveryMethods),
		Timing:          req.Timing,
		QuietHoursStart: req.QuietHoursStart,
		QuietHoursEnd:   req.QuietHoursEnd,
		WeekendDelivery: req.WeekendDelivery == nil || *req.WeekendDelivery,
	}
	if err := s.store.Upsert(ctx, pref); err != nil {
		return nil, apperrors.NewInternalError("failed to save preference", err)
	}

	s.log.Info("Preference updated", "user_id", userID, "trigger_type", triggerType,
		"delivery_methods", pref.DeliveryMethods)
	eff := effective(triggerType, pref)
	return &eff, nil
}

func validatePreference(req domain.UpdatePreferenceRequest) error {
	for _, ch := range req.DeliveryMethods {
		if !ch.Valid() {
			return fmt.Errorf("unsupported delivery method %q", ch)
		}
	}
	switch req.Timing {
	case "", "immediate", "digest":
	default:
		return fmt.Errorf("timing must be immediate or digest")
	}
	if (req.QuietHoursStart == "") != (req.QuietHoursEnd == "") {
		return fmt.Errorf("quiet hours need both start and end")
	}
	for _, v := range []string{req.QuietHoursStart, req.QuietHoursEnd} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("quiet hours %q must be HH:MM", v)
		}
	}
	return nil
}

func dedupeChannels(in []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]bool, len(in))
	out := make([]domain.Channel, 0, len(in))
	for _, ch := range in {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func effective(triggerType domain.EventType, pref *domain.NotificationPreference) domain.EffectivePreference {
	if pref == nil {
		return domain.EffectivePreference{
			TriggerType:     triggerType,
			DeliveryMethods: append([]domain.Channel(nil), domain.AllChannels...),
			Timing:          "immediate",
			WeekendDelivery: true,
			IsDefault:       true,
		}
	}
	return domain.EffectivePreference{
		TriggerType:     triggerType,
		DeliveryMethods: pref.DeliveryMethods,
		Timing:          pref.Timing,
		QuietHoursStart: pref.QuietHoursStart,
		QuietHoursEnd:   pref.QuietHoursEnd,
		WeekendDelivery: pref.WeekendDelivery,
	}
}
