package service

import (
	"context"
	"errors"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/repository"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// FeedStore is the notification storage used by the user-facing feed
type FeedStore interface {
	ListByUser(ctx context.Context, userID string, f repository.ListFilter) ([]*domain.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NotificationService handles the user's own notification feed
type NotificationService struct {
	store FeedStore
	log   *logger.Logger
	now   func() time.Time
}

// NewNotificationService creates a new notification service
func NewNotificationService(store FeedStore, log *logger.Logger) *NotificationService {
	return &NotificationService{store: store, log: log, now: time.Now}
}

// ListNotifications returns one page of the user's feed
func (s *NotificationService) ListNotifications(ctx context.Context, userID string, req domain.ListNotificationsRequest) (*domain.NotificationPage, error) {
	filter := repository.ListFilter{UnreadOnly: req.UnreadOnly, Page: req.Page, PageSize: req.PageSize}
	items, total, err := s.store.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list notifications", err)
	}

	page, size := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = repository.DefaultPageSize
	}
	if size > repository.MaxPageSize {
		size = repository.MaxPageSize
	}
	return &domain.NotificationPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// UnreadCount returns the number of unread notifications
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count notifications", err)
	}
	return n, nil
}

// MarkRead marks one notification read
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return mapStoreError(s.store.MarkRead(ctx, id, userID))
}

// MarkAllRead marks every notification read and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark notifications read", err)
	}
	return n, nil
}

// Delete removes one notification
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	return mapStoreError(s.store.Delete(ctx, id, userID))
}

// CleanupExpired removes notifications whose expiresAt has passed
func (s *NotificationService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	metrics.ExpiredRemoved.Add(float64(removed))
	if removed > 0 {
		s.log.Info("Removed expired notifications", "count", removed)
	}
	return removed, nil
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidID):
		return apperrors.NewValidationError("invalid notification id", err)
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.NewNotFoundError("notification not found", err)
	default:
		return apperrors.NewInternalError("notification store failure", err)
	}
}
