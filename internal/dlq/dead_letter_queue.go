package dlq

import (
	"context"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/service"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 5 * time.Minute
	retryBatchSize     = 100
)

// Store persists failed emails
type Store interface {
	Create(ctx context.Context, failed *domain.FailedEmail) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.FailedEmail, error)
	RecordAttempt(ctx context.Context, id primitive.ObjectID, attemptErr string, next time.Time, exhausted bool) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Stats(ctx context.Context) (pending, exhausted int64, err error)
}

// Config tunes retry behavior
type Config struct {
	MaxAttempts int           // total transport attempts including the first send
	BaseDelay   time.Duration // delay before the first retry, doubled after each failure
	SendTimeout time.Duration
}

// DeadLetterQueue holds emails whose transport call failed and retries them
// with exponential backoff until MaxAttempts is reached
type DeadLetterQueue struct {
	store     Store
	transport service.EmailTransport
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// NewDeadLetterQueue creates a new dead letter queue
func NewDeadLetterQueue(store Store, transport service.EmailTransport, cfg Config, log *logger.Logger) *DeadLetterQueue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &DeadLetterQueue{
		store:     store,
		transport: transport,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// RecordFailure stores an email after its first failed send
func (q *DeadLetterQueue) RecordFailure(ctx context.Context, msg service.EmailMessage, userID string, trigger *domain.Trigger, sendErr error) {
	now := q.now().UTC()
	failed := &domain.FailedEmail{
		UserID:        userID,
		EventType:     trigger.EventType,
		TriggerName:   trigger.Name,
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		HTML:          msg.HTML,
		Text:          msg.Text,
		Error:         sendErr.Error(),
		Attempts:      1,
		Exhausted:     q.cfg.MaxAttempts <= 1,
		NextAttemptAt: now.Add(q.backoff(1)),
		FailedAt:      now,
	}

	if err := q.store.Create(ctx, failed); err != nil {
		q.log.Error("Failed to store failed email", "error", err, "user_id", userID, "trigger", trigger.Name)
		return
	}
	q.log.Warn("Email queued for retry", "user_id", userID, "trigger", trigger.Name,
		"next_attempt_at", failed.NextAttemptAt)
}

// RetryDue resends every due email once and returns how many succeeded
func (q *DeadLetterQueue) RetryDue(ctx context.Context) (int64, error) {
	if q.transport == nil {
		return 0, nil
	}

	due, err := q.store.FindDue(ctx, q.now().UTC(), retryBatchSize)
	if err != nil {
		return 0, err
	}

	var sent int64
	for _, failed := range due {
		if ctx.Err() != nil {
			break
		}
		if q.retry(ctx, failed) {
			sent++
		}
	}

	q.refreshStats(ctx)
	if len(due) > 0 {
		q.log.Info("Email retry pass finished", "due", len(due), "sent", sent)
	}
	return sent, nil
}

func (q *DeadLetterQueue) retry(ctx context.Context, failed *domain.FailedEmail) bool {
	sendCtx, cancel := context.WithTimeout(ctx, q.cfg.SendTimeout)
	err := q.transport.Send(sendCtx, service.EmailMessage{
		From:    failed.From,
		To:      failed.To,
		Subject: failed.Subject,
		HTML:    failed.HTML,
		Text:    failed.Text,
	})
	cancel()

	if err == nil {
		metrics.EmailRetries.WithLabelValues("sent").Inc()
		if delErr := q.store.Delete(ctx, failed.ID); delErr != nil {
			q.log.Error("Failed to remove retried email", "error", delErr, "id", failed.ID.Hex())
		}
		return true
	}

	attempts := failed.Attempts + 1
	exhausted := attempts >= q.cfg.MaxAttempts
	next := q.now().UTC().Add(q.backoff(attempts))
	if recErr := q.store.RecordAttempt(ctx, failed.ID, err.Error(), next, exhausted); recErr != nil {
		q.log.Error("Failed to record retry attempt", "error", recErr, "id", failed.ID.Hex())
	}

	if exhausted {
		metrics.EmailRetries.WithLabelValues("exhausted").Inc()
		q.log.Error("Giving up on email", "id", failed.ID.Hex(), "user_id", failed.UserID,
			"trigger", failed.TriggerName, "attempts", attempts, "error", err)
	} else {
		metrics.EmailRetries.WithLabelValues("failed").Inc()
		q.log.Warn("Email retry failed", "id", failed.ID.Hex(), "attempts", attempts, "error", err)
	}
	return false
}

// backoff returns the wait after the given number of attempts
func (q *DeadLetterQueue) backoff(attempts int) time.Duration {
	d := q.cfg.BaseDelay
	for i := 1; i < attempts && d < 24*time.Hour; i++ {
		d *= 2
	}
	return d
}

func (q *DeadLetterQueue) refreshStats(ctx context.Context) {
	pending, exhausted, err := q.store.Stats(ctx)
	if err != nil {
		q.log.Debug("Failed to read failed email stats", "error", err)
		return
	}
	metrics.FailedEmailsStored.WithLabelValues("pending").Set(float64(pending))
	metrics.FailedEmailsStored.WithLabelValues("exhausted").Set(float64(exhausted))
}
