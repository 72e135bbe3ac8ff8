package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks domain events handled by the trigger engine
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_events_processed_total",
			Help: "Total number of domain events processed",
		},
		[]string{"event_type", "status"}, // ok, error
	)

	// EventDuration tracks end-to-end processing time of one event
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_engine_event_duration_seconds",
			Help:    "Event processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// TriggersEvaluated tracks trigger outcomes per event
	TriggersEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_triggers_total",
			Help: "Total number of triggers evaluated by outcome",
		},
		[]string{"event_type", "outcome"}, // matched, skipped, invalid, failed
	)

	// NotificationsCreated tracks in-app rows written
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_notifications_created_total",
			Help: "Total number of in-app notifications created",
		},
		[]string{"event_type"},
	)

	// EmailsDispatched tracks per-recipient email outcomes
	EmailsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_emails_total",
			Help: "Total number of email dispatch attempts by status",
		},
		[]string{"status"}, // sent, failed, skipped_preference, skipped_ineligible, skipped_lookup_error
	)

	// EventQueueSize tracks the current async event queue depth
	EventQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_engine_event_queue_size",
			Help: "Current number of events waiting in the priority queue",
		},
	)

	// EventsDropped tracks events refused at the async boundary
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_events_dropped_total",
			Help: "Total number of events refused by the dispatcher",
		},
		[]string{"reason"}, // queue_full, closed
	)

	// ExpiredRemoved tracks rows deleted by the expiry sweep
	ExpiredRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_engine_expired_removed_total",
			Help: "Total number of expired notifications removed",
		},
	)

	// RateLimitExceeded tracks rate limit violations
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"route"},
	)

	// ConsumerRestarts tracks event consumer restart events
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_engine_consumer_restarts_total",
			Help: "Total number of event consumer restarts",
		},
	)

	// EmailRetries tracks dead-letter retry outcomes
	EmailRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_engine_email_retries_total",
			Help: "Total number of failed email retry attempts",
		},
		[]string{"status"}, // sent, failed, exhausted
	)

	// FailedEmailsStored tracks the failed email ledger by state
	FailedEmailsStored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_engine_failed_emails",
			Help: "Number of stored failed emails",
		},
		[]string{"state"}, // pending, exhausted
	)
)
