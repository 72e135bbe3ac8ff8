package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/queue"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// EventProcessor handles one domain event synchronously
type EventProcessor interface {
	ProcessEvent(ctx context.Context, eventType domain.EventType, payload map[string]any) error
}

// EventDispatcher decouples event producers from the trigger engine with a
// bounded priority queue drained by a fixed worker pool
type EventDispatcher struct {
	processor EventProcessor
	queue     *queue.PriorityQueue
	workers   int
	log       *logger.Logger
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewEventDispatcher creates a dispatcher
func NewEventDispatcher(processor EventProcessor, q *queue.PriorityQueue, workers int, log *logger.Logger) *EventDispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &EventDispatcher{
		processor: processor,
		queue:     q,
		workers:   workers,
		log:       log,
	}
}

// Submit enqueues an event and returns its job id without waiting for processing.
// The payload is copied. Returns queue.ErrQueueFull when saturated.
func (d *EventDispatcher) Submit(eventType domain.EventType, payload map[string]any, priority domain.NotificationPriority) (string, error) {
	if eventType == "" {
		return "", errors.New("event type is required")
	}

	job := &queue.EventJob{
		ID:         uuid.NewString(),
		Priority:   priority.Normalize(),
		EventType:  eventType,
		Payload:    clonePayload(payload),
		EnqueuedAt: time.Now(),
	}

	if err := d.queue.Push(job); err != nil {
		reason := "queue_full"
		if errors.Is(err, queue.ErrQueueClosed) {
			reason = "closed"
		}
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		d.log.Warn("Event refused", "event_type", eventType, "reason", reason)
		return "", err
	}

	metrics.EventQueueSize.Set(float64(d.queue.Len()))
	return job.ID, nil
}

// Start starts the worker pool
func (d *EventDispatcher) Start() {
	d.startOnce.Do(func() {
		d.log.Info("Starting event dispatcher", "workers", d.workers, "capacity", d.queue.Capacity())
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(i)
		}
	})
}

// Stop closes the queue and waits for workers to drain it or for ctx to expire
func (d *EventDispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(d.queue.Close)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("Event dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event dispatcher drain: %w", ctx.Err())
	}
}

// QueueSize returns the current queue size
func (d *EventDispatcher) QueueSize() int {
	return d.queue.Len()
}

func (d *EventDispatcher) worker(id int) {
	defer d.wg.Done()
	d.log.Debug("Starting event worker", "worker_id", id)

	for {
		job, ok := d.queue.Pop()
		if !ok {
			d.log.Debug("Stopping event worker", "worker_id", id)
			return
		}
		metrics.EventQueueSize.Set(float64(d.queue.Len()))
		d.process(id, job)
	}
}

func (d *EventDispatcher) process(workerID int, job *queue.EventJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Event processing panicked", "job_id", job.ID, "event_type", job.EventType, "panic", fmt.Sprint(r))
		}
	}()

	// no event-wide deadline; storage and transport calls carry their own
	if err := d.processor.ProcessEvent(context.Background(), job.EventType, job.Payload); err != nil {
		d.log.Error("Failed to process event", "error", err,
			"job_id", job.ID, "event_type", job.EventType, "worker_id", workerID)
		return
	}
	d.log.Debug("Event processed", "job_id", job.ID, "event_type", job.EventType,
		"queued_for", time.Since(job.EnqueuedAt).String())
}
