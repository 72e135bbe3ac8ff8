package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/queue"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
	"github.com/vhvplatform/go-notification-engine/internal/shared/rabbitmq"
)

const consumerTag = "notification-engine"

// Broker is the subset of the RabbitMQ client the consumer needs
type Broker interface {
	Declare(t rabbitmq.Topology) error
	Consume(ctx context.Context, queue, consumerTag string) (<-chan rabbitmq.Message, error)
	Close() error
}

// Dialer opens a fresh broker connection
type Dialer func() (Broker, error)

// Submitter accepts events for asynchronous processing
type Submitter interface {
	Submit(eventType domain.EventType, payload map[string]any, priority domain.NotificationPriority) (string, error)
}

// Acker settles a delivery
type Acker interface {
	Ack() error
	Nack(requeue bool) error
}

// EventConsumer feeds domain events from RabbitMQ into the event dispatcher
type EventConsumer struct {
	dial       Dialer
	topology   rabbitmq.Topology
	dispatcher Submitter
	log        *logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	after      func(time.Duration) <-chan time.Time
}

// NewEventConsumer creates a new event consumer
func NewEventConsumer(dial Dialer, topology rabbitmq.Topology, dispatcher Submitter, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		dial:       dial,
		topology:   topology,
		dispatcher: dispatcher,
		log:        log,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		after:      time.After,
	}
}

// Run consumes until ctx is cancelled, reconnecting with backoff when the
// connection drops
func (c *EventConsumer) Run(ctx context.Context) {
	backoff := c.minBackoff
	for {
		consumed, err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			c.log.Info("Event consumer stopped")
			return
		}
		if consumed {
			backoff = c.minBackoff
		}

		metrics.ConsumerRestarts.Inc()
		c.log.Warn("Event consumer disconnected, reconnecting", "error", err, "backoff", backoff.String())

		select {
		case <-c.after(backoff):
		case <-ctx.Done():
			c.log.Info("Event consumer stopped")
			return
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// consumeOnce runs one connection until it drops. consumed reports whether
// the connection got as far as delivering.
func (c *EventConsumer) consumeOnce(ctx context.Context) (consumed bool, err error) {
	broker, err := c.dial()
	if err != nil {
		return false, err
	}
	defer broker.Close()

	if err := broker.Declare(c.topology); err != nil {
		return false, err
	}

	messages, err := broker.Consume(ctx, c.topology.Queue, consumerTag)
	if err != nil {
		return false, err
	}
	c.log.Info("Consuming domain events", "exchange", c.topology.Exchange, "queue", c.topology.Queue)

	for msg := range messages {
		c.Handle(&msg, msg.Body, msg.RoutingKey)
	}
	return true, errors.New("delivery channel closed")
}

// Handle decodes one delivery, submits it and settles it. Malformed bodies are
// dropped; a saturated queue sends the message back to the broker.
func (c *EventConsumer) Handle(acker Acker, body []byte, routingKey string) {
	msg, err := decodeEvent(body, routingKey)
	if err != nil {
		c.log.Error("Dropping malformed event", "error", err, "routing_key", routingKey)
		c.settle(acker.Nack(false))
		return
	}

	jobID, err := c.dispatcher.Submit(msg.EventType, msg.Payload, msg.Priority)
	switch {
	case err == nil:
		c.log.Debug("Event queued", "job_id", jobID, "event_type", msg.EventType)
		c.settle(acker.Ack())
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		c.log.Warn("Event queue unavailable, requeueing", "event_type", msg.EventType, "error", err)
		c.settle(acker.Nack(true))
	default:
		c.log.Error("Rejecting event", "event_type", msg.EventType, "error", err)
		c.settle(acker.Nack(false))
	}
}

func (c *EventConsumer) settle(err error) {
	if err != nil {
		c.log.Error("Failed to settle delivery", "error", err)
	}
}

// decodeEvent parses the message envelope, falling back to the routing key
// when the body carries no event type
func decodeEvent(body []byte, routingKey string) (*domain.IngestEventRequest, error) {
	var msg domain.IngestEventRequest
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if msg.EventType == "" {
		msg.EventType = domain.EventType(routingKey)
	}
	if msg.EventType == "" {
		return nil, errors.New("event type is missing")
	}
	if msg.Payload == nil {
		msg.Payload = map[string]any{}
	}
	return &msg, nil
}
