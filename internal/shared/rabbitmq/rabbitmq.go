package rabbitmq

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient wraps the RabbitMQ connection
type RabbitMQClient struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Topology describes the exchange/queue binding the engine consumes from
type Topology struct {
	Exchange   string
	Queue      string
	BindingKey string
	Prefetch   int
}

// Message represents a RabbitMQ message
type Message struct {
	Body       []byte
	RoutingKey string
	delivery   amqp091.Delivery
}

// Ack acknowledges a message
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack negative acknowledges a message
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// NewRabbitMQClient creates a new RabbitMQ client
func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

// Declare creates a durable topic exchange, a durable queue and binds them
func (c *RabbitMQClient) Declare(t Topology) error {
	if err := c.channel.ExchangeDeclare(t.Exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if _, err := c.channel.QueueDeclare(t.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	key := t.BindingKey
	if key == "" {
		key = "#"
	}
	if err := c.channel.QueueBind(t.Queue, key, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	if t.Prefetch > 0 {
		if err := c.channel.Qos(t.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	return nil
}

// Consume delivers messages until ctx is cancelled or the channel closes
func (c *RabbitMQClient) Consume(ctx context.Context, queue, consumerTag string) (<-chan Message, error) {
	msgs, err := c.channel.ConsumeWithContext(
		ctx,
		queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for d := range msgs {
			select {
			case out <- Message{Body: d.Body, RoutingKey: d.RoutingKey, delivery: d}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()

	return out, nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
