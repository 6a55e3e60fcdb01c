package push

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"thread-sync/internal/models"
)

// Sink receives decoded push deliveries. The store's fan-out satisfies it.
type Sink interface {
	HandlePush(event models.MessageCreatedEvent)
}

// Consumer drains message-created events from the broker and feeds them to
// the sync engine. Delivery order within a thread is the broker's; the engine
// re-sorts by id, so ordering here is best-effort.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	sink  Sink
}

// NewConsumer connects and binds a queue for message-created events.
func NewConsumer(amqpURL, exchange, queue string, sink Sink) (*Consumer, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(q.Name, "messages.created", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch, queue: q.Name, sink: sink}, nil
}

// Run consumes until the context is canceled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			var event models.MessageCreatedEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Printf("push consumer: drop malformed event: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			c.sink.HandlePush(event)
			_ = d.Ack(false)
		}
	}
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
