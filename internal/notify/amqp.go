package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBackend publishes events to an AMQP/RabbitMQ exchange.
// The connection is established lazily on first publish and re-dialed after failures.
type AMQPBackend struct {
	url        string
	exchange   string
	routingKey string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewAMQPBackend(url, exchange, routingKey string) *AMQPBackend {
	if routingKey == "" {
		routingKey = "vaultuplink.events"
	}
	return &AMQPBackend{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (a *AMQPBackend) Name() string {
	return "amqp"
}

func (a *AMQPBackend) channel() (*amqp.Channel, error) {
	if a.closed {
		return nil, fmt.Errorf("amqp backend closed")
	}
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	if a.conn == nil || a.conn.IsClosed() {
		conn, err := amqp.Dial(a.url)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		a.conn = conn
	}
	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	a.ch = ch
	return ch, nil
}

func (a *AMQPBackend) Publish(ctx context.Context, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.channel()
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	}
	key := a.routingKey
	if ev, ok := peek(payload); ok {
		// Topic exchanges can bind object.# or bucket.* per event family.
		key += "." + subjectToken(ev.Name)
		msg.Type = ev.Name
		msg.AppId = "vaultuplink"
		msg.Headers = amqp.Table{"project": ev.Project}
	}
	return ch.PublishWithContext(ctx, a.exchange, key, false, false, msg)
}

func (a *AMQPBackend) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
