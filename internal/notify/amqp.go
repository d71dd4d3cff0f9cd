package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes notification events to a durable RabbitMQ queue.
// It satisfies the booking service's Notifier port.
type AMQPNotifier struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier connects to the broker and declares the queue (durable).
func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	n := &AMQPNotifier{url: url, queue: queue}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AMQPNotifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("notify: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("notify: declare queue: %w", err)
	}
	n.conn = conn
	n.ch = ch
	return nil
}

// Notify publishes the notice. A broken channel is re-dialed once; if the
// broker is still unreachable the error is returned for the caller to log.
func (n *AMQPNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	payload, err := json.Marshal(Notice{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal notice: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	publish := func() error {
		return n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	}

	if err := publish(); err != nil {
		if err := n.connect(); err != nil {
			return err
		}
		if err := publish(); err != nil {
			return fmt.Errorf("notify: publish: %w", err)
		}
	}
	return nil
}

// Close shuts down the channel and connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
