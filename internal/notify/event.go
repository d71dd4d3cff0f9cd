// Package notify implements the Notifier port on RabbitMQ: the booking core
// publishes notification events to a durable queue and a background consumer
// delivers them. The core never waits on delivery.
package notify

import "time"

// Notice is the message payload exchanged over the notification queue.
type Notice struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}
