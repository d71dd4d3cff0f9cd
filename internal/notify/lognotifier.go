package notify

import (
	"context"
	"log"
)

// LogNotifier is the broker-less fallback Notifier: it writes notices to the
// process log. Used in local runs and tests when AMQP is not configured.
type LogNotifier struct{}

// Notify logs the notice and always succeeds.
func (LogNotifier) Notify(_ context.Context, recipient, subject, _ string) error {
	log.Printf("[notify] to=%s subject=%q", recipient, subject)
	return nil
}
