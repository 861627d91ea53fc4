package notify

import (
	"context"
	"log"
)

// LogSender records events when no real channel is configured.
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(_ context.Context, ev Event) error {
	log.Printf("[NOTIFY] [INFO] event=%s id=%s order=%s status=%s payment=%s",
		ev.Kind, ev.ID, ev.Order.HumanReference, ev.Order.Status, ev.Order.Payment.Status)
	return nil
}
