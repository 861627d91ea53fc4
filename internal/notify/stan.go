package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/stan.go"
)

// message is the wire shape published on the notification subject.
type message struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	OrderID    string    `json:"orderId"`
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`
	Payment    string    `json:"paymentStatus"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newMessage(ev Event) message {
	return message{
		ID:         ev.ID,
		Kind:       ev.Kind,
		OrderID:    ev.Order.ID,
		Reference:  ev.Order.HumanReference,
		Status:     string(ev.Order.Status),
		Payment:    string(ev.Order.Payment.Status),
		Total:      ev.Order.Total,
		OccurredAt: ev.OccurredAt,
	}
}

// publisher is the subset of stan.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// StanPublisher fans order events out to NATS Streaming subscribers.
type StanPublisher struct {
	conn    publisher
	closer  func() error
	subject string
}

func NewStanPublisher(natsURL, clusterID, clientID, subject string) (*StanPublisher, error) {
	conn, err := stan.Connect(clusterID, clientID,
		stan.NatsURL(natsURL),
		stan.ConnectWait(5*time.Second),
		stan.PubAckWait(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("stan connect %s: %w", natsURL, err)
	}
	return &StanPublisher{conn: conn, closer: conn.Close, subject: subject}, nil
}

func (p *StanPublisher) Name() string { return "stan" }

func (p *StanPublisher) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(newMessage(ev))
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

func (p *StanPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
