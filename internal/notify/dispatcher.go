// Package notify delivers best-effort order notifications off the request
// path. Nothing here reports back to the order service: failures are logged
// and dropped.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heremarket/orders/internal/models"
)

type EventKind string

const (
	EventPaymentConfirmed EventKind = "order.paid"
	EventOrderCancelled   EventKind = "order.cancelled"
	EventOrderShipped     EventKind = "order.shipped"
	EventOrderDelivered   EventKind = "order.delivered"
)

// Event is a snapshot of an order taken right after the change it announces.
type Event struct {
	ID         string
	Kind       EventKind
	Order      models.Order
	OccurredAt time.Time
}

func NewEvent(kind EventKind, order models.Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Order:      order,
		OccurredAt: time.Now(),
	}
}

// DedupeKey identifies the logical notification independent of Event.ID.
func (e Event) DedupeKey() string {
	return e.Order.ID + ":" + string(e.Kind)
}

// Sender is one delivery channel (email, message bus, ...).
type Sender interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Deduper reports whether key is being delivered for the first time.
type Deduper interface {
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Deduper     Deduper
}

// Dispatcher hands events from request handlers to a fixed worker pool over a
// buffered channel.
type Dispatcher struct {
	queue       chan Event
	senders     []Sender
	dedupe      Deduper
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(opts Options, senders ...Sender) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Deduper == nil {
		opts.Deduper = NewMemoryDeduper()
	}

	d := &Dispatcher{
		queue:       make(chan Event, opts.QueueSize),
		senders:     senders,
		dedupe:      opts.Deduper,
		sendTimeout: opts.SendTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Enqueue never blocks. It returns false when the event was dropped.
func (d *Dispatcher) Enqueue(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Printf("[NOTIFY] [WARN] dispatcher closed, dropping %s for order %s", ev.Kind, ev.Order.HumanReference)
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		log.Printf("[NOTIFY] [ERROR] queue full, dropping %s for order %s", ev.Kind, ev.Order.HumanReference)
		return false
	}
}

// Close stops intake and waits for queued events to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: drain interrupted: %w", ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	first, err := d.dedupe.FirstDelivery(ctx, ev.DedupeKey())
	if err != nil {
		log.Printf("[NOTIFY] [WARN] dedupe check failed for %s, sending anyway: %v", ev.DedupeKey(), err)
		first = true
	}
	if !first {
		log.Printf("[NOTIFY] [INFO] %s already delivered for order %s", ev.Kind, ev.Order.HumanReference)
		return
	}

	for _, s := range d.senders {
		d.send(s, ev)
	}
}

func (d *Dispatcher) send(s Sender, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOTIFY] [ERROR] %s panicked on %s: %v", s.Name(), ev.Kind, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := s.Send(ctx, ev); err != nil {
		log.Printf("[NOTIFY] [ERROR] %s failed for %s order %s: %v", s.Name(), ev.Kind, ev.Order.HumanReference, err)
		return
	}
	log.Printf("[NOTIFY] [INFO] %s sent %s for order %s", s.Name(), ev.Kind, ev.Order.HumanReference)
}
