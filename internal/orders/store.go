package orders

import (
	"context"
	"time"

	"github.com/heremarket/orders/internal/models"
)

// PaymentResult is a verified gateway outcome for one order.
type PaymentResult struct {
	Success                bool
	ExternalTransactionRef string
	ResponseCode           string
}

// Actor identifies who asked for a fulfillment change.
type Actor struct {
	ID     string
	Admin  bool
	Reason string
}

// AdminActor is a back-office user.
func AdminActor(id string) Actor {
	return Actor{ID: id, Admin: true}
}

// OwnerActor is the customer who placed the order.
func OwnerActor(id string) Actor {
	return Actor{ID: id}
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	OwnerID string
	Status  models.OrderStatus
	Limit   int64
	Offset  int64
}

// Store is the only writer of order state. Every mutation is a single atomic
// operation keyed by id; implementations never let two concurrent callers both
// observe the same pre-state and both win.
type Store interface {
	// Create inserts a pending/unpaid order and returns its id. A humanReference
	// collision returns domain.ErrConflict.
	Create(ctx context.Context, order *models.Order) (string, error)
	Get(ctx context.Context, id string) (models.Order, error)
	GetByReference(ctx context.Context, reference string) (models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)

	// MarkPaymentRequested records the reference sent to the gateway.
	MarkPaymentRequested(ctx context.Context, id, gatewayRef string, at time.Time) (models.Order, error)

	// ApplyPaymentResult is idempotent. The bool reports whether this call
	// changed the order.
	ApplyPaymentResult(ctx context.Context, id string, result PaymentResult) (models.Order, bool, error)

	// SetFulfillmentStatus moves the order along the fulfillment sequence.
	// The bool reports whether this call changed the order.
	SetFulfillmentStatus(ctx context.Context, id string, status models.OrderStatus, by Actor) (models.Order, bool, error)

	Ping(ctx context.Context) error
}
