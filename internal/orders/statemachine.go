package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
)

// maxCASAttempts bounds optimistic retries when a concurrent writer bumps the
// version between our read and our conditional write.
const maxCASAttempts = 8

// Allowed admin transitions. Anything not listed is rejected.
var fulfillmentNext = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:    {models.StatusDelivered},
}

func canMove(from, to models.OrderStatus) bool {
	for _, next := range fulfillmentNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isTerminal(s models.OrderStatus) bool {
	return s == models.StatusCancelled || s == models.StatusDelivered
}

// decide computes the next state of an order. changed=false with a nil error
// means the call is an idempotent no-op.
type decideFunc func(current models.Order) (next models.Order, changed bool, err error)

func decidePaymentResult(result PaymentResult, now time.Time) decideFunc {
	return func(o models.Order) (models.Order, bool, error) {
		if o.Payment.Method != models.PaymentGateway {
			return o, false, domain.StateError{Reason: "cash orders do not take gateway payments"}
		}

		if o.IsPaid() {
			if !result.Success {
				// A late failure never un-pays an order.
				return o, false, nil
			}
			if o.ExternalRef() == result.ExternalTransactionRef {
				return o, false, nil
			}
			return o, false, fmt.Errorf("order %s already paid by transaction %s: %w", o.HumanReference, o.ExternalRef(), domain.ErrConflict)
		}

		next := o
		next.Payment.ResponseCode = result.ResponseCode

		if !result.Success {
			switch o.Status {
			case models.StatusCancelled:
				return o, false, nil
			case models.StatusPending, models.StatusProcessing:
				next.Status = models.StatusCancelled
				next.CancelReason = "payment failed with code " + result.ResponseCode
			default:
				return o, false, domain.StateError{From: string(o.Status), To: string(models.StatusCancelled), Reason: "order already in fulfillment"}
			}
			return stamp(next, now), true, nil
		}

		if result.ExternalTransactionRef == "" {
			return o, false, domain.Invalid("externalTransactionRef", "required for a successful payment")
		}
		if o.Status == models.StatusCancelled {
			return o, false, fmt.Errorf("order %s was cancelled before payment %s confirmed: %w", o.HumanReference, result.ExternalTransactionRef, domain.ErrConflict)
		}

		ref := result.ExternalTransactionRef
		paidAt := now
		next.Payment.Status = models.PaymentPaid
		next.Payment.ExternalTransactionRef = &ref
		next.Payment.PaidAt = &paidAt
		if o.Status == models.StatusPending {
			next.Status = models.StatusProcessing
		}
		return stamp(next, now), true, nil
	}
}

func decideFulfillment(target models.OrderStatus, by Actor, now time.Time) decideFunc {
	return func(o models.Order) (models.Order, bool, error) {
		if !by.Admin {
			if o.OwnerID == nil || *o.OwnerID != by.ID {
				return o, false, fmt.Errorf("order %s: %w", o.ID, domain.ErrForbidden)
			}
			if target != models.StatusCancelled {
				return o, false, domain.StateError{From: string(o.Status), To: string(target), Reason: "customers may only cancel"}
			}
		}

		if o.Status == target {
			return o, false, nil
		}
		if isTerminal(o.Status) {
			return o, false, domain.StateError{From: string(o.Status), To: string(target), Reason: "order is in a terminal state"}
		}

		if target == models.StatusCancelled && !by.Admin {
			if o.IsPaid() {
				return o, false, fmt.Errorf("order %s is already paid: %w", o.HumanReference, domain.ErrConflict)
			}
			if o.Status != models.StatusPending {
				return o, false, domain.StateError{From: string(o.Status), To: string(target), Reason: "only pending orders can be cancelled by the customer"}
			}
		}

		if !canMove(o.Status, target) {
			reason := "transition not allowed"
			switch {
			case target == models.StatusPending:
				reason = "orders never return to pending"
			case target == models.StatusShipped || target == models.StatusDelivered:
				reason = "fulfillment steps cannot be skipped"
			}
			return o, false, domain.StateError{From: string(o.Status), To: string(target), Reason: reason}
		}

		if target == models.StatusProcessing && o.Payment.Method == models.PaymentGateway && !o.IsPaid() {
			return o, false, domain.StateError{From: string(o.Status), To: string(target), Reason: "awaiting gateway payment"}
		}

		next := o
		next.Status = target
		switch target {
		case models.StatusCancelled:
			next.CancelReason = by.Reason
			if next.CancelReason == "" {
				if by.Admin {
					next.CancelReason = "cancelled by admin"
				} else {
					next.CancelReason = "cancelled by customer"
				}
			}
		case models.StatusDelivered:
			if o.Payment.Method == models.PaymentCash && !o.IsPaid() {
				paidAt := now
				next.Payment.Status = models.PaymentPaid
				next.Payment.PaidAt = &paidAt
			}
		}
		return stamp(next, now), true, nil
	}
}

func decidePaymentRequest(gatewayRef string, at time.Time) decideFunc {
	return func(o models.Order) (models.Order, bool, error) {
		if o.Payment.Method != models.PaymentGateway {
			return o, false, domain.StateError{Reason: "cash orders are not paid through the gateway"}
		}
		if o.IsPaid() {
			return o, false, domain.StateError{Reason: "order is already paid"}
		}
		if o.Status != models.StatusPending {
			return o, false, domain.StateError{Reason: "order is " + string(o.Status)}
		}
		next := o
		requestedAt := at
		next.Payment.GatewayOrderRef = gatewayRef
		next.Payment.RequestedAt = &requestedAt
		return stamp(next, at), true, nil
	}
}

func stamp(o models.Order, now time.Time) models.Order {
	o.UpdatedAt = now
	o.Version++
	return o
}

// casUpdate applies decide with optimistic concurrency. save must write next
// only if the stored version still equals prev.Version and report whether it
// did.
func casUpdate(
	ctx context.Context,
	load func(ctx context.Context) (models.Order, error),
	decide decideFunc,
	save func(ctx context.Context, prev, next models.Order) (bool, error),
) (models.Order, bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := load(ctx)
		if err != nil {
			return models.Order{}, false, err
		}
		next, changed, err := decide(current)
		if err != nil {
			return current, false, err
		}
		if !changed {
			return current, false, nil
		}
		ok, err := save(ctx, current, next)
		if err != nil {
			return current, false, err
		}
		if ok {
			return next, true, nil
		}
		if err := ctx.Err(); err != nil {
			return current, false, err
		}
	}
	return models.Order{}, false, fmt.Errorf("order update lost %d races: %w", maxCASAttempts, domain.ErrConflict)
}
