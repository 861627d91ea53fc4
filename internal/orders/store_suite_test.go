package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
)

// testOwnerPrefix marks rows written by the store suite so database-backed
// runs can clean up after themselves.
const testOwnerPrefix = "test-"

func newTestOrder(t *testing.T, method models.PaymentMethod) *models.Order {
	t.Helper()
	ref, err := NewReference()
	require.NoError(t, err)
	owner := testOwnerPrefix + ref
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Order{
		HumanReference: ref,
		OwnerID:        &owner,
		Items: []models.LineItem{
			{ProductRef: "p-1", Name: "Elma", UnitPrice: 4500, Quantity: 2},
			{ProductRef: "p-2", Name: "Armut", UnitPrice: 11000, Quantity: 1},
		},
		Subtotal:  20000,
		Total:     20000,
		Customer:  models.OrderCustomer{Title: "Ev", Detail: "Kadikoy, Istanbul"},
		Status:    models.StatusPending,
		Payment:   models.Payment{Method: method, Status: models.PaymentUnpaid},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func mustCreate(t *testing.T, s Store, o *models.Order) models.Order {
	t.Helper()
	id, err := s.Create(context.Background(), o)
	require.NoError(t, err)
	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

func paid(ref string) PaymentResult {
	return PaymentResult{Success: true, ExternalTransactionRef: ref, ResponseCode: "00"}
}

func failed(code string) PaymentResult {
	return PaymentResult{Success: false, ResponseCode: code}
}

// runStoreSuite checks the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		s := open(t)
		o := newTestOrder(t, models.PaymentGateway)
		got := mustCreate(t, s, o)

		assert.Equal(t, o.HumanReference, got.HumanReference)
		assert.Equal(t, o.Items, got.Items)
		assert.Equal(t, int64(20000), got.Total)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, models.PaymentUnpaid, got.Payment.Status)
		assert.Nil(t, got.Payment.ExternalTransactionRef)
		assert.Equal(t, *o.OwnerID, *got.OwnerID)

		byRef, err := s.GetByReference(ctx, o.HumanReference)
		require.NoError(t, err)
		assert.Equal(t, got.ID, byRef.ID)
	})

	t.Run("missing order", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.GetByReference(ctx, "ZZZZZZZZZZ")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, _, err = s.ApplyPaymentResult(ctx, "does-not-exist", paid("TX"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate reference conflicts", func(t *testing.T) {
		s := open(t)
		first := newTestOrder(t, models.PaymentCash)
		mustCreate(t, s, first)

		second := newTestOrder(t, models.PaymentCash)
		second.HumanReference = first.HumanReference
		_, err := s.Create(ctx, second)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("successful payment is idempotent", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		tx := "TX" + o.HumanReference

		first, applied, err := s.ApplyPaymentResult(ctx, o.ID, paid(tx))
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, models.PaymentPaid, first.Payment.Status)
		assert.Equal(t, models.StatusProcessing, first.Status)
		assert.Equal(t, tx, first.ExternalRef())
		assert.NotNil(t, first.Payment.PaidAt)

		again, applied, err := s.ApplyPaymentResult(ctx, o.ID, paid(tx))
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, first.Version, again.Version)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.ExternalRef(), again.ExternalRef())
	})

	t.Run("late failure never unpays", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		_, _, err := s.ApplyPaymentResult(ctx, o.ID, paid("TX"+o.HumanReference))
		require.NoError(t, err)

		after, applied, err := s.ApplyPaymentResult(ctx, o.ID, failed("24"))
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, models.PaymentPaid, after.Payment.Status)
		assert.Equal(t, models.StatusProcessing, after.Status)
	})

	t.Run("second transaction for a paid order conflicts", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		_, _, err := s.ApplyPaymentResult(ctx, o.ID, paid("TXA"+o.HumanReference))
		require.NoError(t, err)

		_, _, err = s.ApplyPaymentResult(ctx, o.ID, paid("TXB"+o.HumanReference))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("failure cancels an unpaid order", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))

		got, applied, err := s.ApplyPaymentResult(ctx, o.ID, failed("24"))
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.Equal(t, models.PaymentUnpaid, got.Payment.Status)
		assert.Equal(t, "24", got.Payment.ResponseCode)
		assert.Contains(t, got.CancelReason, "24")

		_, _, err = s.ApplyPaymentResult(ctx, o.ID, paid("TX"+o.HumanReference))
		assert.ErrorIs(t, err, domain.ErrConflict)

		stored, err := s.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, stored.Status)
		assert.Equal(t, models.PaymentUnpaid, stored.Payment.Status)
	})

	t.Run("cash orders reject gateway results", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentCash))
		_, _, err := s.ApplyPaymentResult(ctx, o.ID, paid("TX"+o.HumanReference))
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("payment request is recorded", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		at := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)

		got, err := s.MarkPaymentRequested(ctx, o.ID, o.HumanReference, at)
		require.NoError(t, err)
		assert.Equal(t, o.HumanReference, got.Payment.GatewayOrderRef)
		require.NotNil(t, got.Payment.RequestedAt)
		assert.True(t, at.Equal(*got.Payment.RequestedAt))
		assert.Nil(t, got.Payment.ExternalTransactionRef)

		stored, err := s.Get(ctx, o.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Payment.RequestedAt)
		assert.True(t, at.Equal(*stored.Payment.RequestedAt))

		cash := mustCreate(t, s, newTestOrder(t, models.PaymentCash))
		_, err = s.MarkPaymentRequested(ctx, cash.ID, cash.HumanReference, at)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("cash order walks the fulfillment sequence", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentCash))
		admin := AdminActor("admin-1")

		_, _, err := s.SetFulfillmentStatus(ctx, o.ID, models.StatusShipped, admin)
		assert.ErrorIs(t, err, domain.ErrInvalidState, "shipped requires processing first")

		for _, next := range []models.OrderStatus{models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
			got, changed, err := s.SetFulfillmentStatus(ctx, o.ID, next, admin)
			require.NoError(t, err, next)
			assert.True(t, changed)
			assert.Equal(t, next, got.Status)
		}

		delivered, err := s.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, delivered.Payment.Status)
		assert.Nil(t, delivered.Payment.ExternalTransactionRef)

		for _, next := range []models.OrderStatus{models.StatusCancelled, models.StatusPending, models.StatusShipped} {
			_, _, err := s.SetFulfillmentStatus(ctx, o.ID, next, admin)
			assert.ErrorIs(t, err, domain.ErrInvalidState, next)
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentCash))
		admin := AdminActor("admin-1")

		got, changed, err := s.SetFulfillmentStatus(ctx, o.ID, models.StatusCancelled, admin)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "cancelled by admin", got.CancelReason)

		_, changed, err = s.SetFulfillmentStatus(ctx, o.ID, models.StatusCancelled, admin)
		require.NoError(t, err)
		assert.False(t, changed)

		for _, next := range []models.OrderStatus{models.StatusPending, models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
			_, _, err := s.SetFulfillmentStatus(ctx, o.ID, next, admin)
			assert.ErrorIs(t, err, domain.ErrInvalidState, next)
		}
	})

	t.Run("unpaid gateway order waits for payment", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		_, _, err := s.SetFulfillmentStatus(ctx, o.ID, models.StatusProcessing, AdminActor("admin-1"))
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("owner cancellation rules", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))

		_, _, err := s.SetFulfillmentStatus(ctx, o.ID, models.StatusCancelled, OwnerActor("someone-else"))
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, _, err = s.SetFulfillmentStatus(ctx, o.ID, models.StatusShipped, OwnerActor(*o.OwnerID))
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		_, _, err = s.ApplyPaymentResult(ctx, o.ID, paid("TX"+o.HumanReference))
		require.NoError(t, err)
		_, _, err = s.SetFulfillmentStatus(ctx, o.ID, models.StatusCancelled, OwnerActor(*o.OwnerID))
		assert.ErrorIs(t, err, domain.ErrConflict)

		unpaid := mustCreate(t, s, newTestOrder(t, models.PaymentCash))
		got, changed, err := s.SetFulfillmentStatus(ctx, unpaid.ID, models.StatusCancelled, OwnerActor(*unpaid.OwnerID))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "cancelled by customer", got.CancelReason)
	})

	t.Run("concurrent identical callbacks apply once", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))
		tx := "TX" + o.HumanReference

		const callers = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
			errs    []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := s.ApplyPaymentResult(ctx, o.ID, paid(tx))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					applied++
				}
			}()
		}
		wg.Wait()

		assert.Empty(t, errs)
		assert.Equal(t, 1, applied)
		got, err := s.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, got.Payment.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("concurrent conflicting callbacks settle on one outcome", func(t *testing.T) {
		s := open(t)
		o := mustCreate(t, s, newTestOrder(t, models.PaymentGateway))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
		)
		results := []PaymentResult{paid("TX" + o.HumanReference), failed("24"), paid("TX" + o.HumanReference), failed("11")}
		for _, r := range results {
			wg.Add(1)
			go func(r PaymentResult) {
				defer wg.Done()
				_, ok, _ := s.ApplyPaymentResult(ctx, o.ID, r)
				if ok {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}(r)
		}
		wg.Wait()

		assert.Equal(t, 1, applied)
		got, err := s.Get(ctx, o.ID)
		require.NoError(t, err)
		if got.IsPaid() {
			assert.Equal(t, models.StatusProcessing, got.Status)
		} else {
			assert.Equal(t, models.StatusCancelled, got.Status)
		}
	})

	t.Run("list filters and pages newest first", func(t *testing.T) {
		s := open(t)
		base := time.Now().UTC().Truncate(time.Millisecond)
		owner := testOwnerPrefix + "list-" + newTestOrder(t, models.PaymentCash).HumanReference

		var ids []string
		for i := 0; i < 4; i++ {
			o := newTestOrder(t, models.PaymentCash)
			o.OwnerID = &owner
			o.CreatedAt = base.Add(time.Duration(i) * time.Second)
			o.UpdatedAt = o.CreatedAt
			ids = append(ids, mustCreate(t, s, o).ID)
		}
		_, _, err := s.SetFulfillmentStatus(ctx, ids[0], models.StatusCancelled, AdminActor("admin-1"))
		require.NoError(t, err)

		all, err := s.List(ctx, ListFilter{OwnerID: owner})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, orderIDs(all))

		page, err := s.List(ctx, ListFilter{OwnerID: owner, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[1]}, orderIDs(page))

		cancelled, err := s.List(ctx, ListFilter{OwnerID: owner, Status: models.StatusCancelled})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[0]}, orderIDs(cancelled))
	})
}

func orderIDs(list []models.Order) []string {
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.ID
	}
	return out
}
