package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/heremarket/orders/internal/catalog"
	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/money"
	"github.com/heremarket/orders/internal/notify"
	"github.com/heremarket/orders/internal/payment"
)

// ErrAmountMismatch means a verified gateway result reports a different amount
// than the order total.
var ErrAmountMismatch = errors.New("payment amount does not match order total")

// ErrPaymentDisabled is returned when no gateway is configured.
var ErrPaymentDisabled = fmt.Errorf("online payment is not configured: %w", payment.ErrGatewayUnavailable)

const maxReferenceAttempts = 5

// Catalog resolves authoritative prices.
type Catalog interface {
	Prices(ctx context.Context, refs []string) (map[string]catalog.PricedProduct, error)
}

// Coupons resolves a discount code against a subtotal. An empty code is 0.
type Coupons interface {
	Discount(ctx context.Context, code string, subtotal int64) (int64, error)
}

// Gateway is the payment provider adapter.
type Gateway interface {
	BuildRedirectURL(ctx context.Context, req payment.RedirectRequest) (payment.Redirect, error)
	VerifyCallback(params url.Values) (payment.CallbackResult, error)
	QueryTransaction(ctx context.Context, req payment.QueryRequest) (payment.CallbackResult, error)
}

// Notifier accepts events without blocking.
type Notifier interface {
	Enqueue(ev notify.Event) bool
}

// Retry bounds the backoff used for transient gateway failures.
type Retry struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

var defaultRetry = Retry{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}

type Deps struct {
	Store    Store
	Catalog  Catalog
	Coupons  Coupons
	Gateway  Gateway
	Notifier Notifier
	Retry    Retry
}

// Service orchestrates order creation, payment and fulfillment. All state
// changes go through Store.
type Service struct {
	store    Store
	catalog  Catalog
	coupons  Coupons
	gateway  Gateway
	notifier Notifier
	retry    Retry

	now          func() time.Time
	newReference func() (string, error)
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewService(d Deps) *Service {
	retry := d.Retry
	if retry.Attempts <= 0 {
		retry = defaultRetry
	}
	return &Service{
		store:        d.Store,
		catalog:      d.Catalog,
		coupons:      d.Coupons,
		gateway:      d.Gateway,
		notifier:     d.Notifier,
		retry:        retry,
		now:          time.Now,
		newReference: NewReference,
		sleep:        sleepContext,
	}
}

type CartItem struct {
	ProductRef string
	Quantity   int
}

type CreateOrderInput struct {
	Items         []CartItem
	PaymentMethod models.PaymentMethod
	DiscountCode  string
	Customer      models.OrderCustomer
	OwnerID       *string
}

// CreateOrder prices the cart from the catalog, never from the client, and
// persists a pending unpaid order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	if len(in.Items) == 0 {
		return models.Order{}, domain.Invalid("items", "cart is empty")
	}
	if in.PaymentMethod != models.PaymentCash && in.PaymentMethod != models.PaymentGateway {
		return models.Order{}, domain.Invalid("paymentMethod", "must be cash or gateway")
	}
	if strings.TrimSpace(in.Customer.Title) == "" || strings.TrimSpace(in.Customer.Detail) == "" {
		return models.Order{}, domain.Invalid("customer", "title and detail are required")
	}

	refs := make([]string, 0, len(in.Items))
	for i, item := range in.Items {
		ref := strings.TrimSpace(item.ProductRef)
		if ref == "" {
			return models.Order{}, domain.Invalid(fmt.Sprintf("items[%d].productRef", i), "required")
		}
		if item.Quantity < 1 {
			return models.Order{}, domain.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		refs = append(refs, ref)
	}

	prices, err := s.catalog.Prices(ctx, refs)
	if err != nil {
		return models.Order{}, err
	}

	items := make([]models.LineItem, len(in.Items))
	lines := make([]money.Line, len(in.Items))
	for i, item := range in.Items {
		p, ok := prices[refs[i]]
		if !ok {
			return models.Order{}, domain.Invalid(fmt.Sprintf("items[%d].productRef", i), "product not available")
		}
		items[i] = models.LineItem{ProductRef: p.Ref, Name: p.Name, UnitPrice: p.UnitPrice, Quantity: item.Quantity}
		lines[i] = money.Line{UnitPrice: p.UnitPrice, Quantity: item.Quantity}
	}

	gross, err := money.ComputeTotal(lines, 0)
	if err != nil {
		return models.Order{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(in.DiscountCode))
	var discount int64
	if code != "" && s.coupons != nil {
		discount, err = s.coupons.Discount(ctx, code, gross.Subtotal)
		if err != nil {
			return models.Order{}, err
		}
	}

	totals, err := money.ComputeTotal(lines, discount)
	if err != nil {
		return models.Order{}, err
	}
	if in.PaymentMethod == models.PaymentGateway && totals.Total == 0 {
		return models.Order{}, domain.Invalid("paymentMethod", "nothing to pay online for a free order")
	}

	now := s.now()
	order := models.Order{
		OwnerID:        in.OwnerID,
		Items:          items,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.Discount,
		Total:          totals.Total,
		Customer:       in.Customer,
		Status:         models.StatusPending,
		Payment:        models.Payment{Method: in.PaymentMethod, Status: models.PaymentUnpaid},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if discount > 0 {
		order.DiscountCode = code
	}

	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		ref, err := s.newReference()
		if err != nil {
			return models.Order{}, fmt.Errorf("generate reference: %w", err)
		}
		order.ID = ""
		order.HumanReference = ref

		id, err := s.store.Create(ctx, &order)
		if errors.Is(err, domain.ErrConflict) {
			log.Printf("[ORDER] [WARN] reference collision on attempt %d: %v", attempt, err)
			continue
		}
		if err != nil {
			return models.Order{}, err
		}
		order.ID = id
		log.Printf("[ORDER] [INFO] created order %s ref=%s method=%s total=%s", id, ref, order.Payment.Method, money.Format(order.Total))
		return order, nil
	}
	return models.Order{}, fmt.Errorf("could not allocate an order reference after %d attempts: %w", maxReferenceAttempts, domain.ErrConflict)
}

type PaymentRedirect struct {
	OrderID   string    `json:"orderId"`
	Reference string    `json:"reference"`
	URL       string    `json:"paymentUrl"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// RequestPayment builds a signed gateway redirect for an unpaid gateway order
// and records the attempt on the order.
func (s *Service) RequestPayment(ctx context.Context, orderID, clientIP string) (PaymentRedirect, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return PaymentRedirect{}, err
	}
	switch {
	case order.Payment.Method == models.PaymentCash:
		return PaymentRedirect{}, domain.StateError{Reason: "cash orders are paid on delivery"}
	case order.IsPaid():
		return PaymentRedirect{}, domain.StateError{Reason: "order is already paid"}
	case order.Status != models.StatusPending:
		return PaymentRedirect{}, domain.StateError{Reason: "order is " + string(order.Status)}
	case order.Total <= 0:
		return PaymentRedirect{}, domain.StateError{Reason: "order has nothing to pay"}
	}
	if s.gateway == nil {
		return PaymentRedirect{}, ErrPaymentDisabled
	}

	var redirect payment.Redirect
	err = s.withRetry(ctx, "redirect "+order.HumanReference, func(ctx context.Context) error {
		var err error
		redirect, err = s.gateway.BuildRedirectURL(ctx, payment.RedirectRequest{
			OrderRef: order.HumanReference,
			Amount:   order.Total,
			ClientIP: clientIP,
		})
		return err
	})
	if err != nil {
		return PaymentRedirect{}, err
	}

	if _, err := s.store.MarkPaymentRequested(ctx, order.ID, order.HumanReference, redirect.CreatedAt); err != nil {
		return PaymentRedirect{}, err
	}

	log.Printf("[PAYMENT] [INFO] redirect issued for order %s amount=%s", order.HumanReference, money.Format(order.Total))
	return PaymentRedirect{
		OrderID:   order.ID,
		Reference: order.HumanReference,
		URL:       redirect.URL,
		Amount:    order.Total,
		CreatedAt: redirect.CreatedAt,
	}, nil
}

// PaymentOutcome reports what a verified gateway result did to an order.
type PaymentOutcome struct {
	Order   models.Order
	Success bool
	Applied bool
	Code    string
}

// HandleCallback verifies a gateway callback and applies it. Unverified
// callbacks never reach the store.
func (s *Service) HandleCallback(ctx context.Context, params url.Values) (PaymentOutcome, error) {
	if s.gateway == nil {
		return PaymentOutcome{}, ErrPaymentDisabled
	}

	result, err := s.gateway.VerifyCallback(params)
	if err != nil {
		var sigErr *payment.SignatureError
		if errors.As(err, &sigErr) {
			log.Printf("[PAYMENT] [SECURITY] rejected callback with invalid signature: %s", sigErr.Dump())
		} else {
			log.Printf("[PAYMENT] [WARN] rejected callback: %v", err)
		}
		return PaymentOutcome{}, err
	}
	if !result.Valid {
		return PaymentOutcome{}, payment.ErrInvalidSignature
	}

	return s.applyVerified(ctx, result, "callback")
}

// ReconcilePayment asks the gateway for the outcome of the last payment
// attempt and applies it the same way a callback would.
func (s *Service) ReconcilePayment(ctx context.Context, orderID, clientIP string) (PaymentOutcome, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if order.Payment.Method != models.PaymentGateway {
		return PaymentOutcome{}, domain.StateError{Reason: "cash orders have no gateway transaction"}
	}
	if order.IsPaid() {
		return PaymentOutcome{Order: order, Success: true, Code: order.Payment.ResponseCode}, nil
	}
	if order.Payment.RequestedAt == nil {
		return PaymentOutcome{}, domain.StateError{Reason: "payment was never requested"}
	}
	if s.gateway == nil {
		return PaymentOutcome{}, ErrPaymentDisabled
	}

	gatewayRef := order.Payment.GatewayOrderRef
	if gatewayRef == "" {
		gatewayRef = order.HumanReference
	}

	var result payment.CallbackResult
	err = s.withRetry(ctx, "query "+gatewayRef, func(ctx context.Context) error {
		var err error
		result, err = s.gateway.QueryTransaction(ctx, payment.QueryRequest{
			OrderRef:        gatewayRef,
			TransactionDate: *order.Payment.RequestedAt,
			ClientIP:        clientIP,
		})
		return err
	})
	if err != nil {
		log.Printf("[PAYMENT] [WARN] reconcile %s: %v", order.HumanReference, err)
		return PaymentOutcome{}, err
	}

	return s.applyVerified(ctx, result, "reconcile")
}

func (s *Service) applyVerified(ctx context.Context, result payment.CallbackResult, source string) (PaymentOutcome, error) {
	order, err := s.store.GetByReference(ctx, result.OrderRef)
	if err != nil {
		log.Printf("[PAYMENT] [WARN] %s for unknown order %q: %v", source, result.OrderRef, err)
		return PaymentOutcome{}, err
	}
	if result.Amount != order.Total {
		log.Printf("[PAYMENT] [SECURITY] %s amount %d does not match order %s total %d", source, result.Amount, order.HumanReference, order.Total)
		return PaymentOutcome{Order: order}, fmt.Errorf("order %s: got %d want %d: %w", order.HumanReference, result.Amount, order.Total, ErrAmountMismatch)
	}

	updated, applied, err := s.store.ApplyPaymentResult(ctx, order.ID, PaymentResult{
		Success:                result.Success,
		ExternalTransactionRef: result.ExternalTransactionRef,
		ResponseCode:           result.ResponseCode,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) && result.Success {
			log.Printf("[PAYMENT] [ERROR] %s: payment %s for order %s needs manual refund: %v", source, result.ExternalTransactionRef, order.HumanReference, err)
		}
		return PaymentOutcome{Order: order}, err
	}

	outcome := PaymentOutcome{Order: updated, Success: result.Success, Applied: applied, Code: result.ResponseCode}
	if !applied {
		log.Printf("[PAYMENT] [INFO] %s for order %s already applied (code %s)", source, order.HumanReference, result.ResponseCode)
		return outcome, nil
	}

	if result.Success {
		log.Printf("[PAYMENT] [INFO] order %s paid, transaction %s", order.HumanReference, result.ExternalTransactionRef)
		s.notify(notify.EventPaymentConfirmed, updated)
	} else {
		log.Printf("[PAYMENT] [INFO] order %s payment failed with code %s", order.HumanReference, result.ResponseCode)
		s.notify(notify.EventOrderCancelled, updated)
	}
	return outcome, nil
}

// GetOrderStatus is the public tracking lookup.
func (s *Service) GetOrderStatus(ctx context.Context, reference string) (models.OrderStatusView, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if !ValidReference(reference) {
		return models.OrderStatusView{}, domain.Invalid("reference", "malformed order reference")
	}
	order, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return models.OrderStatusView{}, err
	}
	return order.StatusView(), nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return s.store.Get(ctx, orderID)
}

// AdminSetStatus moves an order along fulfillment on behalf of back office.
func (s *Service) AdminSetStatus(ctx context.Context, orderID string, status models.OrderStatus, adminID, reason string) (models.Order, error) {
	by := AdminActor(adminID)
	by.Reason = strings.TrimSpace(reason)

	updated, changed, err := s.store.SetFulfillmentStatus(ctx, orderID, status, by)
	if err != nil {
		return models.Order{}, err
	}
	if changed {
		log.Printf("[ORDER] [INFO] admin %s moved order %s to %s", adminID, updated.HumanReference, status)
		s.notifyStatus(updated)
	}
	return updated, nil
}

// CancelOrder is the customer's own cancellation. It fails with ErrConflict
// once the order is paid.
func (s *Service) CancelOrder(ctx context.Context, orderID, ownerID, reason string) (models.Order, error) {
	if ownerID == "" {
		return models.Order{}, domain.ErrForbidden
	}
	by := OwnerActor(ownerID)
	by.Reason = strings.TrimSpace(reason)

	updated, changed, err := s.store.SetFulfillmentStatus(ctx, orderID, models.StatusCancelled, by)
	if err != nil {
		return models.Order{}, err
	}
	if changed {
		log.Printf("[ORDER] [INFO] customer %s cancelled order %s", ownerID, updated.HumanReference)
		s.notify(notify.EventOrderCancelled, updated)
	}
	return updated, nil
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) ListOwnerOrders(ctx context.Context, ownerID string, limit, offset int64) ([]models.Order, error) {
	if ownerID == "" {
		return nil, domain.ErrForbidden
	}
	return s.store.List(ctx, ListFilter{OwnerID: ownerID, Limit: limit, Offset: offset})
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) notifyStatus(o models.Order) {
	switch o.Status {
	case models.StatusShipped:
		s.notify(notify.EventOrderShipped, o)
	case models.StatusDelivered:
		s.notify(notify.EventOrderDelivered, o)
	case models.StatusCancelled:
		s.notify(notify.EventOrderCancelled, o)
	}
}

func (s *Service) notify(kind notify.EventKind, o models.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(notify.NewEvent(kind, o))
}

// withRetry retries fn with exponential backoff while it reports the gateway
// as unavailable.
func (s *Service) withRetry(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	delay := s.retry.Initial
	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		if attempt > 1 {
			if serr := s.sleep(ctx, delay); serr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", what, serr, err)
			}
			delay *= 2
			if s.retry.Max > 0 && delay > s.retry.Max {
				delay = s.retry.Max
			}
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, payment.ErrGatewayUnavailable) {
			return err
		}
		log.Printf("[PAYMENT] [WARN] %s attempt %d/%d: %v", what, attempt, s.retry.Attempts, err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
