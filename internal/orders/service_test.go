package orders

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremarket/orders/internal/catalog"
	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/money"
	"github.com/heremarket/orders/internal/notify"
	"github.com/heremarket/orders/internal/payment"
)

const testSecret = "SECRET1"

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.PricedProduct
}

func (f *fakeCatalog) Prices(_ context.Context, refs []string) (map[string]catalog.PricedProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]catalog.PricedProduct)
	for _, ref := range refs {
		p, ok := f.products[ref]
		if !ok {
			return nil, domain.Invalid("items", "unknown product "+ref)
		}
		out[ref] = p
	}
	return out, nil
}

func (f *fakeCatalog) setPrice(ref string, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[ref]
	p.UnitPrice = price
	f.products[ref] = p
}

type fakeCoupons map[string]int64

func (f fakeCoupons) Discount(_ context.Context, code string, subtotal int64) (int64, error) {
	d, ok := f[code]
	if !ok {
		return 0, domain.Invalid("discountCode", "unknown coupon")
	}
	if d > subtotal {
		d = subtotal
	}
	return d, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Enqueue(ev notify.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingNotifier) kinds() []notify.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// stubGateway overrides selected calls of the real adapter.
type stubGateway struct {
	*payment.VNPay
	build func(ctx context.Context, req payment.RedirectRequest) (payment.Redirect, error)
	query func(ctx context.Context, req payment.QueryRequest) (payment.CallbackResult, error)
}

func (g *stubGateway) BuildRedirectURL(ctx context.Context, req payment.RedirectRequest) (payment.Redirect, error) {
	if g.build != nil {
		return g.build(ctx, req)
	}
	return g.VNPay.BuildRedirectURL(ctx, req)
}

func (g *stubGateway) QueryTransaction(ctx context.Context, req payment.QueryRequest) (payment.CallbackResult, error) {
	if g.query != nil {
		return g.query(ctx, req)
	}
	return g.VNPay.QueryTransaction(ctx, req)
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	catalog  *fakeCatalog
	gateway  *stubGateway
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vnp, err := payment.NewVNPay(payment.Config{
		TmnCode:    "TESTCODE",
		HashSecret: testSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://shop.example.com/payment/vnpay/return",
	}, nil)
	require.NoError(t, err)

	f := &fixture{
		store: NewMemoryStore(),
		catalog: &fakeCatalog{products: map[string]catalog.PricedProduct{
			"p-apple": {Ref: "p-apple", Name: "Elma", UnitPrice: 4550},
			"p-pear":  {Ref: "p-pear", Name: "Armut", UnitPrice: 101},
		}},
		gateway:  &stubGateway{VNPay: vnp},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(Deps{
		Store:    f.store,
		Catalog:  f.catalog,
		Coupons:  fakeCoupons{"SAVE10": 1000},
		Gateway:  f.gateway,
		Notifier: f.notifier,
	})
	f.svc.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func (f *fixture) createOrder(t *testing.T, method models.PaymentMethod, owner string) models.Order {
	t.Helper()
	in := CreateOrderInput{
		Items:         []CartItem{{ProductRef: "p-apple", Quantity: 2}, {ProductRef: "p-pear", Quantity: 3}},
		PaymentMethod: method,
		Customer:      models.OrderCustomer{Title: "Ev", Detail: "Kadikoy, Istanbul", Email: "ayse@example.com"},
	}
	if owner != "" {
		in.OwnerID = &owner
	}
	o, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	return o
}

// callback builds gateway-signed return parameters for an order.
func callback(o models.Order, code, txn string, amount int64) url.Values {
	p := url.Values{
		"vnp_Amount":            {strconv.FormatInt(amount, 10)},
		"vnp_BankCode":          {"NCB"},
		"vnp_OrderInfo":         {"Thanh toan don hang " + o.HumanReference},
		"vnp_PayDate":           {"20250101121003"},
		"vnp_ResponseCode":      {code},
		"vnp_TmnCode":           {"TESTCODE"},
		"vnp_TransactionNo":     {txn},
		"vnp_TransactionStatus": {code},
		"vnp_TxnRef":            {o.HumanReference},
	}
	p.Set(payment.ParamSecureHash, payment.Sign(testSecret, payment.Canonicalize(p)))
	return p
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	owner := "user-1"
	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:         []CartItem{{ProductRef: "p-apple", Quantity: 2}, {ProductRef: "p-pear", Quantity: 3}},
		PaymentMethod: models.PaymentGateway,
		DiscountCode:  " save10 ",
		Customer:      models.OrderCustomer{Title: "Ev", Detail: "Kadikoy"},
		OwnerID:       &owner,
	})
	require.NoError(t, err)

	assert.True(t, ValidReference(o.HumanReference))
	assert.Equal(t, int64(2*4550+3*101), o.Subtotal)
	assert.Equal(t, int64(1000), o.DiscountAmount)
	assert.Equal(t, "SAVE10", o.DiscountCode)
	assert.Equal(t, o.Subtotal-1000, o.Total)
	assert.Equal(t, "Elma", o.Items[0].Name)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, models.PaymentUnpaid, o.Payment.Status)

	stored, err := f.store.GetByReference(context.Background(), o.HumanReference)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
}

func TestCreateOrderTotalSurvivesPriceChange(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentCash, "")

	f.catalog.setPrice("p-apple", 99999)

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, stored.Total)
	assert.Equal(t, int64(4550), stored.Items[0].UnitPrice)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	customer := models.OrderCustomer{Title: "Ev", Detail: "Kadikoy"}

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{"empty cart", CreateOrderInput{PaymentMethod: models.PaymentCash, Customer: customer}},
		{"zero quantity", CreateOrderInput{Items: []CartItem{{ProductRef: "p-apple", Quantity: 0}}, PaymentMethod: models.PaymentCash, Customer: customer}},
		{"negative quantity", CreateOrderInput{Items: []CartItem{{ProductRef: "p-apple", Quantity: -1}}, PaymentMethod: models.PaymentCash, Customer: customer}},
		{"unknown product", CreateOrderInput{Items: []CartItem{{ProductRef: "p-ghost", Quantity: 1}}, PaymentMethod: models.PaymentCash, Customer: customer}},
		{"no method", CreateOrderInput{Items: []CartItem{{ProductRef: "p-apple", Quantity: 1}}, Customer: customer}},
		{"no address", CreateOrderInput{Items: []CartItem{{ProductRef: "p-apple", Quantity: 1}}, PaymentMethod: models.PaymentCash}},
		{"unknown coupon", CreateOrderInput{Items: []CartItem{{ProductRef: "p-apple", Quantity: 1}}, PaymentMethod: models.PaymentCash, DiscountCode: "NOPE", Customer: customer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	all, err := f.store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateOrderRejectsFreeGatewayOrder(t *testing.T) {
	f := newFixture(t)
	f.svc.coupons = fakeCoupons{"FREE": 1 << 40}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:         []CartItem{{ProductRef: "p-pear", Quantity: 1}},
		PaymentMethod: models.PaymentGateway,
		DiscountCode:  "FREE",
		Customer:      models.OrderCustomer{Title: "Ev", Detail: "Kadikoy"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateOrderRetriesReferenceCollisions(t *testing.T) {
	f := newFixture(t)
	taken := f.createOrder(t, models.PaymentCash, "")

	refs := []string{taken.HumanReference, taken.HumanReference, "FRESH00001"}
	f.svc.newReference = func() (string, error) {
		r := refs[0]
		refs = refs[1:]
		return r, nil
	}

	o := f.createOrder(t, models.PaymentCash, "")
	assert.Equal(t, "FRESH00001", o.HumanReference)

	f.svc.newReference = func() (string, error) { return taken.HumanReference, nil }
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:         []CartItem{{ProductRef: "p-apple", Quantity: 1}},
		PaymentMethod: models.PaymentCash,
		Customer:      models.OrderCustomer{Title: "Ev", Detail: "Kadikoy"},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRequestPaymentRejectsCashAndPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cash := f.createOrder(t, models.PaymentCash, "")
	_, err := f.svc.RequestPayment(ctx, cash.ID, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	o := f.createOrder(t, models.PaymentGateway, "")
	_, err = f.svc.HandleCallback(ctx, callback(o, "00", "TX1", o.Total))
	require.NoError(t, err)
	_, err = f.svc.RequestPayment(ctx, o.ID, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.RequestPayment(ctx, "missing", "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestPaymentAmountMatchesStoredTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")

	redirect, err := f.svc.RequestPayment(ctx, o.ID, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, o.HumanReference, redirect.Reference)

	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	params := u.Query()
	assert.Equal(t, strconv.FormatInt(o.Total, 10), params.Get("vnp_Amount"))
	assert.Equal(t, o.HumanReference, params.Get("vnp_TxnRef"))
	assert.Equal(t, "10.0.0.7", params.Get("vnp_IpAddr"))

	// the total in major units, formatted and parsed back, lands on the same minor amount
	major, err := strconv.ParseFloat(money.Format(o.Total), 64)
	require.NoError(t, err)
	back, err := money.FromMajor(major)
	require.NoError(t, err)
	assert.Equal(t, o.Total, back)

	verified, err := f.gateway.VerifyCallback(params)
	require.NoError(t, err)
	assert.Equal(t, o.Total, verified.Amount)

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.HumanReference, stored.Payment.GatewayOrderRef)
	require.NotNil(t, stored.Payment.RequestedAt)
	assert.True(t, redirect.CreatedAt.Equal(*stored.Payment.RequestedAt))
	assert.Nil(t, stored.Payment.ExternalTransactionRef)
	assert.Equal(t, models.PaymentUnpaid, stored.Payment.Status)
}

func TestRequestPaymentRetriesUnavailableGateway(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentGateway, "")

	calls := 0
	var delays []time.Duration
	f.svc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	f.gateway.build = func(ctx context.Context, req payment.RedirectRequest) (payment.Redirect, error) {
		calls++
		if calls < 3 {
			return payment.Redirect{}, payment.ErrGatewayUnavailable
		}
		return f.gateway.VNPay.BuildRedirectURL(ctx, req)
	}

	_, err := f.svc.RequestPayment(context.Background(), o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, delays)
}

func TestRequestPaymentGivesUpAndDoesNotRetryOtherErrors(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentGateway, "")

	calls := 0
	f.gateway.build = func(context.Context, payment.RedirectRequest) (payment.Redirect, error) {
		calls++
		return payment.Redirect{}, payment.ErrGatewayUnavailable
	}
	_, err := f.svc.RequestPayment(context.Background(), o.ID, "")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.Equal(t, 3, calls)

	calls = 0
	f.gateway.build = func(context.Context, payment.RedirectRequest) (payment.Redirect, error) {
		calls++
		return payment.Redirect{}, errors.New("bad config")
	}
	_, err = f.svc.RequestPayment(context.Background(), o.ID, "")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Payment.RequestedAt)
}

func TestHandleCallbackIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")
	params := callback(o, "00", "14290331", o.Total)

	first, err := f.svc.HandleCallback(ctx, params)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.True(t, first.Success)
	assert.Equal(t, models.StatusProcessing, first.Order.Status)
	assert.Equal(t, "14290331", first.Order.ExternalRef())

	second, err := f.svc.HandleCallback(ctx, params)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.Order, second.Order)

	assert.Equal(t, []notify.EventKind{notify.EventPaymentConfirmed}, f.notifier.kinds())
}

func TestHandleCallbackFailureAfterPaidIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")

	_, err := f.svc.HandleCallback(ctx, callback(o, "00", "14290331", o.Total))
	require.NoError(t, err)

	late, err := f.svc.HandleCallback(ctx, callback(o, "24", "0", o.Total))
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, models.PaymentPaid, late.Order.Payment.Status)
	assert.Equal(t, models.StatusProcessing, late.Order.Status)
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestHandleCallbackFailureCancels(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentGateway, "")

	out, err := f.svc.HandleCallback(context.Background(), callback(o, "24", "0", o.Total))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.False(t, out.Success)
	assert.Equal(t, "24", out.Code)
	assert.Equal(t, models.StatusCancelled, out.Order.Status)
	assert.Equal(t, []notify.EventKind{notify.EventOrderCancelled}, f.notifier.kinds())
}

func TestHandleCallbackRejectsTamperingWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")

	params := callback(o, "24", "0", o.Total)
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_TransactionStatus", "00")

	_, err := f.svc.HandleCallback(ctx, params)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Version, stored.Version)
	assert.Equal(t, models.PaymentUnpaid, stored.Payment.Status)
	assert.Empty(t, f.notifier.kinds())
}

func TestHandleCallbackRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")

	_, err := f.svc.HandleCallback(ctx, callback(o, "00", "TX1", o.Total-1))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid())
}

func TestHandleCallbackUnknownOrder(t *testing.T) {
	f := newFixture(t)
	ghost := models.Order{HumanReference: "ZZZZZZZZZZ"}
	_, err := f.svc.HandleCallback(context.Background(), callback(ghost, "00", "TX1", 100))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCallbacksNotifyOnce(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentGateway, "")
	params := callback(o, "00", "14290331", o.Total)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.HandleCallback(context.Background(), params)
			assert.NoError(t, err)
			if out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, []notify.EventKind{notify.EventPaymentConfirmed}, f.notifier.kinds())
}

func TestGetOrderStatus(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PaymentCash, "")

	view, err := f.svc.GetOrderStatus(context.Background(), " "+strings.ToLower(o.HumanReference)+" ")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusView{Reference: o.HumanReference, Status: models.StatusPending, CreatedAt: o.CreatedAt}, view)

	_, err = f.svc.GetOrderStatus(context.Background(), "short")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.GetOrderStatus(context.Background(), "ZZZZZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminSetStatusNotifiesFulfillment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentCash, "")

	_, err := f.svc.AdminSetStatus(ctx, o.ID, models.StatusShipped, "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	for _, s := range []models.OrderStatus{models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		_, err := f.svc.AdminSetStatus(ctx, o.ID, s, "admin-1", "")
		require.NoError(t, err)
	}
	_, err = f.svc.AdminSetStatus(ctx, o.ID, models.StatusDelivered, "admin-1", "")
	require.NoError(t, err)

	assert.Equal(t, []notify.EventKind{notify.EventOrderShipped, notify.EventOrderDelivered}, f.notifier.kinds())
}

func TestCancelledOrderCannotLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentCash, "")

	_, err := f.svc.AdminSetStatus(ctx, o.ID, models.StatusCancelled, "admin-1", "customer called")
	require.NoError(t, err)
	for _, s := range []models.OrderStatus{models.StatusPending, models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		_, err := f.svc.AdminSetStatus(ctx, o.ID, s, "admin-1", "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "customer called", stored.CancelReason)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.createOrder(t, models.PaymentGateway, "user-1")
	_, err := f.svc.CancelOrder(ctx, o.ID, "user-2", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.CancelOrder(ctx, o.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.CancelOrder(ctx, o.ID, "user-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)
	assert.Equal(t, []notify.EventKind{notify.EventOrderCancelled}, f.notifier.kinds())

	paidOrder := f.createOrder(t, models.PaymentGateway, "user-1")
	_, err = f.svc.HandleCallback(ctx, callback(paidOrder, "00", "TX9", paidOrder.Total))
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, paidOrder.ID, "user-1", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReconcilePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")

	_, err := f.svc.ReconcilePayment(ctx, o.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState, "never requested")

	redirect, err := f.svc.RequestPayment(ctx, o.ID, "")
	require.NoError(t, err)

	var asked payment.QueryRequest
	f.gateway.query = func(_ context.Context, req payment.QueryRequest) (payment.CallbackResult, error) {
		asked = req
		return payment.CallbackResult{
			Valid: true, Success: true, OrderRef: req.OrderRef, ExternalTransactionRef: "14290331",
			ResponseCode: "00", TransactionStatus: "00", Amount: o.Total,
		}, nil
	}

	out, err := f.svc.ReconcilePayment(ctx, o.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, models.PaymentPaid, out.Order.Payment.Status)
	assert.Equal(t, o.HumanReference, asked.OrderRef)
	assert.True(t, redirect.CreatedAt.Equal(asked.TransactionDate))

	again, err := f.svc.ReconcilePayment(ctx, o.ID, "")
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, []notify.EventKind{notify.EventPaymentConfirmed}, f.notifier.kinds())
}

func TestReconcilePaymentPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, models.PaymentGateway, "")
	_, err := f.svc.RequestPayment(ctx, o.ID, "")
	require.NoError(t, err)

	f.gateway.query = func(context.Context, payment.QueryRequest) (payment.CallbackResult, error) {
		return payment.CallbackResult{}, payment.ErrPaymentPending
	}
	_, err = f.svc.ReconcilePayment(ctx, o.ID, "")
	assert.ErrorIs(t, err, payment.ErrPaymentPending)

	cash := f.createOrder(t, models.PaymentCash, "")
	_, err = f.svc.ReconcilePayment(ctx, cash.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestListOwnerOrders(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t, models.PaymentCash, "user-1")
	f.createOrder(t, models.PaymentCash, "user-2")
	f.createOrder(t, models.PaymentGateway, "user-1")

	mine, err := f.svc.ListOwnerOrders(context.Background(), "user-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.svc.ListOwnerOrders(context.Background(), "", 0, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := f.svc.ListOrders(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
