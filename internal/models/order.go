package models

import (
	"time"
)

// OrderStatus governs fulfillment.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus accepts the five known status values.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// PaymentMethod is either cash on delivery or the online gateway.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentGateway PaymentMethod = "gateway"
)

// ParsePaymentMethod also accepts "card", the storefront's legacy name for
// the online gateway.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch s {
	case "cash":
		return PaymentCash, true
	case "gateway", "card", "vnpay":
		return PaymentGateway, true
	}
	return "", false
}

// PaymentStatus only ever moves unpaid -> paid.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// LineItem captures the authoritative price at order time. Prices are minor units.
type LineItem struct {
	ProductRef string `bson:"productRef" json:"productRef"`
	Name       string `bson:"name" json:"name"`
	UnitPrice  int64  `bson:"unitPrice" json:"unitPrice"`
	Quantity   int    `bson:"quantity" json:"quantity"`
}

// OrderCustomer captures lightweight customer contact details for an order.
type OrderCustomer struct {
	Title  string `bson:"title" json:"title"`
	Detail string `bson:"detail" json:"detail"`
	Note   string `bson:"note,omitempty" json:"note,omitempty"`
	Email  string `bson:"email,omitempty" json:"email,omitempty"`
}

// Payment is owned by the order store; nothing else writes it.
type Payment struct {
	Method                 PaymentMethod `bson:"method" json:"method"`
	Status                 PaymentStatus `bson:"status" json:"status"`
	ExternalTransactionRef *string       `bson:"externalTransactionRef,omitempty" json:"externalTransactionRef,omitempty"`
	GatewayOrderRef        string        `bson:"gatewayOrderRef,omitempty" json:"gatewayOrderRef,omitempty"`
	RequestedAt            *time.Time    `bson:"requestedAt,omitempty" json:"requestedAt,omitempty"`
	ResponseCode           string        `bson:"responseCode,omitempty" json:"responseCode,omitempty"`
	PaidAt                 *time.Time    `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID             string        `bson:"_id" json:"id"`
	HumanReference string        `bson:"humanReference" json:"reference"`
	OwnerID        *string       `bson:"ownerId" json:"ownerId"`
	Items          []LineItem    `bson:"items" json:"items"`
	Subtotal       int64         `bson:"subtotal" json:"subtotal"`
	DiscountCode   string        `bson:"discountCode,omitempty" json:"discountCode,omitempty"`
	DiscountAmount int64         `bson:"discountAmount" json:"discountAmount"`
	Total          int64         `bson:"total" json:"total"`
	Customer       OrderCustomer `bson:"customer" json:"customer"`
	Status         OrderStatus   `bson:"status" json:"status"`
	Payment        Payment       `bson:"payment" json:"payment"`
	CancelReason   string        `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	Version        int64         `bson:"version" json:"-"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// IsPaid reports whether the payment has been confirmed.
func (o Order) IsPaid() bool {
	return o.Payment.Status == PaymentPaid
}

// ExternalRef returns the gateway transaction reference, or "" when unset.
func (o Order) ExternalRef() string {
	if o.Payment.ExternalTransactionRef == nil {
		return ""
	}
	return *o.Payment.ExternalTransactionRef
}

// OrderStatusView is the public, read-only projection of an order.
type OrderStatusView struct {
	Reference string      `json:"reference"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// StatusView strips payment internals.
func (o Order) StatusView() OrderStatusView {
	return OrderStatusView{
		Reference: o.HumanReference,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}
}
