package payment

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrInvalidSignature marks a callback or query response whose HMAC did
	// not verify. It is never retried.
	ErrInvalidSignature = errors.New("gateway signature mismatch")
	// ErrGatewayUnavailable is transient; callers may retry with backoff.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrTransactionNotFound means the gateway has no record of the payment.
	ErrTransactionNotFound = errors.New("gateway transaction not found")
	// ErrPaymentPending means the gateway has not settled the payment yet.
	ErrPaymentPending = errors.New("gateway payment still pending")
	// ErrMalformed marks a verified message whose fields cannot be interpreted.
	ErrMalformed = errors.New("malformed gateway message")
)

// SignatureError carries the rejected parameters for the audit log.
type SignatureError struct {
	Params url.Values
}

func (e *SignatureError) Error() string {
	return "gateway callback signature mismatch"
}

func (e *SignatureError) Unwrap() error { return ErrInvalidSignature }

// Dump renders every parameter, signature included, in key order.
func (e *SignatureError) Dump() string {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, strings.Join(e.Params[k], ",")))
	}
	return strings.Join(parts, " ")
}
