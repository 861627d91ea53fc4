package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/orders"
	"github.com/heremarket/orders/internal/payment"
)

// Gateway acknowledgement codes for server-to-server notifications.
const (
	ipnConfirmed        = "00"
	ipnOrderNotFound    = "01"
	ipnAlreadyConfirmed = "02"
	ipnInvalidAmount    = "04"
	ipnInvalidSignature = "97"
	ipnUnknownError     = "99"
)

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// ipnAnswer acknowledges every verified notification, including failed
// payments. Only a bad signature or an internal fault is an error response.
func ipnAnswer(outcome orders.PaymentOutcome, err error) (int, ipnResponse) {
	switch {
	case err == nil && outcome.Applied:
		return http.StatusOK, ipnResponse{ipnConfirmed, "Confirm Success"}
	case err == nil:
		return http.StatusOK, ipnResponse{ipnAlreadyConfirmed, "Order already confirmed"}
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, ipnResponse{ipnInvalidSignature, "Invalid signature"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusOK, ipnResponse{ipnOrderNotFound, "Order not found"}
	case errors.Is(err, orders.ErrAmountMismatch):
		return http.StatusOK, ipnResponse{ipnInvalidAmount, "Invalid amount"}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return http.StatusOK, ipnResponse{ipnAlreadyConfirmed, "Order already confirmed"}
	case errors.Is(err, payment.ErrMalformed), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ipnResponse{ipnUnknownError, "Invalid request"}
	}
	return http.StatusInternalServerError, ipnResponse{ipnUnknownError, "Unknown error"}
}

// VNPayIPN is the gateway's server-to-server payment notification.
func VNPayIPN(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payment/vnpay/ipn"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		outcome, err := svc.HandleCallback(ctx, c.Request.URL.Query())
		status, body := ipnAnswer(outcome, err)
		c.JSON(status, body)
	}
}

// VNPayReturn is where the customer's browser lands after paying.
func VNPayReturn(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payment/vnpay/return"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		outcome, err := svc.HandleCallback(ctx, c.Request.URL.Query())
		if err != nil && outcome.Order.ID == "" {
			respondServiceError(c, route, err)
			return
		}

		body := gin.H{
			"success": err == nil && outcome.Order.IsPaid(),
			"code":    outcome.Code,
			"order":   outcome.Order.StatusView(),
		}
		if err != nil {
			_, message := statusFor(err)
			body["error"] = message
		}
		c.JSON(http.StatusOK, body)
	}
}
