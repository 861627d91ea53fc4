package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/orders"
	"github.com/heremarket/orders/internal/payment"
)

// OrderService is everything the HTTP layer needs from the order core.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (models.Order, error)
	RequestPayment(ctx context.Context, orderID, clientIP string) (orders.PaymentRedirect, error)
	HandleCallback(ctx context.Context, params url.Values) (orders.PaymentOutcome, error)
	ReconcilePayment(ctx context.Context, orderID, clientIP string) (orders.PaymentOutcome, error)
	GetOrderStatus(ctx context.Context, reference string) (models.OrderStatusView, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	AdminSetStatus(ctx context.Context, orderID string, status models.OrderStatus, adminID, reason string) (models.Order, error)
	CancelOrder(ctx context.Context, orderID, ownerID, reason string) (models.Order, error)
	ListOrders(ctx context.Context, filter orders.ListFilter) ([]models.Order, error)
	ListOwnerOrders(ctx context.Context, ownerID string, limit, offset int64) ([]models.Order, error)
	Ping(ctx context.Context) error
}

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// statusFor maps the order core's error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	var ve domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "order was changed by another request"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, orders.ErrAmountMismatch):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, payment.ErrMalformed):
		return http.StatusBadRequest, "malformed gateway response"
	case errors.Is(err, payment.ErrPaymentPending):
		return http.StatusConflict, "payment is still pending at the gateway"
	case errors.Is(err, payment.ErrTransactionNotFound):
		return http.StatusNotFound, "gateway has no transaction for this order"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway, "payment gateway unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}

func respondServiceError(c *gin.Context, route string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] [ERROR] %v", route, err)
	}
	respondWithError(c, status, route, message)
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func pathID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}
