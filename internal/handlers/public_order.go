package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/heremarket/orders/internal/middleware"
	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/orders"
)

const requestTimeout = 10 * time.Second

var errInvalidPaymentMethod = errors.New("invalid payment method")

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type createOrderCustomerRequest struct {
	Title  string `json:"title" binding:"required"`
	Detail string `json:"detail" binding:"required"`
	Note   string `json:"note"`
	Email  string `json:"email" binding:"omitempty,email"`
}

type createOrderPaymentMethodRequest struct {
	ID    string `json:"id" binding:"required"`
	Label string `json:"label"`
}

type createOrderRequest struct {
	Items         []createOrderItemRequest        `json:"items" binding:"required,min=1,dive"`
	Customer      createOrderCustomerRequest      `json:"customer" binding:"required"`
	PaymentMethod createOrderPaymentMethodRequest `json:"paymentMethod" binding:"required"`
	DiscountCode  string                          `json:"discountCode"`
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(svc OrderService, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		userID, err := middleware.UserIDFromHeader(c.GetHeader("Authorization"), jwtSecret)
		if err != nil {
			log.Println("[ORDER] [ERROR] token validation failed:", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		input, err := buildOrderInput(req)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if userID != "" {
			input.OwnerID = &userID
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.CreateOrder(ctx, input)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		if userID != "" {
			log.Println("[ORDER] [INFO] order created for user:", userID)
		} else {
			log.Println("[ORDER] [INFO] guest order created")
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId":       order.ID,
			"reference":     order.HumanReference,
			"subtotal":      order.Subtotal,
			"discount":      order.DiscountAmount,
			"total":         order.Total,
			"status":        order.Status,
			"paymentMethod": order.Payment.Method,
			"message":       "order created",
		})
	}
}

func buildOrderInput(req createOrderRequest) (orders.CreateOrderInput, error) {
	method, ok := models.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod.ID)))
	if !ok {
		return orders.CreateOrderInput{}, errInvalidPaymentMethod
	}

	items := make([]orders.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orders.CartItem{
			ProductRef: strings.TrimSpace(item.ProductID),
			Quantity:   item.Quantity,
		})
	}

	return orders.CreateOrderInput{
		Items:         items,
		PaymentMethod: method,
		DiscountCode:  req.DiscountCode,
		Customer: models.OrderCustomer{
			Title:  strings.TrimSpace(req.Customer.Title),
			Detail: strings.TrimSpace(req.Customer.Detail),
			Note:   strings.TrimSpace(req.Customer.Note),
			Email:  strings.ToLower(strings.TrimSpace(req.Customer.Email)),
		},
	}, nil
}

/* =========================
   REQUEST PAYMENT
========================= */

func RequestPayment(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/payment"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		redirect, err := svc.RequestPayment(ctx, pathID(c), c.ClientIP())
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, redirect)
	}
}

/* =========================
   TRACK ORDER
========================= */

func TrackOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/track/:reference"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		view, err := svc.GetOrderStatus(ctx, c.Param("reference"))
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

/* =========================
   HEALTH
========================= */

func Healthz(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			log.Println("[HEALTH] [ERROR] order store unreachable:", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
