package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/heremarket/orders/internal/middleware"
)

// RegisterRoutes mounts the order API on r.
func RegisterRoutes(r gin.IRouter, svc OrderService, jwtSecret string) {
	r.GET("/healthz", Healthz(svc))

	r.POST("/orders", CreateOrder(svc, jwtSecret))
	r.POST("/orders/:id/payment", RequestPayment(svc))
	r.GET("/orders/track/:reference", TrackOrder(svc))

	r.GET("/payment/vnpay/ipn", VNPayIPN(svc))
	r.GET("/payment/vnpay/return", VNPayReturn(svc))

	user := r.Group("/user")
	user.Use(middleware.UserAuth(jwtSecret))
	{
		user.GET("/orders", GetMyOrders(svc))
		user.POST("/orders/:id/cancel", CancelMyOrder(svc))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(jwtSecret))
	{
		admin.GET("/orders", GetAllOrders(svc))
		admin.GET("/orders/:id", GetOrderByID(svc))
		admin.PATCH("/orders/:id/status", UpdateOrderStatus(svc))
		admin.POST("/orders/:id/reconcile", ReconcileOrderPayment(svc))
	}
}
