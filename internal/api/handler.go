package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	listings  *service.ListingService
	fees      *service.FeeService
	vouchers  *service.VoucherService
	inventory *service.InventoryLedger
	db        Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	listings *service.ListingService,
	fees *service.FeeService,
	vouchers *service.VoucherService,
	inventory *service.InventoryLedger,
	db Pinger,
) *Handler {
	return &Handler{
		orders:    orders,
		listings:  listings,
		fees:      fees,
		vouchers:  vouchers,
		inventory: inventory,
		db:        db,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", authMiddleware())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/buyer", h.listBuyerOrders)
		v1.GET("/orders/seller", h.listSellerOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)

		v1.POST("/listings", h.createListing)
		v1.GET("/listings/:id", h.getListing)
		v1.GET("/listings/:id/availability", h.listingAvailability)
		v1.GET("/my/listings/count", h.countMyListings)

		v1.POST("/fee/preview", h.previewFee)
		v1.GET("/my/vouchers", h.myVouchers)
		v1.POST("/my/vouchers/preview", h.previewFee)
	}

	admin := v1.Group("/admin", adminMiddleware())
	{
		admin.GET("/vouchers", h.listVouchers)
		admin.POST("/vouchers", h.createVoucher)
		admin.GET("/vouchers/:id", h.getVoucher)
		admin.PUT("/vouchers/:id", h.updateVoucher)
		admin.DELETE("/vouchers/:id", h.deactivateVoucher)
		admin.POST("/vouchers/:id/assign", h.assignVoucher)
		admin.GET("/vouchers/:id/redemptions", h.listRedemptions)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// paramID parses the :id path parameter, answering 400 when it is malformed
func paramID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + what + " ID",
		})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
