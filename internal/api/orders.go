package api

import (
	"net/http"

	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

type createOrderBody struct {
	ListingID      int64  `json:"listing_id"`
	Quantity       *int   `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var body createOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req := service.CreateOrderRequest{
		BuyerID:        userID(c),
		ListingID:      body.ListingID,
		Quantity:       1,
		IdempotencyKey: body.IdempotencyKey,
	}
	if body.Quantity != nil {
		req.Quantity = *body.Quantity
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "create order", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// updateOrderStatus handles a buyer or seller moving an order along
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := paramID(c, "order")
	if !ok {
		return
	}

	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.OrderID = orderID
	req.ActorID = userID(c)

	order, err := h.orders.TransitionStatus(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "update order status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c, "order")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID(c))
	if err != nil {
		respondError(c, "get order", err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	orders, err := h.orders.ListBuyerOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "list buyer orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) listSellerOrders(c *gin.Context) {
	orders, err := h.orders.ListSellerOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "list seller orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
