package api

import (
	"fmt"
	"net/http"
	"strconv"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) myVouchers(c *gin.Context) {
	vouchers, err := h.vouchers.SellerVouchers(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "list seller vouchers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

func (h *Handler) listVouchers(c *gin.Context) {
	filter := store.VoucherFilter{
		Query: c.Query("q"),
		Type:  models.DiscountType(c.Query("type")),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("active must be a boolean: %w", err))
			return
		}
		filter.Active = &active
	}

	vouchers, err := h.vouchers.ListVouchers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "list vouchers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

func (h *Handler) createVoucher(c *gin.Context) {
	var in service.VoucherInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.vouchers.CreateVoucher(c.Request.Context(), userID(c), &in)
	if err != nil {
		respondError(c, "create voucher", err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) getVoucher(c *gin.Context) {
	id, ok := paramID(c, "voucher")
	if !ok {
		return
	}

	v, err := h.vouchers.GetVoucher(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get voucher", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) updateVoucher(c *gin.Context) {
	id, ok := paramID(c, "voucher")
	if !ok {
		return
	}

	var in service.VoucherInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.vouchers.UpdateVoucher(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, "update voucher", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// deactivateVoucher answers DELETE; vouchers are switched off, never removed
func (h *Handler) deactivateVoucher(c *gin.Context) {
	id, ok := paramID(c, "voucher")
	if !ok {
		return
	}

	if err := h.vouchers.DeactivateVoucher(c.Request.Context(), id); err != nil {
		respondError(c, "deactivate voucher", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

type assignBody struct {
	SellerID    int64 `json:"seller_id"`
	IssuedCount *int  `json:"issued_count"`
}

func (h *Handler) assignVoucher(c *gin.Context) {
	id, ok := paramID(c, "voucher")
	if !ok {
		return
	}

	var body assignBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	issued := 1
	if body.IssuedCount != nil {
		issued = *body.IssuedCount
	}

	if err := h.vouchers.AssignVoucher(c.Request.Context(), id, body.SellerID, issued); err != nil {
		respondError(c, "assign voucher", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"voucher_id":   id,
		"seller_id":    body.SellerID,
		"issued_count": issued,
	})
}

func (h *Handler) listRedemptions(c *gin.Context) {
	id, ok := paramID(c, "voucher")
	if !ok {
		return
	}

	redemptions, err := h.vouchers.ListRedemptions(c.Request.Context(), id)
	if err != nil {
		respondError(c, "list redemptions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions})
}
