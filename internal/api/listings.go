package api

import (
	"net/http"
	"strconv"

	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createListing accepts multipart forms as well as JSON bodies
func (h *Handler) createListing(c *gin.Context) {
	var req service.CreateListingRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.SellerID = userID(c)
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.listings.CreateListing(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "create listing", err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := paramID(c, "listing")
	if !ok {
		return
	}

	listing, err := h.listings.GetListing(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// listingAvailability reports whether a listing can serve ?quantity= units
func (h *Handler) listingAvailability(c *gin.Context) {
	id, ok := paramID(c, "listing")
	if !ok {
		return
	}

	quantity := 1
	if q := c.Query("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			badRequest(c, err)
			return
		}
		quantity = n
	}

	available, err := h.inventory.ValidateAvailability(c.Request.Context(), id, quantity)
	if err != nil {
		respondError(c, "validate availability", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listing_id": id,
		"quantity":   quantity,
		"available":  available,
	})
}

func (h *Handler) countMyListings(c *gin.Context) {
	count, err := h.listings.CountForSeller(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "count listings", err)
		return
	}
	c.JSON(http.StatusOK, count)
}

// previewFee quotes the fee of the caller's next listing
func (h *Handler) previewFee(c *gin.Context) {
	var q service.FeeQuery
	if err := c.ShouldBind(&q); err != nil {
		badRequest(c, err)
		return
	}
	q.SellerID = userID(c)

	res, err := h.fees.Preview(c.Request.Context(), q)
	if err != nil {
		respondError(c, "preview fee", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
