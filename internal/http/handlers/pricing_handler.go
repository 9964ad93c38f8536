// Pricing administration HTTP handlers.
//
// The price configuration is a single document: GET exports it, PUT replaces
// it wholesale (validated first), and the narrower endpoints edit one
// override, tier price, or multiplier at a time. Apply rewrites every catalog
// item's stored price from the current configuration.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftshop-backend/internal/pricing"
)

// PriceValueRequest is the JSON payload carrying one RP price.
type PriceValueRequest struct {
	Price int64 `json:"price"`
}

// MultiplierRequest is the JSON payload carrying one multiplier factor.
type MultiplierRequest struct {
	Factor float64 `json:"factor"`
}

// failPricing maps pricing-store errors onto the HTTP taxonomy.
func failPricing(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, pricing.ErrInvalidMultiplier),
		errors.Is(err, pricing.ErrUnknownTable):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// ExportPricing returns the full price-configuration document.
func (h *Handlers) ExportPricing(c *gin.Context) {
	ok(c, http.StatusOK, h.pricing.Config())
}

// ImportPricing replaces the whole price-configuration document.
func (h *Handlers) ImportPricing(c *gin.Context) {
	var cfg pricing.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid pricing document")
		return
	}
	if err := h.pricing.Save(&cfg); err != nil {
		failPricing(c, err)
		return
	}
	ok(c, http.StatusOK, h.pricing.Config())
}

// ResetPricing restores the default price configuration.
func (h *Handlers) ResetPricing(c *gin.Context) {
	if err := h.pricing.Reset(); err != nil {
		failPricing(c, err)
		return
	}
	ok(c, http.StatusOK, h.pricing.Config())
}

// SetPriceOverride pins an exact price for one catalog item.
func (h *Handlers) SetPriceOverride(c *gin.Context) {
	itemID := c.Param("itemID")
	if _, err := strconv.ParseInt(itemID, 10, 64); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "item id must be numeric")
		return
	}
	var req PriceValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price required")
		return
	}
	if err := h.pricing.SetItemOverride(itemID, req.Price); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// ClearPriceOverride removes an item's pinned price.
func (h *Handlers) ClearPriceOverride(c *gin.Context) {
	if err := h.pricing.ClearItemOverride(c.Param("itemID")); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// SetTierPrice writes one entry of a tiered base-price table.
func (h *Handlers) SetTierPrice(c *gin.Context) {
	var req PriceValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price required")
		return
	}
	if err := h.pricing.SetTierPrice(c.Param("table"), c.Param("key"), req.Price); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// ClearTierPrice removes one entry of a tiered base-price table.
func (h *Handlers) ClearTierPrice(c *gin.Context) {
	if err := h.pricing.ClearTierPrice(c.Param("table"), c.Param("key")); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// SetMultiplier writes one price multiplier.
func (h *Handlers) SetMultiplier(c *gin.Context) {
	var req MultiplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "factor required")
		return
	}
	if err := h.pricing.SetMultiplier(c.Param("name"), req.Factor); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// ClearMultiplier removes one price multiplier.
func (h *Handlers) ClearMultiplier(c *gin.Context) {
	if err := h.pricing.ClearMultiplier(c.Param("name")); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// SetFallbackPrice writes the price of last resort.
func (h *Handlers) SetFallbackPrice(c *gin.Context) {
	var req PriceValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price required")
		return
	}
	if err := h.pricing.SetFallbackPrice(req.Price); err != nil {
		failPricing(c, err)
		return
	}
	noContent(c)
}

// ApplyPricing resolves every catalog item against the current configuration
// and rewrites the stored prices.
func (h *Handlers) ApplyPricing(c *gin.Context) {
	items := h.catalog.Items()
	n := pricing.ApplyAll(items, h.pricing.Config())
	if err := h.catalog.Save(items); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": n, "items": len(items)})
}
