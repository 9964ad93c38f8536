// Cart HTTP handlers.
//
// This file exposes REST endpoints for the shopping session:
//   - POST   /carts                        (open a cart)
//   - GET    /carts/{id}                   (cart with items)
//   - POST   /carts/{id}/items            (add a catalog item)
//   - DELETE /carts/{id}/items/{itemID}   (remove an item)
//   - POST   /carts/{id}/checkout         (convert to an order)
//   - POST   /carts/{id}/close            (abandon)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// CreateCartRequest is the JSON payload for opening a cart.
type CreateCartRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	Region    string `json:"region"`
}

// AddCartItemRequest is the JSON payload for adding a catalog item.
type AddCartItemRequest struct {
	CatalogItemID int64 `json:"catalog_item_id" binding:"required"`
}

// CartResponse wraps a cart together with its line items.
type CartResponse struct {
	Cart  *domain.Cart      `json:"cart"`
	Items []domain.CartItem `json:"items"`
}

// CreateCart opens a new cart for the calling user.
func (h *Handlers) CreateCart(c *gin.Context) {
	var req CreateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel_id required")
		return
	}

	cart, err := h.carts.Create(c.Request.Context(), userID(c), displayName(c), req.ChannelID, req.Region)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cart)
}

// GetCart returns the cart and its items.
func (h *Handlers) GetCart(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cart id must be a UUID")
		return
	}

	cart, err := h.carts.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	items, err := h.carts.Items(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CartResponse{Cart: cart, Items: items})
}

// AddCartItem adds one catalog item, priced at add time.
func (h *Handlers) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CatalogItemID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "catalog_item_id required")
		return
	}

	item, err := h.carts.AddItem(c.Request.Context(), c.Param("id"), req.CatalogItemID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, item)
}

// RemoveCartItem deletes a line item from the cart.
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	if err := h.carts.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("itemID")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CheckoutCartRequest is the optional JSON payload for checkout. AccountID
// records an up-front delivery-account choice.
type CheckoutCartRequest struct {
	AccountID string `json:"account_id"`
}

// CheckoutCart freezes the cart into an order awaiting payment proof.
func (h *Handlers) CheckoutCart(c *gin.Context) {
	var req CheckoutCartRequest
	_ = c.ShouldBindJSON(&req)

	o, err := h.orders.Checkout(c.Request.Context(), c.Param("id"), req.AccountID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

// CloseCart abandons the cart, deleting it and its items.
func (h *Handlers) CloseCart(c *gin.Context) {
	if err := h.carts.Close(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
