// Order HTTP handlers.
//
// User-facing:
//   - GET  /orders/{id}          (order status, owner only in the gateway)
//   - GET  /orders               (caller's orders)
//   - POST /orders/{id}/proof    (attach payment proof)
//
// Admin:
//   - GET    /admin/orders                        (paginated, status filter)
//   - POST   /admin/orders/{id}/approve           (reconcile delivery options)
//   - POST   /admin/orders/{id}/reject
//   - POST   /admin/orders/{id}/finalize          (complete + debit)
//   - POST   /admin/orders/{id}/force-complete    (complete without debit)
//   - POST   /admin/orders/complete-selected      (bulk repair)
//   - DELETE /admin/orders/stale
//   - GET    /admin/orders/stats
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// SubmitProofRequest is the JSON payload for attaching payment proof.
type SubmitProofRequest struct {
	ProofRef string `json:"proof_ref" binding:"required"`
}

// RejectOrderRequest is the JSON payload for refusing an order.
type RejectOrderRequest struct {
	Note string `json:"note"`
}

// FinalizeOrderRequest is the JSON payload for completing an order. An empty
// account id reuses the selection already recorded on the order.
type FinalizeOrderRequest struct {
	AccountID string `json:"account_id"`
}

// ListOrdersResponse wraps a page of orders and pagination information.
type ListOrdersResponse struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// GetOrder returns one order.
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// ListMyOrders returns the calling user's orders, newest first.
func (h *Handlers) ListMyOrders(c *gin.Context) {
	items, err := h.orders.ListForUser(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"orders": items})
}

// SubmitProof attaches a payment proof reference and moves the order into
// manual approval.
func (h *Handlers) SubmitProof(c *gin.Context) {
	var req SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "proof_ref required")
		return
	}

	o, err := h.orders.SubmitProof(c.Request.Context(), c.Param("id"), req.ProofRef)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// ListOrders returns a page of orders for the admin dashboard.
func (h *Handlers) ListOrders(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.orders.ListPage(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListOrdersResponse{
		Orders:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ApproveOrder reconciles delivery options for an order awaiting approval.
// With zero eligible accounts the order stays put and the per-account reasons
// come back for the admin to relay.
func (h *Handlers) ApproveOrder(c *gin.Context) {
	res, err := h.orders.Approve(c.Request.Context(), c.Param("id"), adminID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// RejectOrder refuses an order awaiting approval.
func (h *Handlers) RejectOrder(c *gin.Context) {
	var req RejectOrderRequest
	_ = c.ShouldBindJSON(&req)

	o, err := h.orders.Reject(c.Request.Context(), c.Param("id"), adminID(c), req.Note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// FinalizeOrder completes the order on the chosen account, debiting it.
func (h *Handlers) FinalizeOrder(c *gin.Context) {
	var req FinalizeOrderRequest
	_ = c.ShouldBindJSON(&req)

	o, err := h.orders.Finalize(c.Request.Context(), c.Param("id"), req.AccountID, adminID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// ForceCompleteOrder completes a non-terminal order without any debit.
func (h *Handlers) ForceCompleteOrder(c *gin.Context) {
	var req RejectOrderRequest
	_ = c.ShouldBindJSON(&req)

	o, err := h.orders.ForceComplete(c.Request.Context(), c.Param("id"), adminID(c), req.Note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// CompleteSelectedOrders force-completes every awaiting order that already
// carries a chosen account.
func (h *Handlers) CompleteSelectedOrders(c *gin.Context) {
	n, err := h.orders.CompleteSelected(c.Request.Context(), adminID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"completed": n})
}

// PurgeStaleOrders deletes aged non-terminal orders. The optional older_than
// query accepts a Go duration; the configured default applies otherwise.
func (h *Handlers) PurgeStaleOrders(staleAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		age := staleAge
		if q := c.Query("older_than"); q != "" {
			d, err := time.ParseDuration(q)
			if err != nil || d <= 0 {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "older_than must be a positive duration")
				return
			}
			age = d
		}

		n, err := h.orders.PurgeStale(c.Request.Context(), age)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"deleted": n})
	}
}

// OrderStats returns order aggregates for the admin dashboard.
func (h *Handlers) OrderStats(c *gin.Context) {
	byStatus, byRegion, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	accounts, err := h.accounts.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"by_status":           byStatus,
		"completed_by_region": byRegion,
		"accounts":            accounts,
	})
}
