// Account HTTP handlers.
//
// The public surface only lists accounts (so users can pick one to befriend);
// all mutation is admin-only.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// CreateAccountRequest is the JSON payload for registering a gift account.
type CreateAccountRequest struct {
	Name       string `json:"name" binding:"required"`
	Balance    int64  `json:"balance"`
	MaxFriends int    `json:"max_friends"`
	Region     string `json:"region"`
}

// UpdateAccountRequest is the JSON payload for partial account edits. Nil
// fields are left untouched.
type UpdateAccountRequest struct {
	Name       *string `json:"name"`
	MaxFriends *int    `json:"max_friends"`
	Region     *string `json:"region"`
}

// BalanceRequest is the JSON payload for credit/debit operations.
type BalanceRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// ListAccountsResponse wraps a page of accounts and pagination information.
type ListAccountsResponse struct {
	Accounts   []domain.Account `json:"accounts"`
	Pagination Pagination       `json:"pagination"`
}

// ListAccounts returns a page of gift accounts, optionally per region.
func (h *Handlers) ListAccounts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.accounts.ListPage(c.Request.Context(), c.Query("region"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListAccountsResponse{
		Accounts:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetAccount returns one account.
func (h *Handlers) GetAccount(c *gin.Context) {
	a, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// CreateAccount registers a new gift account.
func (h *Handlers) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	a, err := h.accounts.Create(c.Request.Context(), req.Name, req.Balance, req.MaxFriends, req.Region)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// UpdateAccount applies partial edits to an account.
func (h *Handlers) UpdateAccount(c *gin.Context) {
	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	a, err := h.accounts.Update(c.Request.Context(), c.Param("id"), req.Name, req.MaxFriends, req.Region)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteAccount removes an account not referenced by open orders or
// friendships.
func (h *Handlers) DeleteAccount(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CreditAccount tops up the account's RP balance.
func (h *Handlers) CreditAccount(c *gin.Context) {
	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount required")
		return
	}

	a, err := h.accounts.Credit(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DebitAccount withdraws RP from the account; the guard refuses to go below
// zero.
func (h *Handlers) DebitAccount(c *gin.Context) {
	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount required")
		return
	}

	a, err := h.accounts.Debit(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}
