// Package handlers provides HTTP handler implementations for the public API.
//
// This file wires the handler set to the application services and hosts the
// shared helpers: caller identity extraction, pagination clamping, and the
// translation of service-level errors into the stable HTTP error taxonomy.
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/http/middleware"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/services"
	"github.com/tbourn/go-giftshop-backend/internal/utils"
)

// Handlers groups the HTTP endpoints for accounts, carts, orders,
// friendships, and pricing administration. It depends on the concrete
// services; transport concerns stay in this package.
type Handlers struct {
	accounts *services.AccountService
	carts    *services.CartService
	orders   *services.OrderService
	friends  *services.FriendshipService
	pricing  *pricing.Store
	catalog  *catalog.Store
}

// New constructs a Handlers instance bound to the given services.
func New(accounts *services.AccountService, carts *services.CartService, orders *services.OrderService, friends *services.FriendshipService, pr *pricing.Store, cat *catalog.Store) *Handlers {
	return &Handlers{
		accounts: accounts,
		carts:    carts,
		orders:   orders,
		friends:  friends,
		pricing:  pr,
		catalog:  cat,
	}
}

// userID extracts the platform user identity from the Gin context (set by the
// gateway) with a header fallback for tests and local runs.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// displayName returns the gateway-reported display name, if any.
func displayName(c *gin.Context) string {
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-User-Name"))
	}
	return ""
}

// adminID extracts the acting administrator identity set by the admin-token
// middleware, falling back to a header for tests.
func adminID(c *gin.Context) string {
	if v, ok := c.Get("adminID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := strings.TrimSpace(c.GetHeader("X-Admin-ID")); h != "" {
		return h
	}
	return "admin"
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// newPagination derives the metadata block from a page fetch.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failErr maps a service-level error onto the HTTP error taxonomy. Unknown
// errors become opaque 500s; their detail goes to the log, not the client.
func failErr(c *gin.Context, err error) {
	var (
		stateConflict *services.StateConflictError
		insufficient  *services.InsufficientBalanceError
		cartLimit     *services.CartLimitError
	)
	switch {
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCartNotFound),
		errors.Is(err, services.ErrCartItemNotFound),
		errors.Is(err, services.ErrFriendshipNotFound),
		errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrUnknownItem):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &stateConflict):
		fail(c, http.StatusConflict, ErrCodeStateConflict, err.Error())
	case errors.As(err, &insufficient):
		fail(c, http.StatusConflict, ErrCodeInsufficientBalance, err.Error())
	case errors.As(err, &cartLimit):
		fail(c, http.StatusUnprocessableEntity, ErrCodeLimitExceeded, err.Error())
	case errors.Is(err, services.ErrDuplicateItem):
		fail(c, http.StatusConflict, ErrCodeDuplicateItem, err.Error())
	case errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrAlreadyFriends):
		fail(c, http.StatusConflict, ErrCodeDuplicateRequest, err.Error())
	case errors.Is(err, services.ErrRequestDecided):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrNotEligible):
		fail(c, http.StatusConflict, ErrCodeNotEligible, err.Error())
	case errors.Is(err, services.ErrAccountInUse):
		fail(c, http.StatusConflict, ErrCodeAccountInUse, err.Error())
	case errors.Is(err, services.ErrCartNotActive),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrNoProof),
		errors.Is(err, services.ErrNoSelection),
		errors.Is(err, services.ErrInvalidAccount):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
