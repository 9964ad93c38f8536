// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Admin surface isolated behind the shared-token gate
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/config"
	"github.com/tbourn/go-giftshop-backend/internal/http/handlers"
	"github.com/tbourn/go-giftshop-backend/internal/http/middleware"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/services"
)

// Deps carries everything the router needs injected.
type Deps struct {
	DB       *gorm.DB
	Catalog  *catalog.Store
	Pricing  *pricing.Store
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS and security
// headers, health and metrics endpoints, the versioned public API, and the
// token-guarded admin surface.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS, gzip, and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", "X-User-Name", middleware.HeaderAdminToken, middleware.HeaderAdminID},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", "X-User-Name", middleware.HeaderAdminToken, middleware.HeaderAdminID},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compress list-heavy admin responses.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/stores
	minAge := time.Duration(cfg.MinFriendDays) * 24 * time.Hour
	accountSvc := services.NewAccountService(deps.DB)
	friendSvc := services.NewFriendshipService(deps.DB, deps.Notifier, minAge)
	cartSvc := services.NewCartService(deps.DB, deps.Catalog, deps.Pricing, cfg.CartMaxItems, cfg.CartMaxCents)
	orderSvc := services.NewOrderService(deps.DB, cartSvc, friendSvc, deps.Notifier, deps.Log)

	h := handlers.New(accountSvc, cartSvc, orderSvc, friendSvc, deps.Pricing, deps.Catalog)

	// Public API (the chat gateway authenticates end users upstream)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Carts
		api.POST("/carts", h.CreateCart)
		api.GET("/carts/:id", h.GetCart)
		api.POST("/carts/:id/items", h.AddCartItem)
		api.DELETE("/carts/:id/items/:itemID", h.RemoveCartItem)
		api.POST("/carts/:id/checkout", h.CheckoutCart)
		api.POST("/carts/:id/close", h.CloseCart)

		// Orders
		api.GET("/orders", h.ListMyOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/proof", h.SubmitProof)

		// Friendships and eligibility
		api.POST("/friend-requests", h.CreateFriendRequest)
		api.GET("/friendships", h.ListMyFriendships)
		api.GET("/gift-check", h.GiftCheck)

		// Accounts (public read so users can pick one to befriend)
		api.GET("/accounts", h.ListAccounts)
	}

	// Admin API
	admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
	{
		// Accounts
		admin.POST("/accounts", h.CreateAccount)
		admin.GET("/accounts", h.ListAccounts)
		admin.GET("/accounts/:id", h.GetAccount)
		admin.PATCH("/accounts/:id", h.UpdateAccount)
		admin.DELETE("/accounts/:id", h.DeleteAccount)
		admin.POST("/accounts/:id/credit", h.CreditAccount)
		admin.POST("/accounts/:id/debit", h.DebitAccount)

		// Orders
		admin.GET("/orders", h.ListOrders)
		admin.GET("/orders/stats", h.OrderStats)
		admin.POST("/orders/:id/approve", h.ApproveOrder)
		admin.POST("/orders/:id/reject", h.RejectOrder)
		admin.POST("/orders/:id/finalize", h.FinalizeOrder)
		admin.POST("/orders/:id/force-complete", h.ForceCompleteOrder)
		admin.POST("/orders/complete-selected", h.CompleteSelectedOrders)
		admin.DELETE("/orders/stale", h.PurgeStaleOrders(cfg.StaleOrderAge))

		// Friendships
		admin.GET("/friend-requests", h.ListFriendRequests)
		admin.POST("/friend-requests/:id/approve", h.ApproveFriendRequest)
		admin.POST("/friend-requests/:id/reject", h.RejectFriendRequest)
		admin.DELETE("/friendships/:id", h.DeleteFriendship)
		admin.POST("/friendships/:id/recheck", h.RecheckFriendship)
		admin.POST("/friendships/:id/reset-notification", h.ResetFriendshipNotification)

		// Pricing
		admin.GET("/pricing", h.ExportPricing)
		admin.PUT("/pricing", h.ImportPricing)
		admin.POST("/pricing/reset", h.ResetPricing)
		admin.PUT("/pricing/overrides/:itemID", h.SetPriceOverride)
		admin.DELETE("/pricing/overrides/:itemID", h.ClearPriceOverride)
		admin.PUT("/pricing/prices/:table/:key", h.SetTierPrice)
		admin.DELETE("/pricing/prices/:table/:key", h.ClearTierPrice)
		admin.PUT("/pricing/multipliers/:name", h.SetMultiplier)
		admin.DELETE("/pricing/multipliers/:name", h.ClearMultiplier)
		admin.PUT("/pricing/fallback", h.SetFallbackPrice)
		admin.POST("/pricing/apply", h.ApplyPricing)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
