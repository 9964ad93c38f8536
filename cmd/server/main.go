// Command server runs the gift-shop backend: the HTTP API, the SQLite-backed
// persistence layer, and the background eligibility sweeper.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/config"
	httpapi "github.com/tbourn/go-giftshop-backend/internal/http"
	"github.com/tbourn/go-giftshop-backend/internal/job"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/observability"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
	"github.com/tbourn/go-giftshop-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local runs read .env; absence is fine in containers.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", "giftshop").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	// Persistence.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	// Document stores.
	catalogStore := catalog.NewStore(cfg.CatalogPath)
	if _, err := catalogStore.Load(); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog failed")
	}
	pricingStore := pricing.NewStore(cfg.PricingPath)
	if err := pricingStore.Load(); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PricingPath).Msg("load pricing failed")
	}

	notifier := notify.NewLogNotifier(logger)

	// Background eligibility sweeper.
	minAge := time.Duration(cfg.MinFriendDays) * 24 * time.Hour
	sweeper := job.NewEligibilitySweeper(db, notifier, logger,
		minAge, cfg.SweepInterval, cfg.SweepBatch, cfg.SweepNotifyRPS)
	go sweeper.Start(ctx)

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, httpapi.Deps{
		DB:       db,
		Catalog:  catalogStore,
		Pricing:  pricingStore,
		Notifier: notifier,
		Log:      logger,
	}, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for SIGINT/SIGTERM, then drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	cancel() // stop background jobs

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("bye")
}
