// Package job contains the background workers that run alongside the HTTP
// server. Each worker exposes a Start(ctx) loop that exits when the context
// is cancelled, so main can run them as plain goroutines and stop them with
// the server's shutdown context.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

// notificationsSentTotal counts delivered one-time eligibility notices.
var notificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "giftshop_eligibility_notifications_total",
	Help: "One-time friendship-eligibility notifications delivered.",
})

// EligibilitySweeper delivers the one-time "you can now receive gifts"
// notification once a friendship ages past the minimum. Each run claims a
// bounded batch of eligible rows with a conditional notified_at stamp before
// sending, so concurrent sweeps never double-notify and a crash mid-send
// loses at most the claimed notification instead of repeating it.
type EligibilitySweeper struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Log      zerolog.Logger

	// MinFriendAge is the eligibility threshold.
	MinFriendAge time.Duration
	// Interval is the sweep period.
	Interval time.Duration
	// BatchSize caps claims per run.
	BatchSize int
	// Limiter paces outbound notifications.
	Limiter *rate.Limiter
}

// NewEligibilitySweeper constructs a sweeper with the given cadence.
func NewEligibilitySweeper(db *gorm.DB, n notify.Notifier, log zerolog.Logger, minAge, interval time.Duration, batch int, notifyRPS float64) *EligibilitySweeper {
	if batch <= 0 {
		batch = 10
	}
	if notifyRPS <= 0 {
		notifyRPS = 1
	}
	return &EligibilitySweeper{
		DB:           db,
		Notifier:     n,
		Log:          log,
		MinFriendAge: minAge,
		Interval:     interval,
		BatchSize:    batch,
		Limiter:      rate.NewLimiter(rate.Limit(notifyRPS), 1),
	}
}

// Start runs one sweep immediately, then on every tick until ctx is
// cancelled.
func (s *EligibilitySweeper) Start(ctx context.Context) {
	s.Log.Info().
		Dur("interval", s.Interval).
		Int("batch", s.BatchSize).
		Msg("eligibility sweeper started")

	if err := s.RunOnce(ctx); err != nil {
		s.Log.Error().Err(err).Msg("eligibility sweep failed")
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("eligibility sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.Log.Error().Err(err).Msg("eligibility sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep: list, claim, notify.
func (s *EligibilitySweeper) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.MinFriendAge)

	rows, err := repo.ListEligibleUnnotified(ctx, s.DB, cutoff, s.BatchSize)
	if err != nil {
		return fmt.Errorf("list eligible friendships: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	for _, f := range rows {
		claimed, err := repo.ClaimNotified(ctx, s.DB, f.ID, now)
		if err != nil {
			return fmt.Errorf("claim friendship %s: %w", f.ID, err)
		}
		if !claimed {
			// Another sweep got there first.
			continue
		}

		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		u, err := repo.GetUser(ctx, s.DB, f.UserID)
		if err != nil {
			s.Log.Error().Err(err).Str("friendship_id", f.ID).Msg("eligible user lookup failed")
			continue
		}
		if err := s.Notifier.NotifyUser(ctx, u.ExternalID,
			"Your friendship is old enough now: you can receive gifts on this account."); err != nil {
			// Claimed but undelivered; an admin reset re-arms it.
			s.Log.Error().Err(err).Str("friendship_id", f.ID).Msg("eligibility notification failed")
			continue
		}
		notificationsSentTotal.Inc()
		s.Log.Info().
			Str("friendship_id", f.ID).
			Str("user_external_id", u.ExternalID).
			Msg("eligibility notification sent")
	}
	return nil
}
