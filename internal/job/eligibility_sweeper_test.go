package job

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

func newSweeperDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("sweeper_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.AutoMigrate(&domain.User{}, &domain.Account{}, &domain.Friendship{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// recordingNotifier captures NotifyUser calls.
type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingNotifier) NotifyUser(ctx context.Context, userExternalID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userExternalID)
	return nil
}

func (r *recordingNotifier) NotifyChannel(ctx context.Context, channelID, message string) error {
	return nil
}

func (r *recordingNotifier) PromptSelect(ctx context.Context, userExternalID, prompt string, options []notify.SelectOption) error {
	return nil
}

func (r *recordingNotifier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func seedFriendship(t *testing.T, db *gorm.DB, externalID, accountID string, age time.Duration) *domain.Friendship {
	t.Helper()
	ctx := context.Background()
	u, err := repo.GetOrCreateUser(ctx, db, externalID, "User")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	f, err := repo.CreateFriendship(ctx, db, u.ID, accountID, "nick", "0001")
	if err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	if err := db.Model(f).Update("created_at", time.Now().UTC().Add(-age)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	return f
}

func TestSweeper_NotifiesEligibleOnce(t *testing.T) {
	db := newSweeperDB(t)
	ctx := context.Background()

	acct, err := repo.CreateAccount(ctx, db, "gift-acc", 0, 250, "")
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	seedFriendship(t, db, "discord-old", acct.ID, 10*24*time.Hour)
	seedFriendship(t, db, "discord-new", acct.ID, 2*24*time.Hour)

	rec := &recordingNotifier{}
	s := NewEligibilitySweeper(db, rec, zerolog.Nop(), 7*24*time.Hour, time.Hour, 10, 1000)

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := rec.sent(); len(got) != 1 || got[0] != "discord-old" {
		t.Fatalf("notified = %v, want [discord-old]", got)
	}

	// A second run finds nothing: the stamp is set.
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("double notification: %v", got)
	}
}

func TestSweeper_BatchCap(t *testing.T) {
	db := newSweeperDB(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, db, "gift-acc", 0, 250, "")
	for i := 0; i < 5; i++ {
		seedFriendship(t, db, fmt.Sprintf("discord-%d", i), acct.ID, 10*24*time.Hour)
	}

	rec := &recordingNotifier{}
	s := NewEligibilitySweeper(db, rec, zerolog.Nop(), 7*24*time.Hour, time.Hour, 2, 1000)

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := rec.sent(); len(got) != 2 {
		t.Fatalf("first run notified %d, want 2", len(got))
	}

	// Remaining rows drain on later runs.
	for i := 0; i < 2; i++ {
		if err := s.RunOnce(ctx); err != nil {
			t.Fatalf("run %d: %v", i+2, err)
		}
	}
	if got := rec.sent(); len(got) != 5 {
		t.Fatalf("total notified %d, want 5", len(got))
	}
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	db := newSweeperDB(t)
	rec := &recordingNotifier{}
	s := NewEligibilitySweeper(db, rec, zerolog.Nop(), 7*24*time.Hour, 10*time.Millisecond, 10, 1000)
	s.Limiter = rate.NewLimiter(rate.Inf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
