package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

func newCartRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("cart_repo_test_%d.db", time.Now().UnixNano()))
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

	if err := db.AutoMigrate(&domain.Cart{}, &domain.CartItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCreateCart_Defaults(t *testing.T) {
	db := newCartRepoDB(t)

	c, err := CreateCart(context.Background(), db, "user-1", "chan-1", "EUW")
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if c.Status != domain.CartStatusActive || c.TotalRP != 0 || c.TotalCents != 0 {
		t.Fatalf("unexpected new cart: %+v", c)
	}

	got, err := GetCart(context.Background(), db, c.ID)
	if err != nil || got.ChannelID != "chan-1" {
		t.Fatalf("GetCart = %+v, err %v", got, err)
	}
}

func TestAddCartItem_DuplicateCatalogIDRejected(t *testing.T) {
	db := newCartRepoDB(t)
	ctx := context.Background()
	c, _ := CreateCart(ctx, db, "user-1", "chan-1", "")

	if _, err := AddCartItem(ctx, db, c.ID, 42, "Star Blade", 1350, "SKIN"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := AddCartItem(ctx, db, c.ID, 42, "Star Blade", 1350, "SKIN"); err == nil {
		t.Fatal("duplicate catalog item should hit the unique index")
	}

	// The same catalog item is fine in a different cart.
	c2, _ := CreateCart(ctx, db, "user-2", "chan-1", "")
	if _, err := AddCartItem(ctx, db, c2.ID, 42, "Star Blade", 1350, "SKIN"); err != nil {
		t.Fatalf("add to second cart: %v", err)
	}
}

func TestSumCartItems_AndTotals(t *testing.T) {
	db := newCartRepoDB(t)
	ctx := context.Background()
	c, _ := CreateCart(ctx, db, "user-1", "chan-1", "")

	total, count, err := SumCartItems(ctx, db, c.ID)
	if err != nil || total != 0 || count != 0 {
		t.Fatalf("empty cart sum = (%d, %d), err %v", total, count, err)
	}

	_, _ = AddCartItem(ctx, db, c.ID, 1, "a", 975, "SKIN")
	it, _ := AddCartItem(ctx, db, c.ID, 2, "b", 1350, "SKIN")
	_, _ = AddCartItem(ctx, db, c.ID, 3, "c", 490, "CHAMPION")

	total, count, err = SumCartItems(ctx, db, c.ID)
	if err != nil || total != 2815 || count != 3 {
		t.Fatalf("sum = (%d, %d), err %v", total, count, err)
	}

	if err := UpdateCartTotals(ctx, db, c.ID, total, 2252); err != nil {
		t.Fatalf("UpdateCartTotals: %v", err)
	}
	got, _ := GetCart(ctx, db, c.ID)
	if got.TotalRP != 2815 || got.TotalCents != 2252 {
		t.Fatalf("totals not written: %+v", got)
	}

	// Remove the middle item and recompute.
	if err := DeleteCartItem(ctx, db, it.ID); err != nil {
		t.Fatalf("DeleteCartItem: %v", err)
	}
	total, count, _ = SumCartItems(ctx, db, c.ID)
	if total != 1465 || count != 2 {
		t.Fatalf("sum after delete = (%d, %d)", total, count)
	}
}

func TestListCartItems_AddOrder(t *testing.T) {
	db := newCartRepoDB(t)
	ctx := context.Background()
	c, _ := CreateCart(ctx, db, "user-1", "chan-1", "")

	for i, id := range []int64{10, 20, 30} {
		it, err := AddCartItem(ctx, db, c.ID, id, fmt.Sprintf("item-%d", id), 100, "")
		if err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
		// Spread creation times so ordering is deterministic at second granularity.
		if err := db.Model(it).Update("created_at", time.Now().UTC().Add(time.Duration(i)*time.Second)).Error; err != nil {
			t.Fatalf("stamp: %v", err)
		}
	}

	items, err := ListCartItems(ctx, db, c.ID)
	if err != nil || len(items) != 3 {
		t.Fatalf("ListCartItems = %d rows, err %v", len(items), err)
	}
	for i, want := range []int64{10, 20, 30} {
		if items[i].CatalogItemID != want {
			t.Fatalf("items[%d].CatalogItemID = %d, want %d", i, items[i].CatalogItemID, want)
		}
	}
}

func TestUpdateCartStatusGuarded(t *testing.T) {
	db := newCartRepoDB(t)
	ctx := context.Background()
	c, _ := CreateCart(ctx, db, "user-1", "chan-1", "")

	ok, err := UpdateCartStatusGuarded(ctx, db, c.ID, domain.CartStatusActive, domain.CartStatusPendingPayment)
	if err != nil || !ok {
		t.Fatalf("first guard = %v, %v", ok, err)
	}
	// Stale guard loses.
	ok, err = UpdateCartStatusGuarded(ctx, db, c.ID, domain.CartStatusActive, domain.CartStatusClosed)
	if err != nil || ok {
		t.Fatalf("stale guard = %v, %v", ok, err)
	}
	got, _ := GetCart(ctx, db, c.ID)
	if got.Status != domain.CartStatusPendingPayment {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestDeleteCart_RemovesItems(t *testing.T) {
	db := newCartRepoDB(t)
	ctx := context.Background()
	c, _ := CreateCart(ctx, db, "user-1", "chan-1", "")
	_, _ = AddCartItem(ctx, db, c.ID, 1, "a", 100, "")
	_, _ = AddCartItem(ctx, db, c.ID, 2, "b", 200, "")

	if err := DeleteCart(ctx, db, c.ID); err != nil {
		t.Fatalf("DeleteCart: %v", err)
	}
	if _, err := GetCart(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cart survived delete: %v", err)
	}
	items, err := ListCartItems(ctx, db, c.ID)
	if err != nil || len(items) != 0 {
		t.Fatalf("items survived delete: %d rows, err %v", len(items), err)
	}
	if err := DeleteCart(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}
