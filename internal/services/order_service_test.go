package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

// shopEnv wires the full service stack over one test database. Item 42
// resolves to 1350 RP via an override; item 7 to 790 RP via its inventory
// type tier.
type shopEnv struct {
	db      *gorm.DB
	carts   *CartService
	orders  *OrderService
	friends *FriendshipService
}

func newShopEnv(t *testing.T) *shopEnv {
	t.Helper()

	db := newServiceDB(t)
	dir := t.TempDir()

	cat := catalog.NewStore(filepath.Join(dir, "catalog.json"))
	if err := cat.Save([]catalog.Item{
		{ID: 42, Name: "Star Blade", InventoryType: "CHAMPION_SKIN", ItemCategory: "EPIC_SKIN"},
		{ID: 7, Name: "Thornmail", InventoryType: "CHAMPION"},
	}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	pr := pricing.NewStore(filepath.Join(dir, "prices.json"))
	if err := pr.Load(); err != nil {
		t.Fatalf("load pricing: %v", err)
	}
	if err := pr.SetItemOverride("42", 1350); err != nil {
		t.Fatalf("seed override: %v", err)
	}
	if err := pr.SetTierPrice("inventoryTypes", "CHAMPION", 790); err != nil {
		t.Fatalf("seed tier: %v", err)
	}

	friends := NewFriendshipService(db, nil, week)
	carts := NewCartService(db, cat, pr, 0, 0)
	orders := NewOrderService(db, carts, friends, nil, zerolog.Nop())
	return &shopEnv{db: db, carts: carts, orders: orders, friends: friends}
}

// seedEligibleFriend creates a user linked to an account long enough ago to
// pass the gifting gate.
func (e *shopEnv) seedEligibleFriend(t *testing.T, externalID, accountID string, age time.Duration) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, err := repo.GetOrCreateUser(ctx, e.db, externalID, "Buyer")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	f, err := repo.CreateFriendship(ctx, e.db, u.ID, accountID, "buyer", "0001")
	if err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	if err := e.db.Model(f).Update("created_at", time.Now().UTC().Add(-age)).Error; err != nil {
		t.Fatalf("backdate friendship: %v", err)
	}
	return u
}

func (e *shopEnv) fillCart(t *testing.T, externalID string, itemIDs ...int64) *domain.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := e.carts.Create(ctx, externalID, "Buyer", "chan-1", "EUW")
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	for _, id := range itemIDs {
		if _, err := e.carts.AddItem(ctx, c.ID, id); err != nil {
			t.Fatalf("add item %d: %v", id, err)
		}
	}
	return c
}

func TestOrderLifecycle_HappyPath(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, env.db, "gift-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-1", acct.ID, 10*24*time.Hour)

	cart := env.fillCart(t, "discord-1", 42, 7)

	// Duplicate add of the same catalog item is refused.
	if _, err := env.carts.AddItem(ctx, cart.ID, 42); !errors.Is(err, ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}

	o, err := env.orders.Checkout(ctx, cart.ID, "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if o.Status != domain.OrderStatusPendingProof {
		t.Fatalf("status = %q", o.Status)
	}
	if o.TotalRP != 2140 {
		t.Fatalf("TotalRP = %d, want 2140", o.TotalRP)
	}
	// (2140 * 800 + 500) / 1000
	if o.TotalCents != 1712 {
		t.Fatalf("TotalCents = %d, want 1712", o.TotalCents)
	}

	// The cart left the active phase; further edits are refused.
	if _, err := env.carts.AddItem(ctx, cart.ID, 7); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive, got %v", err)
	}
	// And a second checkout cannot double-create.
	if _, err := env.orders.Checkout(ctx, cart.ID, ""); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive on re-checkout, got %v", err)
	}

	// A price edit after checkout does not touch the frozen snapshot.
	got, _ := env.orders.Get(ctx, o.ID)
	if len(got.Items) != 2 || got.Items[0].PriceRP != 1350 {
		t.Fatalf("snapshot = %+v", got.Items)
	}

	o, err = env.orders.SubmitProof(ctx, o.ID, "https://cdn/proof.png")
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if o.Status != domain.OrderStatusPendingApproval {
		t.Fatalf("status = %q", o.Status)
	}
	// Proof cannot be submitted twice.
	if _, err := env.orders.SubmitProof(ctx, o.ID, "again"); err == nil {
		t.Fatal("second proof submission should lose the guard")
	}

	res, err := env.orders.Approve(ctx, o.ID, "admin-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].AccountID != acct.ID {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	if !res.AutoSelect {
		t.Fatal("single candidate should flag auto-select")
	}
	if res.Order.Status != domain.OrderStatusAwaitingSelection {
		t.Fatalf("status = %q", res.Order.Status)
	}

	o, err = env.orders.Finalize(ctx, o.ID, acct.ID, "admin-1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if o.Status != domain.OrderStatusCompleted {
		t.Fatalf("status = %q", o.Status)
	}
	if o.DebitedAccountID == nil || *o.DebitedAccountID != acct.ID {
		t.Fatalf("DebitedAccountID = %v", o.DebitedAccountID)
	}

	// The debit actually happened.
	a, _ := repo.GetAccount(ctx, env.db, acct.ID)
	if a.Balance != 5000-2140 {
		t.Fatalf("balance = %d, want %d", a.Balance, 5000-2140)
	}

	// A second finalize is a state conflict, not a second debit.
	var sc *StateConflictError
	if _, err := env.orders.Finalize(ctx, o.ID, acct.ID, "admin-2"); !errors.As(err, &sc) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	if sc.Current != domain.OrderStatusCompleted {
		t.Fatalf("conflict current = %q", sc.Current)
	}
	a, _ = repo.GetAccount(ctx, env.db, acct.ID)
	if a.Balance != 5000-2140 {
		t.Fatalf("balance changed on failed finalize: %d", a.Balance)
	}
}

func TestApprove_NoEligibleAccounts(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	// Account A: friendship too recent. Account B: linked but broke.
	tooRecent, _ := repo.CreateAccount(ctx, env.db, "fresh", 5000, 250, "EUW")
	broke, _ := repo.CreateAccount(ctx, env.db, "broke", 100, 250, "EUW")

	env.seedEligibleFriend(t, "discord-1", tooRecent.ID, 2*24*time.Hour)
	u, _ := repo.GetUserByExternalID(ctx, env.db, "discord-1")
	if _, err := repo.CreateFriendship(ctx, env.db, u.ID, broke.ID, "buyer", "0001"); err != nil {
		t.Fatalf("link broke account: %v", err)
	}
	if err := env.db.Model(&domain.Friendship{}).
		Where("user_id = ? AND account_id = ?", u.ID, broke.ID).
		Update("created_at", time.Now().UTC().Add(-30*24*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	cart := env.fillCart(t, "discord-1", 42)
	o, _ := env.orders.Checkout(ctx, cart.ID, "")
	o, _ = env.orders.SubmitProof(ctx, o.ID, "proof")

	res, err := env.orders.Approve(ctx, o.ID, "admin-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	if len(res.Excluded) != 2 {
		t.Fatalf("excluded = %+v", res.Excluded)
	}
	for _, ex := range res.Excluded {
		switch ex.AccountID {
		case tooRecent.ID:
			if ex.DaysRemaining <= 0 {
				t.Fatalf("fresh account missing days remaining: %+v", ex)
			}
		case broke.ID:
			if ex.RPShortfall != 1350-100 {
				t.Fatalf("broke account shortfall = %d", ex.RPShortfall)
			}
		default:
			t.Fatalf("unexpected excluded account %q", ex.AccountID)
		}
	}

	// Zero candidates means no transition.
	got, _ := env.orders.Get(ctx, o.ID)
	if got.Status != domain.OrderStatusPendingApproval {
		t.Fatalf("order transitioned with zero candidates: %q", got.Status)
	}
}

func TestFinalize_InsufficientBalanceRollsBack(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, env.db, "gift-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-1", acct.ID, 10*24*time.Hour)

	cart := env.fillCart(t, "discord-1", 42)
	o, _ := env.orders.Checkout(ctx, cart.ID, "")
	o, _ = env.orders.SubmitProof(ctx, o.ID, "proof")
	if _, err := env.orders.Approve(ctx, o.ID, "admin-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Drain the account between approval and finalize.
	if err := repo.DebitBalance(ctx, env.db, acct.ID, 4000); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var ib *InsufficientBalanceError
	_, err := env.orders.Finalize(ctx, o.ID, acct.ID, "admin-1")
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if ib.Shortfall() != 1350-1000 {
		t.Fatalf("shortfall = %d, want 350", ib.Shortfall())
	}

	// The status flip rolled back with the debit; the selection survived for
	// a later retry.
	got, _ := env.orders.Get(ctx, o.ID)
	if got.Status != domain.OrderStatusAwaitingSelection {
		t.Fatalf("status = %q", got.Status)
	}
	if got.SelectedAccountID == nil || *got.SelectedAccountID != acct.ID {
		t.Fatalf("selection lost: %v", got.SelectedAccountID)
	}
	a, _ := repo.GetAccount(ctx, env.db, acct.ID)
	if a.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", a.Balance)
	}

	// Top up and retry using the recorded selection.
	if err := repo.CreditBalance(ctx, env.db, acct.ID, 400); err != nil {
		t.Fatalf("top up: %v", err)
	}
	got, err = env.orders.Finalize(ctx, o.ID, "", "admin-1")
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if got.Status != domain.OrderStatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}
	a, _ = repo.GetAccount(ctx, env.db, acct.ID)
	if a.Balance != 50 {
		t.Fatalf("balance = %d, want 50", a.Balance)
	}
}

func TestReject_TerminalAndGuarded(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, env.db, "gift-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-1", acct.ID, 10*24*time.Hour)

	cart := env.fillCart(t, "discord-1", 7)
	o, _ := env.orders.Checkout(ctx, cart.ID, "")
	o, _ = env.orders.SubmitProof(ctx, o.ID, "proof")

	o, err := env.orders.Reject(ctx, o.ID, "admin-1", "proof unreadable")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if o.Status != domain.OrderStatusRejected {
		t.Fatalf("status = %q", o.Status)
	}

	// Terminal: neither approval nor a second rejection may follow.
	var sc *StateConflictError
	if _, err := env.orders.Approve(ctx, o.ID, "admin-2"); !errors.As(err, &sc) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	if _, err := env.orders.Reject(ctx, o.ID, "admin-2", ""); !errors.As(err, &sc) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
}

func TestForceCompleteAndCompleteSelected(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, env.db, "gift-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-1", acct.ID, 10*24*time.Hour)

	// ForceComplete skips the debit entirely.
	cart := env.fillCart(t, "discord-1", 42)
	o, _ := env.orders.Checkout(ctx, cart.ID, "")
	o, err := env.orders.ForceComplete(ctx, o.ID, "admin-1", "delivered manually")
	if err != nil {
		t.Fatalf("ForceComplete: %v", err)
	}
	if o.Status != domain.OrderStatusCompleted || o.DebitedAccountID != nil {
		t.Fatalf("force-completed order = %+v", o)
	}
	a, _ := repo.GetAccount(ctx, env.db, acct.ID)
	if a.Balance != 5000 {
		t.Fatalf("force complete debited: %d", a.Balance)
	}
	var sc *StateConflictError
	if _, err := env.orders.ForceComplete(ctx, o.ID, "admin-1", ""); !errors.As(err, &sc) {
		t.Fatalf("expected StateConflictError on terminal order, got %v", err)
	}

	// CompleteSelected sweeps only awaiting orders that carry a selection.
	mk := func() *domain.Order {
		c := env.fillCart(t, "discord-1", 7)
		o, _ := env.orders.Checkout(ctx, c.ID, "")
		o, _ = env.orders.SubmitProof(ctx, o.ID, "proof")
		if _, err := env.orders.Approve(ctx, o.ID, "admin-1"); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		o, _ = env.orders.Get(ctx, o.ID)
		return o
	}
	withSel := mk()
	if err := repo.UpdateOrderFields(ctx, env.db, withSel.ID, map[string]any{"selected_account_id": acct.ID}); err != nil {
		t.Fatalf("set selection: %v", err)
	}
	withoutSel := mk()

	done, err := env.orders.CompleteSelected(ctx, "admin-1")
	if err != nil || done != 1 {
		t.Fatalf("CompleteSelected = %d, err %v", done, err)
	}
	got, _ := env.orders.Get(ctx, withSel.ID)
	if got.Status != domain.OrderStatusCompleted {
		t.Fatalf("selected order status = %q", got.Status)
	}
	got, _ = env.orders.Get(ctx, withoutSel.ID)
	if got.Status != domain.OrderStatusAwaitingSelection {
		t.Fatalf("unselected order swept: %q", got.Status)
	}
}

func TestCartLimits_AllViolationsReported(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	env.carts.MaxItems = 1
	env.carts.MaxCents = 100

	cart := env.fillCart(t, "discord-1", 42, 7)
	var limit *CartLimitError
	err := env.carts.ValidateLimits(ctx, cart.ID)
	if !errors.As(err, &limit) {
		t.Fatalf("expected CartLimitError, got %v", err)
	}
	if len(limit.Violations) != 2 {
		t.Fatalf("violations = %v, want both", limit.Violations)
	}

	// Checkout is blocked by the same check.
	if _, err := env.orders.Checkout(ctx, cart.ID, ""); !errors.As(err, &limit) {
		t.Fatalf("checkout should report limits, got %v", err)
	}

	// An empty cart cannot check out either.
	env.carts.MaxItems = 0
	env.carts.MaxCents = 0
	empty, _ := env.carts.Create(ctx, "discord-1", "Buyer", "chan-1", "")
	if _, err := env.orders.Checkout(ctx, empty.ID, ""); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCartRemoveItem_RecomputesTotals(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	cart := env.fillCart(t, "discord-1", 42, 7)
	items, err := env.carts.Items(ctx, cart.ID)
	if err != nil || len(items) != 2 {
		t.Fatalf("Items = %d, err %v", len(items), err)
	}

	if err := env.carts.RemoveItem(ctx, cart.ID, items[0].ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	c, _ := env.carts.Get(ctx, cart.ID)
	if c.TotalRP != 790 {
		t.Fatalf("TotalRP = %d, want 790", c.TotalRP)
	}
	// (790 * 800 + 500) / 1000
	if c.TotalCents != 632 {
		t.Fatalf("TotalCents = %d, want 632", c.TotalCents)
	}

	if err := env.carts.RemoveItem(ctx, cart.ID, "nope"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}

	// Unknown catalog ids are rejected at add time.
	if _, err := env.carts.AddItem(ctx, cart.ID, 999); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestCheckout_TotalCentsFromSnapshotRate(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	cart := env.fillCart(t, "discord-rate", 42) // 1350 RP
	c, err := env.carts.Get(ctx, cart.ID)
	if err != nil || c.TotalCents != 1080 {
		t.Fatalf("cart TotalCents = %d, err %v, want 1080", c.TotalCents, err)
	}

	// The currency rate doubles between the last cart mutation and checkout.
	cfg := env.carts.Pricing.Config()
	cfg.Currency.PerThousandCents = 1600
	if err := env.carts.Pricing.Save(cfg); err != nil {
		t.Fatalf("save pricing: %v", err)
	}

	o, err := env.orders.Checkout(ctx, cart.ID, "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if o.TotalRP != 1350 {
		t.Fatalf("order TotalRP = %d", o.TotalRP)
	}
	// (1350 * 1600 + 500) / 1000 — derived from the snapshot at the current
	// rate, not the stale cart row.
	if o.TotalCents != 2160 {
		t.Fatalf("order TotalCents = %d, want 2160", o.TotalCents)
	}
}

func TestFinalize_IneligibleAccountDetail(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	eligible, _ := repo.CreateAccount(ctx, env.db, "aged-acc", 5000, 250, "EUW")
	recent, _ := repo.CreateAccount(ctx, env.db, "fresh-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-f", eligible.ID, 10*24*time.Hour)
	env.seedEligibleFriend(t, "discord-f", recent.ID, 2*24*time.Hour)

	cart := env.fillCart(t, "discord-f", 7)
	o, err := env.orders.Checkout(ctx, cart.ID, "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if _, err := env.orders.SubmitProof(ctx, o.ID, "receipt-7"); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if _, err := env.orders.Approve(ctx, o.ID, "admin-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Picking the too-recent account reports how long is left.
	_, err = env.orders.Finalize(ctx, o.ID, recent.ID, "admin-1")
	var notEligible *NotEligibleError
	if !errors.As(err, &notEligible) {
		t.Fatalf("expected NotEligibleError, got %v", err)
	}
	if notEligible.DaysRemaining != 5 || notEligible.EligibleOn.IsZero() {
		t.Fatalf("unexpected detail: %+v", notEligible)
	}
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("sentinel match lost: %v", err)
	}

	// The order is untouched and still completes on the eligible account.
	if _, err := env.orders.Finalize(ctx, o.ID, eligible.ID, "admin-1"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestCheckout_PreselectedAccount(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	acct, _ := repo.CreateAccount(ctx, env.db, "gift-acc", 5000, 250, "EUW")
	env.seedEligibleFriend(t, "discord-pre", acct.ID, 10*24*time.Hour)

	cart := env.fillCart(t, "discord-pre", 7)
	o, err := env.orders.Checkout(ctx, cart.ID, acct.ID)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	// The choice is recorded but the state machine does not advance.
	if o.Status != domain.OrderStatusPendingProof {
		t.Fatalf("status = %s", o.Status)
	}
	if o.SelectedAccountID == nil || *o.SelectedAccountID != acct.ID {
		t.Fatalf("SelectedAccountID = %v", o.SelectedAccountID)
	}

	// An unknown preselect is refused and the cart stays active.
	cart2 := env.fillCart(t, "discord-pre", 42)
	if _, err := env.orders.Checkout(ctx, cart2.ID, "no-such-account"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	c2, err := env.carts.Get(ctx, cart2.ID)
	if err != nil || c2.Status != domain.CartStatusActive {
		t.Fatalf("cart after refused checkout: %+v, %v", c2, err)
	}
}

func TestPurgeStale(t *testing.T) {
	env := newShopEnv(t)
	ctx := context.Background()

	cart := env.fillCart(t, "discord-1", 7)
	o, _ := env.orders.Checkout(ctx, cart.ID, "")

	old := time.Now().UTC().Add(-45 * 24 * time.Hour)
	if err := env.db.Model(&domain.Order{}).Where("id = ?", o.ID).Update("updated_at", old).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := env.orders.PurgeStale(ctx, 30*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("PurgeStale = %d, err %v", n, err)
	}
	if _, err := env.orders.Get(ctx, o.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("stale order survived: %v", err)
	}
}
