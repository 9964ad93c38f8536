// Package services – OrderService
//
// This file implements the OrderService, which drives an order through the
// approval and fulfillment state machine:
//
//	PENDING_PAYMENT_PROOF → PENDING_MANUAL_APPROVAL →
//	AWAITING_ACCOUNT_SELECTION → COMPLETED (or REJECTED at approval)
//
// Every transition is an optimistic status-guarded UPDATE; losing the guard
// surfaces a StateConflictError instead of silently double-applying. The
// completion path runs the status flip and the balance debit inside a single
// transaction so an order can never complete twice nor complete without
// paying.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

var (
	completedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftshop_orders_completed_total",
		Help: "Orders completed through the normal finalize path.",
	})
	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftshop_orders_rejected_total",
		Help: "Orders rejected at manual approval.",
	})
	rpDebitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftshop_rp_debited_total",
		Help: "Total RP debited from gift accounts by completed orders.",
	})
	// forceCompletedTotal counts completions that bypassed the balance debit.
	// These are administrative repairs and should stay near zero in steady state.
	forceCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftshop_orders_force_completed_total",
		Help: "Orders completed administratively without debiting an account.",
	})
)

// AccountCandidate is one delivery account the buyer may receive the gift on.
type AccountCandidate struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
}

// ExcludedAccount is a delivery account ruled out during approval, with the
// reasons it failed. DaysRemaining > 0 means the friendship is too recent;
// RPShortfall > 0 means the account cannot cover the order.
type ExcludedAccount struct {
	AccountID     string `json:"account_id"`
	Name          string `json:"name"`
	DaysRemaining int    `json:"days_remaining,omitempty"`
	RPShortfall   int64  `json:"rp_shortfall,omitempty"`
}

// ApprovalResult is the outcome of an approval reconciliation. When
// Candidates is empty the order did not transition; Excluded explains why
// each linked account was ruled out. AutoSelect flags the single-candidate
// case, where the UI may preselect but must still confirm.
type ApprovalResult struct {
	Order      *domain.Order      `json:"order"`
	Candidates []AccountCandidate `json:"candidates"`
	Excluded   []ExcludedAccount  `json:"excluded,omitempty"`
	AutoSelect bool               `json:"auto_select"`
}

// OrderService implements the order lifecycle.
type OrderService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Carts validates and transitions the originating cart at checkout.
	Carts *CartService
	// Friends evaluates the gifting-eligibility gate.
	Friends *FriendshipService
	// Notifier delivers lifecycle notices to buyers. May be nil in tests.
	Notifier notify.Notifier
	// Log is the service logger.
	Log zerolog.Logger
}

// NewOrderService constructs an OrderService.
func NewOrderService(db *gorm.DB, carts *CartService, friends *FriendshipService, n notify.Notifier, log zerolog.Logger) *OrderService {
	return &OrderService{DB: db, Carts: carts, Friends: friends, Notifier: n, Log: log}
}

// Checkout converts an active cart into an order. The cart's items are
// frozen into the order snapshot so later catalog or price edits cannot
// change what was bought; the cart flips to pending_payment and the order
// lands in PENDING_PAYMENT_PROOF. A non-empty preselectedAccountID records
// the buyer's up-front account choice without advancing the state machine
// (payment proof is still required).
func (s *OrderService) Checkout(ctx context.Context, cartID, preselectedAccountID string) (*domain.Order, error) {
	if err := s.Carts.ValidateLimits(ctx, cartID); err != nil {
		return nil, err
	}
	cart, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	owner, err := repo.GetUser(ctx, s.DB, cart.UserID)
	if err != nil {
		return nil, err
	}
	items, err := repo.ListCartItems(ctx, s.DB, cartID)
	if err != nil {
		return nil, err
	}

	snapshot := make([]domain.OrderItem, 0, len(items))
	var totalRP int64
	for _, it := range items {
		snapshot = append(snapshot, domain.OrderItem{
			CatalogItemID: it.CatalogItemID,
			Name:          it.Name,
			PriceRP:       it.PriceRP,
			Category:      it.Category,
		})
		totalRP += it.PriceRP
	}
	// Monetary total derives from the snapshot at the current rate, never
	// from the denormalized cart row.
	totalCents := pricing.MoneyCents(totalRP, s.Carts.Pricing.Config())

	order := &domain.Order{
		UserExternalID: owner.ExternalID,
		CartID:         cart.ID,
		Items:          snapshot,
		TotalRP:        totalRP,
		TotalCents:     totalCents,
		Status:         domain.OrderStatusPendingProof,
		ChannelID:      cart.ChannelID,
		Region:         cart.Region,
	}
	if preselectedAccountID != "" {
		if _, err := repo.GetAccount(ctx, s.DB, preselectedAccountID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		order.SelectedAccountID = &preselectedAccountID
	}

	var created *domain.Order
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.UpdateCartStatusGuarded(ctx, tx, cartID, domain.CartStatusActive, domain.CartStatusPendingPayment)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCartNotActive
		}
		created, err = repo.CreateOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("order_id", created.ID).
		Str("cart_id", cart.ID).
		Int64("total_rp", totalRP).
		Msg("order created")
	return created, nil
}

// Get fetches one order.
func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := repo.GetOrder(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListForUser returns all orders placed by a platform user, newest first.
func (s *OrderService) ListForUser(ctx context.Context, userExternalID string) ([]domain.Order, error) {
	return repo.ListOrdersForUser(ctx, s.DB, userExternalID)
}

// ListPage returns a page of orders, optionally filtered by status.
func (s *OrderService) ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountOrders(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Order{}, 0, nil
	}
	items, err := repo.ListOrders(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	return items, total, err
}

// SubmitProof attaches a payment proof reference and moves the order to
// manual approval.
func (s *OrderService) SubmitProof(ctx context.Context, orderID, proofRef string) (*domain.Order, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, ErrNoProof
	}

	ok, err := repo.UpdateOrderStatusGuarded(ctx, s.DB, orderID,
		domain.OrderStatusPendingProof, domain.OrderStatusPendingApproval,
		map[string]any{"proof_ref": proofRef})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, orderID, domain.OrderStatusPendingApproval)
	}
	return s.Get(ctx, orderID)
}

// Approve reconciles delivery options for an order awaiting manual approval.
// Every account linked to the buyer is evaluated against the eligibility gate
// and against solvency for the order total; accounts that fail are retained
// with their reasons. With zero candidates the order does not transition and
// the reasons are returned for the admin to relay. Otherwise the order moves
// to AWAITING_ACCOUNT_SELECTION and the buyer is prompted to pick.
func (s *OrderService) Approve(ctx context.Context, orderID, adminID string) (*ApprovalResult, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusPendingApproval {
		return nil, &StateConflictError{OrderID: orderID, Current: o.Status, Attempted: domain.OrderStatusAwaitingSelection}
	}
	if o.ProofRef == nil || *o.ProofRef == "" {
		return nil, ErrNoProof
	}

	owner, err := repo.GetUserByExternalID(ctx, s.DB, o.UserExternalID)
	if err != nil {
		return nil, err
	}
	friendships, err := repo.ListFriendshipsByUser(ctx, s.DB, owner.ID)
	if err != nil {
		return nil, err
	}

	res := &ApprovalResult{Order: o}
	for _, f := range friendships {
		acct, err := repo.GetAccount(ctx, s.DB, f.AccountID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if o.Region != "" && acct.Region != "" && acct.Region != o.Region {
			continue
		}

		check, err := s.Friends.CanGift(ctx, owner.ID, acct.ID)
		if err != nil {
			return nil, err
		}
		var shortfall int64
		if acct.Balance < o.TotalRP {
			shortfall = o.TotalRP - acct.Balance
		}
		if check.Allowed && shortfall == 0 {
			res.Candidates = append(res.Candidates, AccountCandidate{
				AccountID: acct.ID,
				Name:      acct.Name,
				Balance:   acct.Balance,
			})
			continue
		}
		res.Excluded = append(res.Excluded, ExcludedAccount{
			AccountID:     acct.ID,
			Name:          acct.Name,
			DaysRemaining: check.DaysRemaining,
			RPShortfall:   shortfall,
		})
	}

	if len(res.Candidates) == 0 {
		s.Log.Info().
			Str("order_id", orderID).
			Int("excluded", len(res.Excluded)).
			Msg("approval found no eligible delivery account")
		return res, nil
	}
	if len(res.Candidates) > notify.MaxSelectOptions {
		res.Candidates = res.Candidates[:notify.MaxSelectOptions]
	}
	res.AutoSelect = len(res.Candidates) == 1

	ok, err := repo.UpdateOrderStatusGuarded(ctx, s.DB, orderID,
		domain.OrderStatusPendingApproval, domain.OrderStatusAwaitingSelection,
		map[string]any{"processing_admin_id": adminID})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, orderID, domain.OrderStatusAwaitingSelection)
	}
	res.Order, err = s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		opts := make([]notify.SelectOption, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			opts = append(opts, notify.SelectOption{Value: c.AccountID, Label: c.Name})
		}
		_ = s.Notifier.PromptSelect(ctx, o.UserExternalID,
			"Your payment was approved. Pick the account to receive your gift on.", opts)
	}
	return res, nil
}

// Reject refuses an order awaiting manual approval.
func (s *OrderService) Reject(ctx context.Context, orderID, adminID, note string) (*domain.Order, error) {
	ok, err := repo.UpdateOrderStatusGuarded(ctx, s.DB, orderID,
		domain.OrderStatusPendingApproval, domain.OrderStatusRejected,
		map[string]any{"processing_admin_id": adminID, "admin_note": note})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, orderID, domain.OrderStatusRejected)
	}

	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	rejectedTotal.Inc()
	if s.Notifier != nil {
		_ = s.Notifier.NotifyUser(ctx, o.UserExternalID, "Your order was rejected. "+note)
	}
	return o, nil
}

// Finalize completes the order on the chosen delivery account. The selection
// is recorded first, then the status flip and the balance debit run in one
// transaction: a lost status guard means another completion already happened,
// and an uncovered debit rolls the status back and surfaces the shortfall
// while keeping the selection for a later retry or repair.
func (s *OrderService) Finalize(ctx context.Context, orderID, accountID, adminID string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusAwaitingSelection {
		return nil, &StateConflictError{OrderID: orderID, Current: o.Status, Attempted: domain.OrderStatusCompleted}
	}

	if accountID == "" {
		if o.SelectedAccountID == nil || *o.SelectedAccountID == "" {
			return nil, ErrNoSelection
		}
		accountID = *o.SelectedAccountID
	} else if err := repo.UpdateOrderFields(ctx, s.DB, orderID, map[string]any{"selected_account_id": accountID}); err != nil {
		return nil, err
	}

	owner, err := repo.GetUserByExternalID(ctx, s.DB, o.UserExternalID)
	if err != nil {
		return nil, err
	}
	check, err := s.Friends.CanGift(ctx, owner.ID, accountID)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		notEligible := &NotEligibleError{Reason: check.Reason, DaysRemaining: check.DaysRemaining}
		if check.EligibleOn != nil {
			notEligible.EligibleOn = *check.EligibleOn
		}
		return nil, notEligible
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.UpdateOrderStatusGuarded(ctx, tx, orderID,
			domain.OrderStatusAwaitingSelection, domain.OrderStatusCompleted,
			map[string]any{
				"debited_account_id":  accountID,
				"processing_admin_id": adminID,
			})
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ctx, orderID, domain.OrderStatusCompleted)
		}

		if err := repo.DebitBalance(ctx, tx, accountID, o.TotalRP); err != nil {
			if errors.Is(err, repo.ErrInsufficientBalance) {
				acct, gerr := repo.GetAccount(ctx, tx, accountID)
				if gerr != nil {
					return err
				}
				return &InsufficientBalanceError{AccountID: accountID, Needed: o.TotalRP, Balance: acct.Balance}
			}
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	completedTotal.Inc()
	rpDebitedTotal.Add(float64(o.TotalRP))
	s.Log.Info().
		Str("order_id", orderID).
		Str("account_id", accountID).
		Int64("total_rp", o.TotalRP).
		Msg("order completed")
	if s.Notifier != nil {
		_ = s.Notifier.NotifyUser(ctx, o.UserExternalID, "Your gift is on its way!")
	}
	return s.Get(ctx, orderID)
}

// ForceComplete marks a non-terminal order COMPLETED without debiting any
// account. It exists to repair orders whose delivery happened out of band.
func (s *OrderService) ForceComplete(ctx context.Context, orderID, adminID, note string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminalOrderStatus(o.Status) {
		return nil, &StateConflictError{OrderID: orderID, Current: o.Status, Attempted: domain.OrderStatusCompleted}
	}

	ok, err := repo.UpdateOrderStatusGuarded(ctx, s.DB, orderID,
		o.Status, domain.OrderStatusCompleted,
		map[string]any{"processing_admin_id": adminID, "admin_note": note})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, orderID, domain.OrderStatusCompleted)
	}

	forceCompletedTotal.Inc()
	s.Log.Warn().
		Bool("repair", true).
		Str("order_id", orderID).
		Str("admin_id", adminID).
		Str("from_status", o.Status).
		Msg("order force-completed without debit")
	return s.Get(ctx, orderID)
}

// CompleteSelected force-completes every order stuck in account selection
// that already carries a chosen account. Returns how many orders were
// completed.
func (s *OrderService) CompleteSelected(ctx context.Context, adminID string) (int, error) {
	orders, err := repo.ListAwaitingWithSelection(ctx, s.DB)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, o := range orders {
		ok, err := repo.UpdateOrderStatusGuarded(ctx, s.DB, o.ID,
			domain.OrderStatusAwaitingSelection, domain.OrderStatusCompleted,
			map[string]any{"processing_admin_id": adminID})
		if err != nil {
			return done, err
		}
		if !ok {
			continue
		}
		done++
		forceCompletedTotal.Inc()
		s.Log.Warn().
			Bool("repair", true).
			Str("order_id", o.ID).
			Str("admin_id", adminID).
			Msg("order force-completed without debit")
	}
	return done, nil
}

// PurgeStale deletes non-terminal orders untouched for longer than age.
func (s *OrderService) PurgeStale(ctx context.Context, age time.Duration) (int64, error) {
	n, err := repo.DeleteStaleOrders(ctx, s.DB, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Info().Int64("deleted", n).Msg("stale orders purged")
	}
	return n, nil
}

// Stats returns order aggregates grouped by status and, for completed
// orders, by region.
func (s *OrderService) Stats(ctx context.Context) ([]repo.OrderStatusStat, []repo.OrderRegionStat, error) {
	byStatus, err := repo.OrderStats(ctx, s.DB)
	if err != nil {
		return nil, nil, err
	}
	byRegion, err := repo.CompletedOrderStatsByRegion(ctx, s.DB)
	if err != nil {
		return nil, nil, err
	}
	return byStatus, byRegion, nil
}

// conflict builds a StateConflictError reflecting the status actually in
// storage after a lost guard.
func (s *OrderService) conflict(ctx context.Context, orderID, attempted string) error {
	current := "unknown"
	if o, err := repo.GetOrder(ctx, s.DB, orderID); err == nil {
		current = o.Status
	} else if errors.Is(err, repo.ErrNotFound) {
		return ErrOrderNotFound
	}
	return &StateConflictError{OrderID: orderID, Current: current, Attempted: attempted}
}
