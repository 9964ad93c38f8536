// Package services – AccountService
//
// This file implements the AccountService, which manages the fleet of shared
// gift accounts: creation, listing, balance top-ups, and deletion. Balance and
// friend-slot mutations go through the guarded repo updates so the ledger
// invariants (balance >= 0, friend_count <= max_friends) hold after every
// successful call. Service-level errors (e.g. ErrAccountNotFound,
// ErrAccountInUse) are returned for predictable cases so handlers can map
// them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

// ErrInvalidAccount is returned when account parameters fail validation.
var ErrInvalidAccount = errors.New("invalid account parameters")

// AccountService provides operations on the shared gift-account fleet.
type AccountService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{DB: db}
}

// Create registers a new gift account. maxFriends <= 0 falls back to the
// model default of 250.
func (s *AccountService) Create(ctx context.Context, name string, balance int64, maxFriends int, region string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || balance < 0 {
		return nil, ErrInvalidAccount
	}
	if maxFriends <= 0 {
		maxFriends = 250
	}
	return repo.CreateAccount(ctx, s.DB, name, balance, maxFriends, strings.ToUpper(strings.TrimSpace(region)))
}

// Get fetches one account.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	a, err := repo.GetAccount(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListPage returns a page of accounts, optionally filtered by region, plus the
// total count for pagination.
func (s *AccountService) ListPage(ctx context.Context, region string, page, pageSize int) ([]domain.Account, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	region = strings.ToUpper(strings.TrimSpace(region))

	total, err := repo.CountAccounts(ctx, s.DB, region)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Account{}, 0, nil
	}
	items, err := repo.ListAccounts(ctx, s.DB, region, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Update applies partial edits to an account. Shrinking max_friends below the
// current friend count is refused.
func (s *AccountService) Update(ctx context.Context, id string, name *string, maxFriends *int, region *string) (*domain.Account, error) {
	updates := map[string]any{}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, ErrInvalidAccount
		}
		updates["name"] = n
	}
	if maxFriends != nil {
		if *maxFriends <= 0 {
			return nil, ErrInvalidAccount
		}
		updates["max_friends"] = *maxFriends
	}
	if region != nil {
		updates["region"] = strings.ToUpper(strings.TrimSpace(*region))
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	if err := repo.UpdateAccount(ctx, s.DB, id, updates); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrAccountNotFound
		case errors.Is(err, repo.ErrFriendSlotsFull):
			return nil, repo.ErrFriendSlotsFull
		default:
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Credit tops up the account balance.
func (s *AccountService) Credit(ctx context.Context, id string, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAccount
	}
	if err := repo.CreditBalance(ctx, s.DB, id, amount); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Debit withdraws RP from the account, failing with a typed
// InsufficientBalanceError when the balance cannot cover it.
func (s *AccountService) Debit(ctx context.Context, id string, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAccount
	}
	if err := repo.DebitBalance(ctx, s.DB, id, amount); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrAccountNotFound
		case errors.Is(err, repo.ErrInsufficientBalance):
			a, gerr := repo.GetAccount(ctx, s.DB, id)
			if gerr != nil {
				return nil, err
			}
			return nil, &InsufficientBalanceError{AccountID: id, Needed: amount, Balance: a.Balance}
		default:
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete removes an account. Deletion is refused while non-terminal orders
// still reference it; dependent friendships are removed by the cascade.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if _, err := repo.GetAccount(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	busy, err := repo.AccountReferencedByOpenOrders(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if busy {
		return ErrAccountInUse
	}
	return repo.DeleteAccount(ctx, s.DB, id)
}

// Stats returns the fleet-wide balance and friend-slot aggregate.
func (s *AccountService) Stats(ctx context.Context) (repo.AccountStats, error) {
	return repo.AccountsStats(ctx, s.DB)
}
