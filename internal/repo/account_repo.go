// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the account ledger: every balance and
// friend-slot mutation is a guarded single-row conditional update that
// succeeds only if the invariant (balance >= 0, friend_count <= max_friends)
// holds after the mutation, branching on RowsAffected rather than trusting a
// read-then-write sequence.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// Ledger guard failures. These are expected outcomes, not storage errors:
// callers branch on them to pick another account or surface a shortfall.
var (
	// ErrInsufficientBalance means a debit would take the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrFriendSlotsFull means the account has no free friend slot.
	ErrFriendSlotsFull = errors.New("friend slots full")
)

// CreateAccount inserts a new delivery account.
func CreateAccount(ctx context.Context, db *gorm.DB, name string, balance int64, maxFriends int, region string) (*domain.Account, error) {
	a := &domain.Account{
		ID:         uuid.NewString(),
		Name:       name,
		Balance:    balance,
		MaxFriends: maxFriends,
		Region:     region,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccount fetches one account by id, or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns a page of accounts, optionally filtered by region,
// ordered by creation time ascending.
func ListAccounts(ctx context.Context, db *gorm.DB, region string, offset, limit int) ([]domain.Account, error) {
	q := db.WithContext(ctx).Order("created_at asc")
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var out []domain.Account
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountAccounts returns the number of accounts, optionally per region.
func CountAccounts(ctx context.Context, db *gorm.DB, region string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Account{})
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// UpdateAccount applies admin-editable fields (name, region, max_friends).
// Shrinking max_friends below the current friend count is refused so the slot
// invariant keeps holding.
func UpdateAccount(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	q := db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id)
	if v, ok := updates["max_friends"]; ok {
		q = q.Where("friend_count <= ?", v)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetAccount(ctx, db, id); err != nil {
			return err
		}
		return ErrFriendSlotsFull
	}
	return nil
}

// DeleteAccount removes the account row. Friendships cascade via FK; the
// service layer is responsible for refusing deletion while open orders still
// reference the account.
func DeleteAccount(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Account{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitBalance atomically subtracts amount, succeeding only while
// balance >= amount. On a guard miss it distinguishes a missing account from
// an insufficient balance.
func DebitBalance(ctx context.Context, db *gorm.DB, id string, amount int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetAccount(ctx, db, id); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

// CreditBalance atomically adds amount (unconditional increment).
func CreditBalance(ctx context.Context, db *gorm.DB, id string, amount int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementFriendCount claims one friend slot, succeeding only while
// friend_count < max_friends.
func IncrementFriendCount(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND friend_count < max_friends", id).
		Update("friend_count", gorm.Expr("friend_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetAccount(ctx, db, id); err != nil {
			return err
		}
		return ErrFriendSlotsFull
	}
	return nil
}

// DecrementFriendCount releases one friend slot. Decrementing at zero is a
// no-op, not an error; the counter never goes negative.
func DecrementFriendCount(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND friend_count > 0", id).
		Update("friend_count", gorm.Expr("friend_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Missing account is still reported; an at-zero counter is not.
		if _, err := GetAccount(ctx, db, id); err != nil {
			return err
		}
	}
	return nil
}
