// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Order rows.
//
// Status writes go through UpdateOrderStatusGuarded: an optimistic
// "UPDATE ... WHERE status = ?" whose RowsAffected tells the caller whether it
// won the transition. Two handlers racing on the same order cannot both
// observe a winning update.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// CreateOrder inserts a new order with a frozen item snapshot.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) (*domain.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder fetches one order by id, or ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOrderStatusGuarded moves the order from one status to another,
// applying extra column updates in the same statement, and reports whether
// the status guard matched.
func UpdateOrderStatusGuarded(ctx context.Context, db *gorm.DB, id, from, to string, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateOrderFields applies non-status column updates, or ErrNotFound.
func UpdateOrderFields(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrders returns a page of orders, optionally filtered by status,
// newest first.
func ListOrders(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Order, error) {
	q := db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Order
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountOrders returns the number of orders, optionally per status.
func CountOrders(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Order{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListOrdersForUser returns all orders for a platform identity, newest first.
func ListOrdersForUser(ctx context.Context, db *gorm.DB, userExternalID string) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("user_external_id = ?", userExternalID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListAwaitingWithSelection returns every order stuck in account selection
// that already carries a chosen account — the bulk-repair candidate set.
func ListAwaitingWithSelection(ctx context.Context, db *gorm.DB) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("status = ? AND selected_account_id IS NOT NULL", domain.OrderStatusAwaitingSelection).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// AccountReferencedByOpenOrders reports whether any non-terminal order still
// points at accountID (as its selected delivery target).
func AccountReferencedByOpenOrders(ctx context.Context, db *gorm.DB, accountID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("selected_account_id = ? AND status NOT IN ?", accountID,
			[]string{domain.OrderStatusCompleted, domain.OrderStatusRejected}).
		Count(&n).Error
	return n > 0, err
}

// DeleteStaleOrders removes non-terminal orders untouched since before.
// Administrative cleanup only; terminal rows are never deleted.
func DeleteStaleOrders(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status NOT IN ? AND updated_at < ?",
			[]string{domain.OrderStatusCompleted, domain.OrderStatusRejected}, before).
		Delete(&domain.Order{})
	return res.RowsAffected, res.Error
}
