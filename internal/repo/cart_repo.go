// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Cart and
// CartItem rows. Denormalized cart totals are only ever written by
// UpdateCartTotals from sums recomputed out of the item rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// CreateCart opens a new shopping session for userID in channelID.
func CreateCart(ctx context.Context, db *gorm.DB, userID, channelID, region string) (*domain.Cart, error) {
	c := &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChannelID: channelID,
		Region:    region,
		Status:    domain.CartStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCart fetches one cart by id, or ErrNotFound.
func GetCart(ctx context.Context, db *gorm.DB, id string) (*domain.Cart, error) {
	var c domain.Cart
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// AddCartItem inserts one line item. The unique (cart_id, catalog_item_id)
// index backs the duplicate-add guard; the service checks first to return a
// friendly signal, this index is the backstop.
func AddCartItem(ctx context.Context, db *gorm.DB, cartID string, catalogItemID int64, name string, priceRP int64, category string) (*domain.CartItem, error) {
	it := &domain.CartItem{
		ID:            uuid.NewString(),
		CartID:        cartID,
		CatalogItemID: catalogItemID,
		Name:          name,
		PriceRP:       priceRP,
		Category:      category,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(it).Error; err != nil {
		return nil, err
	}
	return it, nil
}

// GetCartItemByCatalogID returns the line item for catalogItemID in cartID,
// or ErrNotFound.
func GetCartItemByCatalogID(ctx context.Context, db *gorm.DB, cartID string, catalogItemID int64) (*domain.CartItem, error) {
	var it domain.CartItem
	err := db.WithContext(ctx).
		Where("cart_id = ? AND catalog_item_id = ?", cartID, catalogItemID).
		First(&it).Error
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListCartItems returns the cart's items in add order.
func ListCartItems(ctx context.Context, db *gorm.DB, cartID string) ([]domain.CartItem, error) {
	var out []domain.CartItem
	err := db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// DeleteCartItem removes one line item, or ErrNotFound.
func DeleteCartItem(ctx context.Context, db *gorm.DB, itemID string) error {
	res := db.WithContext(ctx).Delete(&domain.CartItem{}, "id = ?", itemID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SumCartItems recomputes the RP total and item count from the rows.
func SumCartItems(ctx context.Context, db *gorm.DB, cartID string) (totalRP int64, count int64, err error) {
	q := db.WithContext(ctx).Model(&domain.CartItem{}).Where("cart_id = ?", cartID)
	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	var row struct {
		Total int64
	}
	if err = q.Select("COALESCE(SUM(price_rp), 0) AS total").Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Total, count, nil
}

// UpdateCartTotals writes the denormalized totals, or ErrNotFound. Callers
// must derive both values from SumCartItems, never from a running total.
func UpdateCartTotals(ctx context.Context, db *gorm.DB, cartID string, totalRP, totalCents int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{"total_rp": totalRP, "total_cents": totalCents})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCartStatusGuarded moves the cart from one status to another,
// reporting whether the guard matched.
func UpdateCartStatusGuarded(ctx context.Context, db *gorm.DB, cartID, from, to string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Cart{}).
		Where("id = ? AND status = ?", cartID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteCart removes the cart and its items. Items are deleted explicitly so
// the cleanup does not depend on the connection's foreign_keys pragma.
func DeleteCart(ctx context.Context, db *gorm.DB, cartID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.CartItem{}, "cart_id = ?", cartID).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Cart{}, "id = ?", cartID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
