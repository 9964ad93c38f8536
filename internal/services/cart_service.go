// Package services – CartService
//
// This file implements the CartService, which manages a user's shopping
// session: opening a cart, adding and removing catalog items, and validating
// the configured cart limits before checkout. Items are priced at add time
// from the live price configuration; the denormalized cart totals are
// recomputed from the item rows after every mutation and never trusted as a
// running sum.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

// CartService provides shopping-session operations.
type CartService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Catalog resolves catalog item ids to item metadata.
	Catalog *catalog.Store
	// Pricing resolves item prices at add time.
	Pricing *pricing.Store

	// MaxItems caps the number of items per cart; 0 disables the limit.
	MaxItems int
	// MaxCents caps the monetary total per cart; 0 disables the limit.
	MaxCents int64
}

// NewCartService constructs a CartService.
func NewCartService(db *gorm.DB, cat *catalog.Store, pr *pricing.Store, maxItems int, maxCents int64) *CartService {
	return &CartService{DB: db, Catalog: cat, Pricing: pr, MaxItems: maxItems, MaxCents: maxCents}
}

// Create opens a new cart for the platform user in channelID.
func (s *CartService) Create(ctx context.Context, userExternalID, displayName, channelID, region string) (*domain.Cart, error) {
	u, err := repo.GetOrCreateUser(ctx, s.DB, userExternalID, displayName)
	if err != nil {
		return nil, err
	}
	return repo.CreateCart(ctx, s.DB, u.ID, channelID, strings.ToUpper(strings.TrimSpace(region)))
}

// Get fetches a cart.
func (s *CartService) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	c, err := repo.GetCart(ctx, s.DB, cartID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return c, nil
}

// Items returns the cart's line items in add order.
func (s *CartService) Items(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	if _, err := s.Get(ctx, cartID); err != nil {
		return nil, err
	}
	return repo.ListCartItems(ctx, s.DB, cartID)
}

// AddItem prices catalogItemID against the current price configuration and
// adds it to the cart. The same catalog item may appear at most once per
// cart, and only active carts accept items.
func (s *CartService) AddItem(ctx context.Context, cartID string, catalogItemID int64) (*domain.CartItem, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CartStatusActive {
		return nil, ErrCartNotActive
	}

	item, ok := s.Catalog.ByID(catalogItemID)
	if !ok {
		return nil, ErrUnknownItem
	}
	if _, err := repo.GetCartItemByCatalogID(ctx, s.DB, cartID, item.ID); err == nil {
		return nil, ErrDuplicateItem
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg := s.Pricing.Config()
	price := pricing.Resolve(&item, cfg)

	added, err := repo.AddCartItem(ctx, s.DB, cartID, item.ID, item.Name, price, item.ItemCategory)
	if err != nil {
		// Concurrent adds can still race past the pre-check into the
		// unique index.
		if isDuplicate(err) {
			return nil, ErrDuplicateItem
		}
		return nil, err
	}
	if err := s.recomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveItem deletes one line item and recomputes the totals.
func (s *CartService) RemoveItem(ctx context.Context, cartID, itemID string) error {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return err
	}
	if c.Status != domain.CartStatusActive {
		return ErrCartNotActive
	}

	it, err := repo.ListCartItems(ctx, s.DB, cartID)
	if err != nil {
		return err
	}
	found := false
	for i := range it {
		if it[i].ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return ErrCartItemNotFound
	}

	if err := repo.DeleteCartItem(ctx, s.DB, itemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCartItemNotFound
		}
		return err
	}
	return s.recomputeTotals(ctx, cartID)
}

// ValidateLimits checks the cart against every configured limit and reports
// all violations at once via CartLimitError. An empty cart fails with
// ErrEmptyCart.
func (s *CartService) ValidateLimits(ctx context.Context, cartID string) error {
	if _, err := s.Get(ctx, cartID); err != nil {
		return err
	}
	totalRP, count, err := repo.SumCartItems(ctx, s.DB, cartID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrEmptyCart
	}

	cfg := s.Pricing.Config()
	totalCents := pricing.MoneyCents(totalRP, cfg)

	var violations []string
	if s.MaxItems > 0 && count > int64(s.MaxItems) {
		violations = append(violations, fmt.Sprintf("%d items (max %d)", count, s.MaxItems))
	}
	if s.MaxCents > 0 && totalCents > s.MaxCents {
		violations = append(violations, fmt.Sprintf("total %d cents (max %d)", totalCents, s.MaxCents))
	}
	if len(violations) > 0 {
		return &CartLimitError{Violations: violations}
	}
	return nil
}

// Close abandons the cart, deleting it and its items.
func (s *CartService) Close(ctx context.Context, cartID string) error {
	if err := repo.DeleteCart(ctx, s.DB, cartID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCartNotFound
		}
		return err
	}
	return nil
}

// recomputeTotals rewrites the denormalized totals from the item rows.
func (s *CartService) recomputeTotals(ctx context.Context, cartID string) error {
	totalRP, _, err := repo.SumCartItems(ctx, s.DB, cartID)
	if err != nil {
		return err
	}
	cfg := s.Pricing.Config()
	return repo.UpdateCartTotals(ctx, s.DB, cartID, totalRP, pricing.MoneyCents(totalRP, cfg))
}
