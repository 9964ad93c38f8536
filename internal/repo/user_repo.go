// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// GetOrCreateUser resolves the internal user for a platform identity,
// creating the row on first interaction and refreshing the display name when
// the platform reports a change.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, externalID, displayName string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).First(&u, "external_id = ?", externalID).Error
	if err == nil {
		if displayName != "" && u.DisplayName != displayName {
			if err := db.WithContext(ctx).
				Model(&u).
				Update("display_name", displayName).Error; err != nil {
				return nil, err
			}
			u.DisplayName = displayName
		}
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = domain.User{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by internal id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByExternalID fetches a user by platform identity, or ErrNotFound.
func GetUserByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "external_id = ?", externalID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
