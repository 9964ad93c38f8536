// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Friendship and
// FriendshipRequest rows.
//
// The notification stamp uses a conditional UPDATE ... WHERE notified_at IS
// NULL so that concurrent sweeps cannot double-claim a row: exactly one
// caller observes RowsAffected == 1.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// CreateFriendship inserts an approved user↔account link. The unique
// (user_id, account_id) index rejects a second link for the same pair.
func CreateFriendship(ctx context.Context, db *gorm.DB, userID, accountID, nickname, tag string) (*domain.Friendship, error) {
	f := &domain.Friendship{
		ID:        uuid.NewString(),
		UserID:    userID,
		AccountID: accountID,
		Nickname:  nickname,
		Tag:       tag,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// GetFriendship fetches one friendship by id, or ErrNotFound.
func GetFriendship(ctx context.Context, db *gorm.DB, id string) (*domain.Friendship, error) {
	var f domain.Friendship
	if err := db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFriendshipByPair fetches the link for (userID, accountID), or ErrNotFound.
func GetFriendshipByPair(ctx context.Context, db *gorm.DB, userID, accountID string) (*domain.Friendship, error) {
	var f domain.Friendship
	err := db.WithContext(ctx).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFriendshipsByUser returns all of a user's friendships, oldest first.
func ListFriendshipsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Friendship, error) {
	var out []domain.Friendship
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// DeleteFriendship removes one friendship row. The caller releases the
// account's friend slot afterwards.
func DeleteFriendship(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Friendship{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEligibleUnnotified returns up to limit friendships created at or before
// cutoff that have not yet received their one-time eligibility notification,
// oldest first.
func ListEligibleUnnotified(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Friendship, error) {
	var out []domain.Friendship
	err := db.WithContext(ctx).
		Where("created_at <= ? AND notified_at IS NULL", cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimNotified stamps the notification timestamp if and only if it is still
// unset. It reports whether this caller won the claim.
func ClaimNotified(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("id = ? AND notified_at IS NULL", id).
		Update("notified_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetNotified clears the notification stamp (administrative reset only).
func ResetNotified(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("id = ?", id).
		Update("notified_at", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

//
// Friendship requests (pending approval log)
//

// CreateFriendshipRequest files a pending request for (userID, accountID).
// The one-pending-per-pair rule is checked by the service, not enforced here.
func CreateFriendshipRequest(ctx context.Context, db *gorm.DB, userID, accountID, nickname, tag string) (*domain.FriendshipRequest, error) {
	r := &domain.FriendshipRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		AccountID: accountID,
		Nickname:  nickname,
		Tag:       tag,
		Status:    domain.RequestStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetFriendshipRequest fetches one request by id, or ErrNotFound.
func GetFriendshipRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendshipRequest, error) {
	var r domain.FriendshipRequest
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetPendingRequestByPair returns the pending request for (userID, accountID)
// if one exists, or ErrNotFound.
func GetPendingRequestByPair(ctx context.Context, db *gorm.DB, userID, accountID string) (*domain.FriendshipRequest, error) {
	var r domain.FriendshipRequest
	err := db.WithContext(ctx).
		Where("user_id = ? AND account_id = ? AND status = ?", userID, accountID, domain.RequestStatusPending).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingRequests returns all pending requests, oldest first.
func ListPendingRequests(ctx context.Context, db *gorm.DB) ([]domain.FriendshipRequest, error) {
	var out []domain.FriendshipRequest
	err := db.WithContext(ctx).
		Where("status = ?", domain.RequestStatusPending).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// DecideFriendshipRequest records the admin decision, succeeding only while
// the request is still pending so two admins cannot both decide it.
func DecideFriendshipRequest(ctx context.Context, db *gorm.DB, id, status, adminID, note string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.FriendshipRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestStatusPending).
		Updates(map[string]any{
			"status":     status,
			"admin_id":   adminID,
			"admin_note": note,
			"decided_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
