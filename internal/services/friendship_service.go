// Package services – FriendshipService
//
// This file implements the FriendshipService, which governs the anti-fraud
// gifting gate: users request a friendship with a gift account, an admin
// approves or rejects it, and after a configured minimum friendship age the
// user becomes eligible to receive gifts on that account. The eligibility
// check is pure arithmetic over the friendship's CreatedAt; the one-time
// "you are now eligible" notification is owned by the background sweeper.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

// GiftCheck is the result of an eligibility probe for one (user, account)
// pair. When Allowed is false, Reason explains why and, for age failures,
// DaysRemaining/EligibleOn tell the user when to come back.
type GiftCheck struct {
	Allowed       bool       `json:"allowed"`
	Reason        string     `json:"reason,omitempty"`
	DaysRemaining int        `json:"days_remaining,omitempty"`
	EligibleOn    *time.Time `json:"eligible_on,omitempty"`
}

// FriendshipService implements the friendship lifecycle and the gifting
// eligibility gate.
type FriendshipService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Notifier delivers decision notices to users. May be nil in tests.
	Notifier notify.Notifier
	// MinFriendAge is how long a friendship must exist before gifts are
	// allowed on it.
	MinFriendAge time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewFriendshipService constructs a FriendshipService with the given minimum
// friendship age.
func NewFriendshipService(db *gorm.DB, n notify.Notifier, minAge time.Duration) *FriendshipService {
	return &FriendshipService{
		DB:           db,
		Notifier:     n,
		MinFriendAge: minAge,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Request files a pending friendship request for (userExternalID, accountID).
// At most one pending request per pair may exist, and pairs that are already
// linked are rejected.
func (s *FriendshipService) Request(ctx context.Context, userExternalID, displayName, accountID, nickname, tag string) (*domain.FriendshipRequest, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, errors.New("nickname is required")
	}

	u, err := repo.GetOrCreateUser(ctx, s.DB, userExternalID, displayName)
	if err != nil {
		return nil, err
	}
	if _, err := repo.GetAccount(ctx, s.DB, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if _, err := repo.GetFriendshipByPair(ctx, s.DB, u.ID, accountID); err == nil {
		return nil, ErrAlreadyFriends
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if _, err := repo.GetPendingRequestByPair(ctx, s.DB, u.ID, accountID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	return repo.CreateFriendshipRequest(ctx, s.DB, u.ID, accountID, nickname, strings.TrimSpace(tag))
}

// PendingRequests lists all undecided requests, oldest first.
func (s *FriendshipService) PendingRequests(ctx context.Context) ([]domain.FriendshipRequest, error) {
	return repo.ListPendingRequests(ctx, s.DB)
}

// Approve records an admin approval: the request is decided, the friendship
// row is created, and a friend slot is consumed, all in one transaction. The
// pending guard makes a second concurrent decision fail with
// ErrRequestDecided.
func (s *FriendshipService) Approve(ctx context.Context, requestID, adminID, note string) (*domain.Friendship, error) {
	var created *domain.Friendship
	var userID string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.GetFriendshipRequest(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		userID = r.UserID

		ok, err := repo.DecideFriendshipRequest(ctx, tx, requestID, domain.RequestStatusApproved, adminID, note, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestDecided
		}

		if err := repo.IncrementFriendCount(ctx, tx, r.AccountID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		created, err = repo.CreateFriendship(ctx, tx, r.UserID, r.AccountID, r.Nickname, r.Tag)
		if err != nil {
			if isDuplicate(err) {
				return ErrAlreadyFriends
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyUser(ctx, userID, fmt.Sprintf(
		"Your friend request was approved. You can receive gifts after %d day(s).",
		int(s.MinFriendAge/(24*time.Hour))))
	return created, nil
}

// Reject records an admin rejection of a pending request.
func (s *FriendshipService) Reject(ctx context.Context, requestID, adminID, note string) error {
	r, err := repo.GetFriendshipRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}

	ok, err := repo.DecideFriendshipRequest(ctx, s.DB, requestID, domain.RequestStatusRejected, adminID, note, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestDecided
	}

	s.notifyUser(ctx, r.UserID, "Your friend request was rejected. "+note)
	return nil
}

// ListFriends returns all of a user's friendships.
func (s *FriendshipService) ListFriends(ctx context.Context, userExternalID string) ([]domain.Friendship, error) {
	u, err := repo.GetUserByExternalID(ctx, s.DB, userExternalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []domain.Friendship{}, nil
		}
		return nil, err
	}
	return repo.ListFriendshipsByUser(ctx, s.DB, u.ID)
}

// Remove deletes a friendship and releases the account's friend slot.
func (s *FriendshipService) Remove(ctx context.Context, friendshipID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := repo.GetFriendship(ctx, tx, friendshipID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrFriendshipNotFound
			}
			return err
		}
		if err := repo.DeleteFriendship(ctx, tx, friendshipID); err != nil {
			return err
		}
		return repo.DecrementFriendCount(ctx, tx, f.AccountID)
	})
}

// CanGift reports whether userID may receive gifts on accountID. Eligibility
// requires an existing friendship whose age is at least MinFriendAge;
// elapsed == MinFriendAge exactly is eligible.
func (s *FriendshipService) CanGift(ctx context.Context, userID, accountID string) (GiftCheck, error) {
	f, err := repo.GetFriendshipByPair(ctx, s.DB, userID, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return GiftCheck{Reason: "no friendship with this account"}, nil
		}
		return GiftCheck{}, err
	}

	now := s.now()
	eligibleOn := f.CreatedAt.Add(s.MinFriendAge)
	if now.Before(eligibleOn) {
		remaining := eligibleOn.Sub(now)
		days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
		return GiftCheck{
			Reason:        "friendship too recent",
			DaysRemaining: days,
			EligibleOn:    &eligibleOn,
		}, nil
	}
	return GiftCheck{Allowed: true}, nil
}

// CanGiftExternal is CanGift keyed by the platform identity.
func (s *FriendshipService) CanGiftExternal(ctx context.Context, userExternalID, accountID string) (GiftCheck, error) {
	u, err := repo.GetUserByExternalID(ctx, s.DB, userExternalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return GiftCheck{Reason: "unknown user"}, nil
		}
		return GiftCheck{}, err
	}
	return s.CanGift(ctx, u.ID, accountID)
}

// ForceRecheck clears a friendship's notification stamp and re-evaluates it
// immediately: if the friendship is already old enough, the eligibility
// notice is re-sent and the stamp re-set. Administrative use only.
func (s *FriendshipService) ForceRecheck(ctx context.Context, friendshipID string) (GiftCheck, error) {
	f, err := repo.GetFriendship(ctx, s.DB, friendshipID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return GiftCheck{}, ErrFriendshipNotFound
		}
		return GiftCheck{}, err
	}
	if err := repo.ResetNotified(ctx, s.DB, friendshipID); err != nil {
		return GiftCheck{}, err
	}

	check, err := s.CanGift(ctx, f.UserID, f.AccountID)
	if err != nil {
		return GiftCheck{}, err
	}
	if !check.Allowed {
		return check, nil
	}

	if _, err := repo.ClaimNotified(ctx, s.DB, friendshipID, s.now()); err != nil {
		return check, err
	}
	s.notifyUser(ctx, f.UserID, "Your friendship is old enough now: you can receive gifts on this account.")
	return check, nil
}

// ResetNotified clears a friendship's one-time eligibility notification so
// the sweeper will deliver it again. Administrative use only.
func (s *FriendshipService) ResetNotified(ctx context.Context, friendshipID string) error {
	if err := repo.ResetNotified(ctx, s.DB, friendshipID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFriendshipNotFound
		}
		return err
	}
	return nil
}

// notifyUser is a best-effort decision notice; delivery failure never fails
// the decision itself.
func (s *FriendshipService) notifyUser(ctx context.Context, userID, message string) {
	if s.Notifier == nil {
		return
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return
	}
	_ = s.Notifier.NotifyUser(ctx, u.ExternalID, message)
}
