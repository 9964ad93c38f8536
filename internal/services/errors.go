// Package services defines the business logic for accounts, friendships,
// carts, and orders. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAccountNotFound indicates that the requested gift account does not
	// exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrOrderNotFound indicates that the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrCartNotFound indicates that the requested cart does not exist.
	ErrCartNotFound = errors.New("cart not found")

	// ErrCartItemNotFound indicates that the requested cart line item does
	// not exist.
	ErrCartItemNotFound = errors.New("cart item not found")

	// ErrFriendshipNotFound indicates that the requested friendship does not
	// exist.
	ErrFriendshipNotFound = errors.New("friendship not found")

	// ErrRequestNotFound indicates that the requested friendship request does
	// not exist.
	ErrRequestNotFound = errors.New("friendship request not found")

	// ErrCartNotActive is returned when a mutation targets a cart that has
	// already moved past the active shopping phase.
	ErrCartNotActive = errors.New("cart is not active")

	// ErrEmptyCart is returned when checkout is attempted on a cart with no
	// items.
	ErrEmptyCart = errors.New("cart has no items")

	// ErrDuplicateItem is returned when the same catalog item is added to a
	// cart twice.
	ErrDuplicateItem = errors.New("item already in cart")

	// ErrUnknownItem is returned when a catalog item id does not resolve.
	ErrUnknownItem = errors.New("unknown catalog item")

	// ErrDuplicateRequest is returned when a friendship request is filed for
	// a pair that already has one pending.
	ErrDuplicateRequest = errors.New("friendship request already pending")

	// ErrAlreadyFriends is returned when a friendship request is filed for a
	// pair that is already linked.
	ErrAlreadyFriends = errors.New("friendship already exists")

	// ErrRequestDecided is returned when an admin decides a request that
	// another admin already decided.
	ErrRequestDecided = errors.New("friendship request already decided")

	// ErrAccountInUse blocks deleting an account that non-terminal orders
	// still reference.
	ErrAccountInUse = errors.New("account is referenced by open orders")

	// ErrNoProof is returned when approval is attempted on an order that has
	// no payment proof attached.
	ErrNoProof = errors.New("order has no payment proof")

	// ErrNoSelection is returned when finalization is attempted before a
	// delivery account has been chosen.
	ErrNoSelection = errors.New("no delivery account selected")

	// ErrNotEligible is returned when a delivery account is chosen that the
	// buyer cannot yet receive gifts on.
	ErrNotEligible = errors.New("user is not eligible to receive gifts on this account")
)

// StateConflictError reports an illegal order state transition. Current is
// the status found in storage at decision time; for lost optimistic races it
// is the status a concurrent writer got there first with.
type StateConflictError struct {
	OrderID   string
	Current   string
	Attempted string
}

// Error implements the error interface.
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("order %s is %s; cannot transition to %s", e.OrderID, e.Current, e.Attempted)
}

// InsufficientBalanceError reports a debit the account could not cover.
// Shortfall is how much RP the account is missing.
type InsufficientBalanceError struct {
	AccountID string
	Needed    int64
	Balance   int64
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %s has %d RP, needs %d (short %d)", e.AccountID, e.Balance, e.Needed, e.Shortfall())
}

// Shortfall returns how much RP is missing.
func (e *InsufficientBalanceError) Shortfall() int64 { return e.Needed - e.Balance }

// NotEligibleError reports a gifting-eligibility failure with enough detail
// for the caller to tell the user when to come back.
type NotEligibleError struct {
	Reason        string
	DaysRemaining int
	EligibleOn    time.Time
}

// Error implements the error interface.
func (e *NotEligibleError) Error() string {
	if e.DaysRemaining > 0 {
		return fmt.Sprintf("%s (eligible in %d day(s))", e.Reason, e.DaysRemaining)
	}
	return e.Reason
}

// Unwrap makes errors.Is(err, ErrNotEligible) match the detailed error.
func (e *NotEligibleError) Unwrap() error { return ErrNotEligible }

// CartLimitError reports every configured cart limit a checkout violates, so
// the user sees all problems at once instead of one per attempt.
type CartLimitError struct {
	Violations []string
}

// Error implements the error interface.
func (e *CartLimitError) Error() string {
	return "cart exceeds limits: " + strings.Join(e.Violations, "; ")
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
