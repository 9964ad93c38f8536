// Package domain defines the persistence models for users, gift accounts,
// friendships, carts, and orders. These types are mapped with GORM and form
// the core data layer of the gift-shop application.
package domain

import (
	"time"
)

// Order statuses. An order walks this sequence strictly forward; REJECTED is
// terminal and reachable from PENDING_MANUAL_APPROVAL only.
const (
	OrderStatusPendingCheckout   = "PENDING_CHECKOUT"
	OrderStatusPendingProof      = "PENDING_PAYMENT_PROOF"
	OrderStatusPendingApproval   = "PENDING_MANUAL_APPROVAL"
	OrderStatusAwaitingSelection = "AWAITING_ACCOUNT_SELECTION"
	OrderStatusCompleted         = "COMPLETED"
	OrderStatusRejected          = "REJECTED"
)

// ValidOrderTransitions enumerates every legal status edge. Handlers never
// consult this map directly; OrderService checks it before any mutation.
var ValidOrderTransitions = map[string][]string{
	OrderStatusPendingCheckout:   {OrderStatusPendingProof},
	OrderStatusPendingProof:      {OrderStatusPendingApproval},
	OrderStatusPendingApproval:   {OrderStatusAwaitingSelection, OrderStatusRejected},
	OrderStatusAwaitingSelection: {OrderStatusCompleted},
}

// CanTransition reports whether an order may move from current to target.
func CanTransition(current, target string) bool {
	for _, s := range ValidOrderTransitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus reports whether status admits no further transitions.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusRejected
}

// Cart statuses.
const (
	CartStatusActive         = "active"
	CartStatusPendingPayment = "pending_payment"
	CartStatusClosed         = "closed"
)

// Friendship request statuses.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// User correlates a chat-platform identity to internal records. Users are
// created on first interaction and never hard-deleted in normal flow.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ExternalID: the platform snowflake/identifier; unique.
//   - DisplayName: refreshed whenever the platform reports a change.
type User struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ExternalID  string    `json:"external_id"  gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Account is a shared in-game delivery account: a pool of RP balance and
// friend slots. Balance and friend count are mutated only through the guarded
// ledger updates in the repo layer, which keep balance >= 0 and
// friend_count <= max_friends after every successful mutation.
type Account struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null"`
	Balance     int64     `json:"balance"      gorm:"not null;default:0"`
	FriendCount int       `json:"friend_count" gorm:"not null;default:0"`
	MaxFriends  int       `json:"max_friends"  gorm:"not null;default:250"`
	Region      string    `json:"region"       gorm:"type:varchar(16);index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// Friendship is the one-time-approved link letting a user receive gifts on a
// specific account. It is the single source of truth for gifting eligibility:
// the cooldown clock starts at CreatedAt. NotifiedAt records the one-time
// "you are now eligible" notification and is cleared only by an explicit
// administrative reset.
type Friendship struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string     `json:"user_id"     gorm:"type:char(36);not null;uniqueIndex:ux_friendship_user_account,priority:1"`
	AccountID  string     `json:"account_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_friendship_user_account,priority:2"`
	Nickname   string     `json:"nickname"    gorm:"type:varchar(64);not null"`
	Tag        string     `json:"tag"         gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	// Parent rows. Friendships are cascade-deleted with their user/account.
	User    User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Account Account `json:"-" gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// FriendshipRequest is a proposed friendship awaiting an admin decision.
// At most one pending request per (user, account) pair exists at a time;
// that is checked at service level, not DB-enforced.
type FriendshipRequest struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:char(36);not null;index"`
	AccountID string     `json:"account_id" gorm:"type:char(36);not null;index"`
	Nickname  string     `json:"nickname"   gorm:"type:varchar(64);not null"`
	Tag       string     `json:"tag"        gorm:"type:varchar(16);not null"`
	Status    string     `json:"status"     gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected')"`
	AdminID   *string    `json:"admin_id,omitempty"   gorm:"type:varchar(64)"`
	AdminNote string     `json:"admin_note,omitempty" gorm:"type:varchar(512)"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName returns the database table name for FriendshipRequest.
func (FriendshipRequest) TableName() string { return "friendship_requests" }

// Cart is a user's in-progress selection of catalog items, bound to the
// channel the shopping session runs in and to a region filter. TotalRP and
// TotalCents are denormalized and recomputed from the item rows after every
// mutation; they are never incrementally trusted.
type Cart struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	ChannelID  string    `json:"channel_id" gorm:"type:varchar(64);not null"`
	Region     string    `json:"region"     gorm:"type:varchar(16)"`
	Status     string    `json:"status"     gorm:"type:varchar(20);not null;default:'active';check:status IN ('active','pending_payment','closed')"`
	TotalRP    int64     `json:"total_rp"    gorm:"not null;default:0"`
	TotalCents int64     `json:"total_cents" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Cart.
func (Cart) TableName() string { return "carts" }

// CartItem is one catalog item inside a cart, priced at add time.
// CatalogItemID keeps the link to the source catalog entry and backs the
// duplicate-add guard: the same catalog item may appear at most once per cart.
type CartItem struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	CartID        string    `json:"cart_id"         gorm:"type:char(36);not null;uniqueIndex:ux_cart_item_catalog,priority:1"`
	CatalogItemID int64     `json:"catalog_item_id" gorm:"not null;uniqueIndex:ux_cart_item_catalog,priority:2"`
	Name          string    `json:"name"            gorm:"type:varchar(255);not null"`
	PriceRP       int64     `json:"price_rp"        gorm:"not null"`
	Category      string    `json:"category"        gorm:"type:varchar(64)"`
	CreatedAt     time.Time `json:"created_at"`

	// Cart is the owning session. Items are cascade-deleted with their cart.
	Cart Cart `json:"-" gorm:"foreignKey:CartID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CartItem.
func (CartItem) TableName() string { return "cart_items" }

// OrderItem is one frozen line of an order snapshot. Snapshots are taken at
// checkout so later catalog or price edits cannot retroactively alter a
// placed order.
type OrderItem struct {
	CatalogItemID int64  `json:"catalog_item_id"`
	Name          string `json:"name"`
	PriceRP       int64  `json:"price_rp"`
	Category      string `json:"category,omitempty"`
}

// Order is the durable transaction record tracked through the approval and
// fulfillment state machine. It outlives its cart; rows are never deleted in
// normal operation, only by administrative cleanup of stale non-terminal
// orders.
//
// SelectedAccountID is the delivery account chosen by the user or admin
// (nullable until chosen). DebitedAccountID is set only when a completion
// actually debited RP; force completions leave it nil.
type Order struct {
	ID                string      `json:"id"               gorm:"type:char(36);primaryKey"`
	UserExternalID    string      `json:"user_external_id" gorm:"type:varchar(64);not null;index"`
	CartID            string      `json:"cart_id"          gorm:"type:char(36);not null"`
	Items             []OrderItem `json:"items"            gorm:"serializer:json;type:text"`
	TotalRP           int64       `json:"total_rp"         gorm:"not null"`
	TotalCents        int64       `json:"total_cents"      gorm:"not null"`
	Status            string      `json:"status"           gorm:"type:varchar(32);not null;index"`
	ProofRef          *string     `json:"proof_ref,omitempty" gorm:"type:varchar(512)"`
	ChannelID         string      `json:"channel_id"       gorm:"type:varchar(64);not null"`
	SelectedAccountID *string     `json:"selected_account_id,omitempty" gorm:"type:char(36)"`
	ProcessingAdminID *string     `json:"processing_admin_id,omitempty" gorm:"type:varchar(64)"`
	DebitedAccountID  *string     `json:"debited_account_id,omitempty"  gorm:"type:char(36)"`
	AdminNote         *string     `json:"admin_note,omitempty" gorm:"type:varchar(512)"`
	Region            string      `json:"region"           gorm:"type:varchar(16);index"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "order_logs" }
