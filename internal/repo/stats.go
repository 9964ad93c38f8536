// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate/statistics queries backing
// the admin dashboard endpoints. Each function is context-aware and safe to
// call from services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/domain"
)

// OrderStatusStat is one row of the per-status order aggregate.
type OrderStatusStat struct {
	Status     string `json:"status"`
	Count      int64  `json:"count"`
	TotalRP    int64  `json:"total_rp"`
	TotalCents int64  `json:"total_cents"`
}

// OrderRegionStat is one row of the per-region completed-order aggregate.
type OrderRegionStat struct {
	Region     string `json:"region"`
	Count      int64  `json:"count"`
	TotalRP    int64  `json:"total_rp"`
	TotalCents int64  `json:"total_cents"`
}

// OrderStats returns order counts and RP/monetary sums grouped by status.
func OrderStats(ctx context.Context, db *gorm.DB) ([]OrderStatusStat, error) {
	var out []OrderStatusStat
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_rp), 0) AS total_rp, COALESCE(SUM(total_cents), 0) AS total_cents").
		Group("status").
		Order("status").
		Scan(&out).Error
	return out, err
}

// CompletedOrderStatsByRegion returns completed-order volume per region.
func CompletedOrderStatsByRegion(ctx context.Context, db *gorm.DB) ([]OrderRegionStat, error) {
	var out []OrderRegionStat
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Select("region, COUNT(*) AS count, COALESCE(SUM(total_rp), 0) AS total_rp, COALESCE(SUM(total_cents), 0) AS total_cents").
		Where("status = ?", domain.OrderStatusCompleted).
		Group("region").
		Order("region").
		Scan(&out).Error
	return out, err
}

// AccountStats is the fleet-wide account aggregate.
type AccountStats struct {
	Accounts     int64   `json:"accounts"`
	TotalBalance int64   `json:"total_balance"`
	AvgBalance   float64 `json:"avg_balance"`
	FriendsUsed  int64   `json:"friends_used"`
	FriendsCap   int64   `json:"friends_cap"`
}

// AccountsStats returns balance and friend-slot utilization across the fleet.
func AccountsStats(ctx context.Context, db *gorm.DB) (AccountStats, error) {
	var s AccountStats
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Select("COUNT(*) AS accounts, COALESCE(SUM(balance), 0) AS total_balance, COALESCE(AVG(balance), 0) AS avg_balance, COALESCE(SUM(friend_count), 0) AS friends_used, COALESCE(SUM(max_friends), 0) AS friends_cap").
		Scan(&s).Error
	return s, err
}
