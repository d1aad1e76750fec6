package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-marketplace/internal/models"
)

type CategoryCount struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

type MarketplaceSummary struct {
	TopCategories []CategoryCount `json:"top_categories"`
	LatestItems   []models.Item   `json:"latest_items"`
}

func GetMarketplaceSummary(ctx context.Context, db *sql.DB) (*MarketplaceSummary, error) {
	summary := &MarketplaceSummary{}

	rows, err := db.QueryContext(ctx,
		`SELECT c.name, COUNT(i.id) AS total
		 FROM categories c
		 LEFT JOIN items i ON i.category_id = c.id
		 GROUP BY c.name
		 ORDER BY total DESC, c.name
		 LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("top categories: %w", err)
	}
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Name, &cc.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		summary.TopCategories = append(summary.TopCategories, cc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	itemRows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status = $1 ORDER BY created_at DESC LIMIT 10`,
		models.ItemStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("latest items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		summary.LatestItems = append(summary.LatestItems, *item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summary, nil
}

type AdminTotals struct {
	TotalUsers   int64 `json:"total_users"`
	TotalItems   int64 `json:"total_items"`
	TotalOrders  int64 `json:"total_orders"`
	TotalReviews int64 `json:"total_reviews"`
}

func GetAdminTotals(ctx context.Context, db *sql.DB) (*AdminTotals, error) {
	totals := &AdminTotals{}

	err := db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users),
		        (SELECT COUNT(*) FROM items),
		        (SELECT COUNT(*) FROM orders),
		        (SELECT COUNT(*) FROM item_reviews)`).Scan(
		&totals.TotalUsers,
		&totals.TotalItems,
		&totals.TotalOrders,
		&totals.TotalReviews,
	)
	if err != nil {
		return nil, fmt.Errorf("admin totals: %w", err)
	}

	return totals, nil
}

type SellerStats struct {
	ItemsCount    int64           `json:"items_count"`
	CategoryStats []CategoryCount `json:"category_stats"`
	AverageRating float64         `json:"average_rating"`
}

func GetSellerStats(ctx context.Context, db *sql.DB, sellerID int64) (*SellerStats, error) {
	stats := &SellerStats{}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE seller_id = $1`, sellerID).Scan(&stats.ItemsCount)
	if err != nil {
		return nil, fmt.Errorf("count seller items: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT COALESCE(c.name, ''), COUNT(i.id)
		 FROM items i
		 LEFT JOIN categories c ON c.id = i.category_id
		 WHERE i.seller_id = $1
		 GROUP BY c.name
		 ORDER BY COUNT(i.id) DESC`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("seller category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Name, &cc.Total); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		stats.CategoryStats = append(stats.CategoryStats, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(ROUND(AVG(r.rating)::numeric, 2), 0)
		 FROM item_reviews r
		 JOIN items i ON i.id = r.item_id
		 WHERE i.seller_id = $1`,
		sellerID).Scan(&stats.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("seller average rating: %w", err)
	}

	return stats, nil
}

type BuyerStats struct {
	TotalReviews  int64   `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
}

func GetBuyerStats(ctx context.Context, db *sql.DB, buyerID int64) (*BuyerStats, error) {
	stats := &BuyerStats{}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(ROUND(AVG(rating)::numeric, 2), 0)
		 FROM item_reviews
		 WHERE reviewer_id = $1`,
		buyerID).Scan(&stats.TotalReviews, &stats.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("buyer stats: %w", err)
	}

	return stats, nil
}
