package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

// CreateReview stores a buyer's review. Sellers cannot review their own
// items.
func CreateReview(ctx context.Context, db *sql.DB, reviewerID, itemID int64, rating int, comment string) (*models.ItemReview, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", database.ErrInvalidInput)
	}

	var sellerID int64
	err := db.QueryRowContext(ctx,
		`SELECT seller_id FROM items WHERE id = $1`, itemID).Scan(&sellerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item seller: %w", err)
	}
	if sellerID == reviewerID {
		return nil, database.ErrOwnItem
	}

	review := &models.ItemReview{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO item_reviews (item_id, reviewer_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, item_id, reviewer_id, rating, comment, created_at`,
		itemID, reviewerID, rating, comment).Scan(
		&review.ID,
		&review.ItemID,
		&review.ReviewerID,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func ListReviewsForItem(ctx context.Context, db *sql.DB, itemID int64) ([]models.ItemReview, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_id, reviewer_id, rating, comment, created_at
		 FROM item_reviews
		 WHERE item_id = $1
		 ORDER BY created_at DESC, id DESC`,
		itemID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.ItemReview
	for rows.Next() {
		var r models.ItemReview
		if err := rows.Scan(&r.ID, &r.ItemID, &r.ReviewerID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reviews, nil
}

type ItemStats struct {
	Item          string  `json:"item"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

func GetItemStats(ctx context.Context, db *sql.DB, itemID int64) (*ItemStats, error) {
	stats := &ItemStats{}

	err := db.QueryRowContext(ctx,
		`SELECT i.name,
		        COALESCE(ROUND(AVG(r.rating)::numeric, 2), 0),
		        COUNT(r.id)
		 FROM items i
		 LEFT JOIN item_reviews r ON r.item_id = i.id
		 WHERE i.id = $1
		 GROUP BY i.name`,
		itemID).Scan(&stats.Item, &stats.AverageRating, &stats.TotalReviews)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item stats: %w", err)
	}

	return stats, nil
}
