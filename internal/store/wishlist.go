package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

// AddToWishlist adds an item to the user's wishlist. Re-adding an
// already-wishlisted item reports created=false instead of duplicating
// the row; the unique constraint makes this race-safe.
func AddToWishlist(ctx context.Context, db *sql.DB, userID, itemID int64) (*models.WishlistEntry, bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return nil, false, database.ErrItemNotFound
	}

	entry := &models.WishlistEntry{}
	err := db.QueryRowContext(ctx,
		`INSERT INTO wishlist (user_id, item_id, added_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, user_id, item_id, added_at`,
		userID, itemID).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.ItemID,
		&entry.AddedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			existing := &models.WishlistEntry{}
			err := db.QueryRowContext(ctx,
				`SELECT id, user_id, item_id, added_at FROM wishlist WHERE user_id = $1 AND item_id = $2`,
				userID, itemID).Scan(
				&existing.ID,
				&existing.UserID,
				&existing.ItemID,
				&existing.AddedAt,
			)
			if err != nil {
				return nil, false, fmt.Errorf("get wishlist entry: %w", err)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("add to wishlist: %w", err)
	}

	return entry, true, nil
}

// RemoveFromWishlist is idempotent: removing an absent entry is a no-op.
func RemoveFromWishlist(ctx context.Context, db *sql.DB, userID, itemID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM wishlist WHERE user_id = $1 AND item_id = $2`,
		userID, itemID)
	if err != nil {
		return fmt.Errorf("remove from wishlist: %w", err)
	}
	return nil
}

func ListWishlist(ctx context.Context, db *sql.DB, userID int64) ([]models.WishlistEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, item_id, added_at
		 FROM wishlist
		 WHERE user_id = $1
		 ORDER BY added_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WishlistEntry
	for rows.Next() {
		var entry models.WishlistEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ItemID, &entry.AddedAt); err != nil {
			return nil, fmt.Errorf("scan wishlist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}
