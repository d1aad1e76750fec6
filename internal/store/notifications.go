package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

func CreateNotification(ctx context.Context, db *sql.DB, userID int64, title, message string) (*models.Notification, error) {
	n := &models.Notification{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, title, message, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, user_id, title, message, is_read, created_at`,
		userID, title, message).Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return n, nil
}

// notify is the fire-and-forget path used after commits: a failed
// insert is logged, never propagated, so it cannot roll back the
// order or payment that triggered it.
func notify(ctx context.Context, db *sql.DB, userID int64, title, message string) {
	if _, err := CreateNotification(ctx, db, userID, title, message); err != nil {
		log.Printf("notify user %d (%s): %v", userID, title, err)
	}
}

func notifyOrderCreated(ctx context.Context, db *sql.DB, order *models.Order) {
	notify(ctx, db, order.BuyerID, "Order Created",
		fmt.Sprintf("Your order #%d has been created and is now pending.", order.ID))
}

func notifyStatusChange(ctx context.Context, db *sql.DB, order *models.Order, oldStatus, newStatus string) {
	notify(ctx, db, order.BuyerID, "Order Status Update",
		fmt.Sprintf("Your order #%d status changed from %s to %s.", order.ID, oldStatus, newStatus))
}

func ListNotifications(ctx context.Context, db *sql.DB, userID int64) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, title, message, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead flips is_read for one of the owner's
// notifications. Another user's notification reads as not found.
func MarkNotificationRead(ctx context.Context, db *sql.DB, userID, notificationID int64) (*models.Notification, error) {
	n := &models.Notification{}

	err := db.QueryRowContext(ctx,
		`UPDATE notifications
		 SET is_read = TRUE
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, message, is_read, created_at`,
		notificationID, userID).Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	return n, nil
}
