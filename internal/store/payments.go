package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	OrderID  int64
	UserID   int64
	Amount   decimal.Decimal
	Provider string
	Status   string
}

func generatePaymentReference() string {
	return "REF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var validPaymentStatus = map[string]bool{
	models.PaymentStatusPending: true,
	models.PaymentStatusSuccess: true,
	models.PaymentStatusFailed:  true,
}

// CreatePayment records a payment for an order. An order takes exactly
// one payment; a second attempt fails with ErrPaymentExists. A
// successful payment flips the order to PAID in the same transaction,
// then fans out notifications to the buyer and each distinct seller.
// Notification failures are logged and suppressed.
func CreatePayment(ctx context.Context, db *sql.DB, req CreatePaymentRequest) (*models.Payment, error) {
	status := req.Status
	if status == "" {
		status = models.PaymentStatusSuccess
	}
	if !validPaymentStatus[status] {
		return nil, fmt.Errorf("%w: unknown payment status %q", database.ErrInvalidInput, status)
	}
	if req.Provider == "" {
		return nil, fmt.Errorf("%w: payment provider is required", database.ErrInvalidInput)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", database.ErrInvalidInput)
	}

	payment := &models.Payment{}
	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		order = &models.Order{}
		err := tx.QueryRowContext(ctx,
			`SELECT id, buyer_id, shipping_address_id, total_amount, status, created_at
			 FROM orders WHERE id = $1 FOR UPDATE`,
			req.OrderID).Scan(
			&order.ID,
			&order.BuyerID,
			&order.ShippingAddressID,
			&order.TotalAmount,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO payments (order_id, user_id, amount, provider, status, reference, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING id, order_id, user_id, amount, provider, status, reference, created_at`,
			req.OrderID, req.UserID, req.Amount, req.Provider, status, generatePaymentReference()).Scan(
			&payment.ID,
			&payment.OrderID,
			&payment.UserID,
			&payment.Amount,
			&payment.Provider,
			&payment.Status,
			&payment.Reference,
			&payment.CreatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return database.ErrPaymentExists
			}
			return fmt.Errorf("create payment: %w", err)
		}

		if status == models.PaymentStatusSuccess {
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET status = $1 WHERE id = $2`,
				models.OrderStatusPaid, req.OrderID); err != nil {
				return fmt.Errorf("mark order paid: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == models.PaymentStatusSuccess {
		notifyPaymentSuccess(ctx, db, order)
	}

	return payment, nil
}

// notifyPaymentSuccess tells the buyer the payment went through and
// each distinct seller that their items were ordered.
func notifyPaymentSuccess(ctx context.Context, db *sql.DB, order *models.Order) {
	notify(ctx, db, order.BuyerID, "Payment Successful",
		fmt.Sprintf("Your payment for order #%d was successful.", order.ID))

	var buyerName string
	if err := db.QueryRowContext(ctx,
		`SELECT full_name FROM users WHERE id = $1`, order.BuyerID).Scan(&buyerName); err != nil {
		log.Printf("lookup buyer %d for seller notifications: %v", order.BuyerID, err)
		buyerName = "A buyer"
	}

	rows, err := db.QueryContext(ctx,
		`SELECT i.seller_id, oi.item_name, oi.quantity
		 FROM order_items oi
		 JOIN items i ON i.id = oi.item_id
		 WHERE oi.order_id = $1
		 ORDER BY i.seller_id, oi.id`,
		order.ID)
	if err != nil {
		log.Printf("load order lines for seller notifications: %v", err)
		return
	}
	defer rows.Close()

	sellerLines := make(map[int64][]string)
	var sellerOrder []int64
	for rows.Next() {
		var (
			sellerID int64
			itemName string
			quantity int
		)
		if err := rows.Scan(&sellerID, &itemName, &quantity); err != nil {
			log.Printf("scan order line for seller notifications: %v", err)
			return
		}
		if _, seen := sellerLines[sellerID]; !seen {
			sellerOrder = append(sellerOrder, sellerID)
		}
		sellerLines[sellerID] = append(sellerLines[sellerID],
			fmt.Sprintf("%s (qty %d)", itemName, quantity))
	}
	if err := rows.Err(); err != nil {
		log.Printf("rows error for seller notifications: %v", err)
		return
	}

	for _, sellerID := range sellerOrder {
		notify(ctx, db, sellerID, "New Order",
			fmt.Sprintf("%s ordered %s.", buyerName, strings.Join(sellerLines[sellerID], ", ")))
	}
}

func GetPayment(ctx context.Context, db *sql.DB, id int64) (*models.Payment, error) {
	payment := &models.Payment{}

	err := db.QueryRowContext(ctx,
		`SELECT id, order_id, user_id, amount, provider, status, reference, created_at
		 FROM payments
		 WHERE id = $1`,
		id).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.UserID,
		&payment.Amount,
		&payment.Provider,
		&payment.Status,
		&payment.Reference,
		&payment.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return payment, nil
}

func ListPayments(ctx context.Context, db *sql.DB, userID int64) ([]models.Payment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, user_id, amount, provider, status, reference, created_at
		 FROM payments
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Provider, &p.Status, &p.Reference, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}
