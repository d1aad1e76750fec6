package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

type OrderLineRequest struct {
	ItemID   int64
	Quantity int
}

type CreateOrderRequest struct {
	BuyerID           int64
	ShippingAddressID int64
	Items             []OrderLineRequest
}

// Checkout converts the buyer's cart into an order: validates stock,
// decrements inventory, snapshots line prices, creates the order, and
// clears the cart. The whole pipeline runs in one serializable
// transaction; any failure leaves cart, stock, and orders untouched.
func Checkout(ctx context.Context, db *sql.DB, buyerID, shippingAddressID int64) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE buyer_id = $1`, buyerID).Scan(&cartID)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrEmptyCart
			}
			return fmt.Errorf("get cart: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT item_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
		if err != nil {
			return fmt.Errorf("load cart lines: %w", err)
		}

		var lines []OrderLineRequest
		for rows.Next() {
			var line OrderLineRequest
			if err := rows.Scan(&line.ItemID, &line.Quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan cart line: %w", err)
			}
			lines = append(lines, line)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(lines) == 0 {
			return database.ErrEmptyCart
		}

		orderID, err := createOrderTx(ctx, tx, buyerID, shippingAddressID, lines)
		if err != nil {
			return err
		}

		// the cart row itself survives, only its lines go
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart lines: %w", err)
		}

		order, err = fetchOrderTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	notifyOrderCreated(ctx, db, order)

	return order, nil
}

// CreateOrder is the direct path that bypasses the cart: it applies the
// same validate, decrement, snapshot, total algorithm to an explicit
// list of lines.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one line", database.ErrInvalidInput)
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		orderID, err := createOrderTx(ctx, tx, req.BuyerID, req.ShippingAddressID, req.Items)
		if err != nil {
			return err
		}

		order, err = fetchOrderTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	notifyOrderCreated(ctx, db, order)

	return order, nil
}

// createOrderTx is the shared pipeline. Each item row is locked before
// its stock is checked, so two checkouts racing on the same item
// serialize on the row lock; the guarded decrement is a second line of
// defense and the transaction guarantees all-or-nothing.
func createOrderTx(ctx context.Context, tx *sql.Tx, buyerID, shippingAddressID int64, lines []OrderLineRequest) (int64, error) {
	var addressOK bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`,
		shippingAddressID, buyerID).Scan(&addressOK)
	if err != nil {
		return 0, fmt.Errorf("check shipping address: %w", err)
	}
	if !addressOK {
		return 0, database.ErrAddressNotFound
	}

	// computed per line, indexed by position: the same item may appear
	// on more than one line and each keeps its own snapshot
	total := decimal.Zero
	linePrices := make([]decimal.Decimal, len(lines))
	lineNames := make([]string, len(lines))

	for i, line := range lines {
		if line.Quantity < 1 {
			return 0, database.ErrInvalidQuantity
		}

		var (
			name   string
			isFree bool
			price  decimal.Decimal
			stock  int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT name, is_free, price, stock
			 FROM items
			 WHERE id = $1
			 FOR UPDATE`,
			line.ItemID).Scan(&name, &isFree, &price, &stock)
		if err != nil {
			if err == sql.ErrNoRows {
				return 0, database.ErrItemNotFound
			}
			return 0, fmt.Errorf("lock item %d: %w", line.ItemID, err)
		}

		if stock < line.Quantity {
			return 0, &database.InsufficientStockError{
				ItemID:    line.ItemID,
				ItemName:  name,
				Requested: line.Quantity,
				Available: stock,
			}
		}

		linePrice := decimal.Zero
		if !isFree {
			linePrice = price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
		linePrices[i] = linePrice
		lineNames[i] = name
		total = total.Add(linePrice)
	}

	var orderID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (buyer_id, shipping_address_id, total_amount, status, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id`,
		buyerID, shippingAddressID, total, models.OrderStatusPending).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}

	for i, line := range lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, item_id, item_name, quantity, price)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.ItemID, lineNames[i], line.Quantity, linePrices[i])
		if err != nil {
			return 0, fmt.Errorf("create order item: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE items
			 SET stock = stock - $1, updated_at = NOW()
			 WHERE id = $2
			   AND stock >= $1`,
			line.Quantity, line.ItemID)
		if err != nil {
			return 0, fmt.Errorf("decrement stock: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			// reachable when the same item appears on several lines and
			// their combined demand exceeds stock
			var available int
			if err := tx.QueryRowContext(ctx,
				`SELECT stock FROM items WHERE id = $1`, line.ItemID).Scan(&available); err != nil {
				return 0, fmt.Errorf("recheck stock: %w", err)
			}
			return 0, &database.InsufficientStockError{
				ItemID:    line.ItemID,
				ItemName:  lineNames[i],
				Requested: line.Quantity,
				Available: available,
			}
		}
	}

	return orderID, nil
}

func fetchOrderTx(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Order, error) {
	order := &models.Order{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, buyer_id, shipping_address_id, total_amount, status, created_at
		 FROM orders WHERE id = $1`,
		orderID).Scan(
		&order.ID,
		&order.BuyerID,
		&order.ShippingAddressID,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch created order: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_id, item_id, item_name, quantity, price
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ItemID,
			&item.ItemName,
			&item.Quantity,
			&item.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := db.QueryRowContext(ctx,
		`SELECT id, buyer_id, shipping_address_id, total_amount, status, created_at
		 FROM orders
		 WHERE id = $1`,
		id).Scan(
		&order.ID,
		&order.BuyerID,
		&order.ShippingAddressID,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, item_id, item_name, quantity, price
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ItemID,
			&item.ItemName,
			&item.Quantity,
			&item.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, buyer_id, shipping_address_id, total_amount, status, created_at
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.BuyerID,
			&order.ShippingAddressID,
			&order.TotalAmount,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrdersForSeller returns orders containing at least one of the
// seller's items.
func ListOrdersForSeller(ctx context.Context, db *sql.DB, sellerID int64) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT o.id, o.buyer_id, o.shipping_address_id, o.total_amount, o.status, o.created_at
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 JOIN items i ON i.id = oi.item_id
		 WHERE i.seller_id = $1
		 ORDER BY o.created_at DESC, o.id DESC`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.BuyerID,
			&order.ShippingAddressID,
			&order.TotalAmount,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

var validOrderStatus = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
	models.OrderStatusPaid:       true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

// UpdateOrderStatus moves an order to a new status and notifies the
// buyer about the old-to-new transition. The before/after pair is read
// inside the transaction, not diffed from mutable state.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, orderID int64, newStatus string) (*models.Order, error) {
	if !validOrderStatus[newStatus] {
		return nil, fmt.Errorf("%w: unknown order status %q", database.ErrInvalidInput, newStatus)
	}

	var (
		order     *models.Order
		oldStatus string
	)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&oldStatus)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1 WHERE id = $2`, newStatus, orderID); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		order, err = fetchOrderTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != newStatus {
		notifyStatusChange(ctx, db, order, oldStatus, newStatus)
	}

	return order, nil
}
