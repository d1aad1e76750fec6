package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// GetOrCreateCart returns the buyer's cart, creating it on first use.
// carts.buyer_id is unique so concurrent first adds converge on one row.
func GetOrCreateCart(ctx context.Context, db *sql.DB, buyerID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO carts (buyer_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (buyer_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id, buyer_id, created_at, updated_at`,
		buyerID).Scan(
		&cart.ID,
		&cart.BuyerID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	items, err := listCartItems(ctx, db, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

// GetCart loads a cart by id, whoever owns it. Callers gate access.
func GetCart(ctx context.Context, db *sql.DB, cartID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := db.QueryRowContext(ctx,
		`SELECT id, buyer_id, created_at, updated_at FROM carts WHERE id = $1`,
		cartID).Scan(
		&cart.ID,
		&cart.BuyerID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := listCartItems(ctx, db, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func listCartItems(ctx context.Context, db *sql.DB, cartID int64) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ci.id, ci.cart_id, ci.item_id, ci.quantity,
		        CASE WHEN i.is_free THEN 0 ELSE i.price * ci.quantity END AS subtotal
		 FROM cart_items ci
		 JOIN items i ON i.id = ci.item_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var ci models.CartItem
		if err := rows.Scan(&ci.ID, &ci.CartID, &ci.ItemID, &ci.Quantity, &ci.Subtotal); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, ci)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// AddCartItem adds quantity of an item to the buyer's cart. Re-adding an
// item merges into the existing line instead of creating a duplicate.
// Stock is not checked here; that happens at checkout.
func AddCartItem(ctx context.Context, db *sql.DB, buyerID, itemID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return nil, database.ErrItemNotFound
	}

	cart, err := GetOrCreateCart(ctx, db, buyerID)
	if err != nil {
		return nil, err
	}

	line := &models.CartItem{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, item_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (cart_id, item_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		 RETURNING id, cart_id, item_id, quantity`,
		cart.ID, itemID, quantity).Scan(
		&line.ID,
		&line.CartID,
		&line.ItemID,
		&line.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT CASE WHEN is_free THEN 0 ELSE price * $2 END FROM items WHERE id = $1`,
		itemID, line.Quantity).Scan(&line.Subtotal)
	if err != nil {
		return nil, fmt.Errorf("compute subtotal: %w", err)
	}

	return line, nil
}

// RemoveCartItem deletes the matching line. Removing an absent line is a
// no-op, not an error.
func RemoveCartItem(ctx context.Context, db *sql.DB, buyerID, itemID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE item_id = $1
		   AND cart_id IN (SELECT id FROM carts WHERE buyer_id = $2)`,
		itemID, buyerID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func ClearCart(ctx context.Context, db *sql.DB, buyerID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE cart_id IN (SELECT id FROM carts WHERE buyer_id = $1)`,
		buyerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CartTotal computes the cart total on read; it is never cached.
func CartTotal(ctx context.Context, db *sql.DB, buyerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN i.is_free THEN 0 ELSE i.price * ci.quantity END), 0)
		 FROM cart_items ci
		 JOIN items i ON i.id = ci.item_id
		 JOIN carts c ON c.id = ci.cart_id
		 WHERE c.buyer_id = $1`,
		buyerID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cart total: %w", err)
	}

	return total, nil
}
