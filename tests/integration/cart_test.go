package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
)

func TestCartQuantityMerge(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)
	seller := createTestUser(t, db, models.RoleSeller)
	item := createTestItem(t, db, seller.ID, "Widget", 10, 50)

	line1, err := store.AddCartItem(ctx, db, buyer.ID, item.ID, 2)
	if err != nil {
		t.Fatalf("Add item: %v", err)
	}
	if line1.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", line1.Quantity)
	}

	// re-adding the same item merges into one line
	line2, err := store.AddCartItem(ctx, db, buyer.ID, item.ID, 3)
	if err != nil {
		t.Fatalf("Re-add item: %v", err)
	}
	if line2.Quantity != 5 {
		t.Errorf("Expected merged quantity 5, got %d", line2.Quantity)
	}
	if line2.ID != line1.ID {
		t.Errorf("Expected the same line, got %d and %d", line1.ID, line2.ID)
	}

	cart, err := store.GetOrCreateCart(ctx, db, buyer.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Errorf("Expected 1 cart line, got %d", len(cart.Items))
	}

	expectedSubtotal := decimal.NewFromInt(50)
	if !line2.Subtotal.Equal(expectedSubtotal) {
		t.Errorf("Expected subtotal %s, got %s", expectedSubtotal, line2.Subtotal)
	}
}

func TestCartInvalidQuantity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)
	seller := createTestUser(t, db, models.RoleSeller)
	item := createTestItem(t, db, seller.ID, "Widget", 10, 50)

	if _, err := store.AddCartItem(ctx, db, buyer.ID, item.ID, 0); !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity error, got: %v", err)
	}
	if _, err := store.AddCartItem(ctx, db, buyer.ID, item.ID, -1); !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity error, got: %v", err)
	}
}

func TestCartMissingItem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)

	if _, err := store.AddCartItem(ctx, db, buyer.ID, 99999, 1); !errors.Is(err, database.ErrItemNotFound) {
		t.Errorf("Expected item not found error, got: %v", err)
	}
}

func TestCartRemoveIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)
	seller := createTestUser(t, db, models.RoleSeller)
	item := createTestItem(t, db, seller.ID, "Widget", 10, 50)

	if _, err := store.AddCartItem(ctx, db, buyer.ID, item.ID, 1); err != nil {
		t.Fatalf("Add item: %v", err)
	}

	if err := store.RemoveCartItem(ctx, db, buyer.ID, item.ID); err != nil {
		t.Fatalf("Remove item: %v", err)
	}

	// removing an absent line is a no-op
	if err := store.RemoveCartItem(ctx, db, buyer.ID, item.ID); err != nil {
		t.Errorf("Second remove should be a no-op, got: %v", err)
	}

	cart, err := store.GetOrCreateCart(ctx, db, buyer.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("Expected empty cart, got %d items", len(cart.Items))
	}
}

func TestCartTotal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)
	seller := createTestUser(t, db, models.RoleSeller)

	paid := createTestItem(t, db, seller.ID, "Paid Thing", 10, 50)
	free, err := store.CreateItem(ctx, db, store.CreateItemRequest{
		SellerID:  seller.ID,
		Name:      "Free Thing",
		Condition: models.ConditionUsed,
		IsFree:    true,
		Stock:     50,
		Status:    models.ItemStatusPublished,
	})
	if err != nil {
		t.Fatalf("Create free item: %v", err)
	}

	if _, err := store.AddCartItem(ctx, db, buyer.ID, paid.ID, 3); err != nil {
		t.Fatalf("Add paid item: %v", err)
	}
	if _, err := store.AddCartItem(ctx, db, buyer.ID, free.ID, 2); err != nil {
		t.Fatalf("Add free item: %v", err)
	}

	total, err := store.CartTotal(ctx, db, buyer.ID)
	if err != nil {
		t.Fatalf("Cart total: %v", err)
	}

	expected := decimal.NewFromInt(30)
	if !total.Equal(expected) {
		t.Errorf("Expected total %s, got %s", expected, total)
	}
}

func TestCartOnePerBuyer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)

	cart1, err := store.GetOrCreateCart(ctx, db, buyer.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	cart2, err := store.GetOrCreateCart(ctx, db, buyer.ID)
	if err != nil {
		t.Fatalf("Get cart again: %v", err)
	}
	if cart1.ID != cart2.ID {
		t.Errorf("Expected one cart per buyer, got ids %d and %d", cart1.ID, cart2.ID)
	}
}
