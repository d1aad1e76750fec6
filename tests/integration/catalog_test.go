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

func TestItemSlugUniqueness(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)

	first := createTestItem(t, db, seller.ID, "Vintage Camera", 100, 5)
	if first.Slug != "vintage-camera" {
		t.Errorf("Expected slug 'vintage-camera', got %q", first.Slug)
	}

	// same name gets a numeric suffix, not a constraint failure
	second := createTestItem(t, db, seller.ID, "Vintage Camera", 100, 5)
	if second.Slug != "vintage-camera-1" {
		t.Errorf("Expected slug 'vintage-camera-1', got %q", second.Slug)
	}

	third := createTestItem(t, db, seller.ID, "Vintage Camera", 100, 5)
	if third.Slug != "vintage-camera-2" {
		t.Errorf("Expected slug 'vintage-camera-2', got %q", third.Slug)
	}

	got, err := store.GetItemBySlug(ctx, db, "vintage-camera-1")
	if err != nil {
		t.Fatalf("Get item by slug: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("Expected item %d, got %d", second.ID, got.ID)
	}
}

func TestFreeItemPriceForcedToZero(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)

	item, err := store.CreateItem(ctx, db, store.CreateItemRequest{
		SellerID:  seller.ID,
		Name:      "Giveaway",
		Condition: models.ConditionUsed,
		IsFree:    true,
		Price:     decimal.NewFromInt(500),
		Stock:     1,
		Status:    models.ItemStatusPublished,
	})
	if err != nil {
		t.Fatalf("Create item: %v", err)
	}
	if !item.Price.IsZero() {
		t.Errorf("Expected zero price for free item, got %s", item.Price)
	}

	// flipping is_free on update forces the price to zero too
	isFree := true
	updated, err := store.UpdateItem(ctx, db, item.ID, store.UpdateItemRequest{IsFree: &isFree})
	if err != nil {
		t.Fatalf("Update item: %v", err)
	}
	if !updated.Price.IsZero() {
		t.Errorf("Expected zero price after update, got %s", updated.Price)
	}
}

func TestUpdateItemPartial(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	item := createTestItem(t, db, seller.ID, "Old Lamp", 40, 3)

	newStock := 7
	updated, err := store.UpdateItem(ctx, db, item.ID, store.UpdateItemRequest{Stock: &newStock})
	if err != nil {
		t.Fatalf("Update item: %v", err)
	}

	if updated.Stock != 7 {
		t.Errorf("Expected stock 7, got %d", updated.Stock)
	}
	if updated.Name != "Old Lamp" {
		t.Errorf("Name should be untouched, got %q", updated.Name)
	}
	if !updated.Price.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Price should be untouched, got %s", updated.Price)
	}
}

func TestCategorySlugAndItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	category, err := store.CreateCategory(ctx, db, "Home & Garden", "Household things")
	if err != nil {
		t.Fatalf("Create category: %v", err)
	}
	if category.Slug != "home-and-garden" {
		t.Errorf("Expected slug 'home-and-garden', got %q", category.Slug)
	}

	seller := createTestUser(t, db, models.RoleSeller)

	item, err := store.CreateItem(ctx, db, store.CreateItemRequest{
		SellerID:   seller.ID,
		Name:       "Garden Hose",
		CategoryID: &category.ID,
		Condition:  models.ConditionNew,
		Price:      decimal.NewFromInt(15),
		Stock:      20,
		Status:     models.ItemStatusPublished,
	})
	if err != nil {
		t.Fatalf("Create item: %v", err)
	}

	page, err := store.ListItems(ctx, db, store.ItemFilter{
		Status:     models.ItemStatusPublished,
		CategoryID: category.ID,
	}, 1, 20)
	if err != nil {
		t.Fatalf("List items: %v", err)
	}

	items, ok := page.Items.([]models.Item)
	if !ok {
		t.Fatalf("Unexpected items type %T", page.Items)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("Expected only the hose in the category, got %+v", items)
	}
}

func TestListItemsFiltersDrafts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	createTestItem(t, db, seller.ID, "Visible", 10, 5)

	if _, err := store.CreateItem(ctx, db, store.CreateItemRequest{
		SellerID:  seller.ID,
		Name:      "Hidden Draft",
		Condition: models.ConditionNew,
		Price:     decimal.NewFromInt(10),
		Stock:     5,
		Status:    models.ItemStatusDraft,
	}); err != nil {
		t.Fatalf("Create draft: %v", err)
	}

	page, err := store.ListItems(ctx, db, store.ItemFilter{Status: models.ItemStatusPublished}, 1, 20)
	if err != nil {
		t.Fatalf("List items: %v", err)
	}

	items := page.Items.([]models.Item)
	if len(items) != 1 || items[0].Name != "Visible" {
		t.Errorf("Expected only the published item, got %+v", items)
	}
}

func TestDeleteItem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	item := createTestItem(t, db, seller.ID, "Doomed", 10, 5)

	if err := store.DeleteItem(ctx, db, item.ID); err != nil {
		t.Fatalf("Delete item: %v", err)
	}

	if _, err := store.GetItem(ctx, db, item.ID); !errors.Is(err, database.ErrItemNotFound) {
		t.Errorf("Expected item not found after delete, got: %v", err)
	}

	if err := store.DeleteItem(ctx, db, item.ID); !errors.Is(err, database.ErrItemNotFound) {
		t.Errorf("Expected item not found on double delete, got: %v", err)
	}
}

func TestReviews(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	item := createTestItem(t, db, seller.ID, "Reviewed Thing", 10, 5)

	if _, err := store.CreateReview(ctx, db, buyer.ID, item.ID, 4, "Pretty good"); err != nil {
		t.Fatalf("Create review: %v", err)
	}
	if _, err := store.CreateReview(ctx, db, buyer.ID, item.ID, 6, "Too good"); !errors.Is(err, database.ErrInvalidInput) {
		t.Errorf("Expected invalid rating error, got: %v", err)
	}
	if _, err := store.CreateReview(ctx, db, seller.ID, item.ID, 5, "My own item"); !errors.Is(err, database.ErrOwnItem) {
		t.Errorf("Expected own item error, got: %v", err)
	}

	stats, err := store.GetItemStats(ctx, db, item.ID)
	if err != nil {
		t.Fatalf("Get item stats: %v", err)
	}
	if stats.TotalReviews != 1 || stats.AverageRating != 4 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
