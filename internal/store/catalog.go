package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// slugAttempts bounds the numeric-suffix retry loop when two writers
// race on the same name. The unique constraint is the real arbiter.
const slugAttempts = 50

func deriveSlug(name, fallback string) string {
	s := slug.Make(name)
	if s == "" {
		return fallback
	}
	return s
}

func slugCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}

// normalizePrice enforces the free-item rule: a free item always has
// price zero, whatever the caller sent.
func normalizePrice(isFree bool, price decimal.Decimal) decimal.Decimal {
	if isFree {
		return decimal.Zero
	}
	return price
}

func CreateCategory(ctx context.Context, db *sql.DB, name, description string) (*models.Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", database.ErrInvalidInput)
	}

	base := deriveSlug(name, "category")
	category := &models.Category{}

	for attempt := 0; attempt < slugAttempts; attempt++ {
		err := db.QueryRowContext(ctx,
			`INSERT INTO categories (name, slug, description)
			 VALUES ($1, $2, $3)
			 RETURNING id, name, slug, description`,
			name, slugCandidate(base, attempt), description).Scan(
			&category.ID,
			&category.Name,
			&category.Slug,
			&category.Description,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("create category: %w", err)
		}
		return category, nil
	}

	return nil, fmt.Errorf("create category: could not find a free slug for %q", name)
}

func GetCategoryBySlug(ctx context.Context, db *sql.DB, categorySlug string) (*models.Category, error) {
	category := &models.Category{}

	err := db.QueryRowContext(ctx,
		`SELECT id, name, slug, description FROM categories WHERE slug = $1`,
		categorySlug).Scan(
		&category.ID,
		&category.Name,
		&category.Slug,
		&category.Description,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

func ListCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, slug, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

type CreateItemRequest struct {
	SellerID     int64
	Name         string
	Description  string
	CategoryID   *int64
	Condition    string
	IsFree       bool
	Price        decimal.Decimal
	IsNegotiable bool
	Stock        int
	Location     string
	Status       string
}

const itemColumns = `id, seller_id, name, slug, description, category_id, condition, is_free, price, is_negotiable, stock, location, status, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*models.Item, error) {
	item := &models.Item{}
	err := row.Scan(
		&item.ID,
		&item.SellerID,
		&item.Name,
		&item.Slug,
		&item.Description,
		&item.CategoryID,
		&item.Condition,
		&item.IsFree,
		&item.Price,
		&item.IsNegotiable,
		&item.Stock,
		&item.Location,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func CreateItem(ctx context.Context, db *sql.DB, req CreateItemRequest) (*models.Item, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: item name is required", database.ErrInvalidInput)
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", database.ErrInvalidInput)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", database.ErrInvalidInput)
	}

	condition := req.Condition
	if condition == "" {
		condition = models.ConditionNew
	}
	status := req.Status
	if status == "" {
		status = models.ItemStatusPublished
	}
	price := normalizePrice(req.IsFree, req.Price)

	base := deriveSlug(req.Name, "item")

	for attempt := 0; attempt < slugAttempts; attempt++ {
		item, err := scanItem(db.QueryRowContext(ctx,
			`INSERT INTO items (seller_id, name, slug, description, category_id, condition, is_free, price, is_negotiable, stock, location, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			 RETURNING `+itemColumns,
			req.SellerID, req.Name, slugCandidate(base, attempt), req.Description, req.CategoryID,
			condition, req.IsFree, price, req.IsNegotiable, req.Stock, req.Location, status))
		if err != nil {
			if database.IsUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("create item: %w", err)
		}
		return item, nil
	}

	return nil, fmt.Errorf("create item: could not find a free slug for %q", req.Name)
}

func GetItem(ctx context.Context, db *sql.DB, id int64) (*models.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func GetItemBySlug(ctx context.Context, db *sql.DB, itemSlug string) (*models.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE slug = $1`, itemSlug))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item by slug: %w", err)
	}
	return item, nil
}

type UpdateItemRequest struct {
	Name         *string
	Description  *string
	CategoryID   *int64
	Condition    *string
	IsFree       *bool
	Price        *decimal.Decimal
	IsNegotiable *bool
	Stock        *int
	Location     *string
	Status       *string
}

// UpdateItem applies a partial update. The free-item price rule is
// re-enforced on the merged result, not just on the changed fields.
func UpdateItem(ctx context.Context, db *sql.DB, itemID int64, req UpdateItemRequest) (*models.Item, error) {
	var updated *models.Item

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		item, err := scanItem(tx.QueryRowContext(ctx,
			`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, itemID))
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrItemNotFound
			}
			return fmt.Errorf("lock item: %w", err)
		}

		if req.Name != nil {
			item.Name = *req.Name
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.CategoryID != nil {
			item.CategoryID = req.CategoryID
		}
		if req.Condition != nil {
			item.Condition = *req.Condition
		}
		if req.IsFree != nil {
			item.IsFree = *req.IsFree
		}
		if req.Price != nil {
			item.Price = *req.Price
		}
		if req.IsNegotiable != nil {
			item.IsNegotiable = *req.IsNegotiable
		}
		if req.Stock != nil {
			if *req.Stock < 0 {
				return fmt.Errorf("%w: stock cannot be negative", database.ErrInvalidInput)
			}
			item.Stock = *req.Stock
		}
		if req.Location != nil {
			item.Location = *req.Location
		}
		if req.Status != nil {
			item.Status = *req.Status
		}

		if item.Price.IsNegative() {
			return fmt.Errorf("%w: price cannot be negative", database.ErrInvalidInput)
		}
		item.Price = normalizePrice(item.IsFree, item.Price)

		updated, err = scanItem(tx.QueryRowContext(ctx,
			`UPDATE items
			 SET name = $1, description = $2, category_id = $3, condition = $4, is_free = $5,
			     price = $6, is_negotiable = $7, stock = $8, location = $9, status = $10, updated_at = NOW()
			 WHERE id = $11
			 RETURNING `+itemColumns,
			item.Name, item.Description, item.CategoryID, item.Condition, item.IsFree,
			item.Price, item.IsNegotiable, item.Stock, item.Location, item.Status, itemID))
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func DeleteItem(ctx context.Context, db *sql.DB, itemID int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrItemNotFound
	}
	return nil
}

type ItemFilter struct {
	Status     string
	SellerID   int64
	CategoryID int64
}

func ListItems(ctx context.Context, db *sql.DB, filter ItemFilter, page, pageSize int) (*OffsetPage, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SellerID != 0 {
		args = append(args, filter.SellerID)
		where += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		where += fmt.Sprintf(" AND category_id = $%d", len(args))
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(items, total, page, pageSize), nil
}
