package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type CreateUserRequest struct {
	Email       string
	PhoneNumber string
	FullName    string
	Password    string
	Role        models.Role
	IsSuperuser bool
	BcryptCost  int
}

var nonDigits = regexp.MustCompile(`\D`)

func normalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// applyRoleInvariants keeps the superuser rule: every superuser is a
// verified admin, no matter what the caller asked for.
func applyRoleInvariants(role models.Role, superuser bool) (models.Role, bool) {
	if superuser {
		return models.RoleAdmin, true
	}
	if role == "" {
		role = models.RoleBuyer
	}
	return role, false
}

func CreateUser(ctx context.Context, db *sql.DB, req CreateUserRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", database.ErrInvalidInput)
	}

	cost := req.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role, _ := applyRoleInvariants(req.Role, req.IsSuperuser)
	verified := req.IsSuperuser

	user := &models.User{}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO users (email, phone_number, full_name, password_hash, role, is_verified, is_superuser, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			 RETURNING id, email, phone_number, full_name, role, is_verified, is_seller_verified, is_active, is_deleted, is_superuser, created_at, updated_at`,
			req.Email, normalizePhone(req.PhoneNumber), req.FullName, string(hash), role, verified, req.IsSuperuser).Scan(
			&user.ID,
			&user.Email,
			&user.PhoneNumber,
			&user.FullName,
			&user.Role,
			&user.IsVerified,
			&user.IsSellerVerified,
			&user.IsActive,
			&user.IsDeleted,
			&user.IsSuperuser,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return database.ErrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		// every user gets an empty profile up front
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (user_id) VALUES ($1)`, user.ID); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func GetUser(ctx context.Context, db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, phone_number, full_name, role, is_verified, is_seller_verified, is_active, is_deleted, is_superuser, created_at, updated_at
		FROM users
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.PhoneNumber,
		&user.FullName,
		&user.Role,
		&user.IsVerified,
		&user.IsSellerVerified,
		&user.IsActive,
		&user.IsDeleted,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// Authenticate verifies email/password and returns the user. Soft-deleted
// users fail the same way as a bad password.
func Authenticate(ctx context.Context, db *sql.DB, email, password string) (*models.User, error) {
	user := &models.User{}
	var passwordHash string

	query := `
		SELECT id, email, phone_number, full_name, password_hash, role, is_verified, is_seller_verified, is_active, is_deleted, is_superuser, created_at, updated_at
		FROM users
		WHERE email = $1`

	err := db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PhoneNumber,
		&user.FullName,
		&passwordHash,
		&user.Role,
		&user.IsVerified,
		&user.IsSellerVerified,
		&user.IsActive,
		&user.IsDeleted,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if user.IsDeleted {
		return nil, database.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, database.ErrUserNotFound
	}

	return user, nil
}

// SetSellerVerified flips the seller-verification gate (admin action).
func SetSellerVerified(ctx context.Context, db *sql.DB, userID int64, verified bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_seller_verified = $1, updated_at = NOW() WHERE id = $2`,
		verified, userID)
	if err != nil {
		return fmt.Errorf("set seller verified: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrUserNotFound
	}
	return nil
}

// SoftDeleteUser marks the user deleted. Rows are never hard-deleted.
func SoftDeleteUser(ctx context.Context, db *sql.DB, userID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_deleted = TRUE, is_active = FALSE, updated_at = NOW() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrUserNotFound
	}
	return nil
}

func CreateAddress(ctx context.Context, db *sql.DB, userID int64, street, city, state, country string) (*models.Address, error) {
	addr := &models.Address{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, street, city, state, country)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, street, city, state, country`,
		userID, street, city, state, country).Scan(
		&addr.ID,
		&addr.UserID,
		&addr.Street,
		&addr.City,
		&addr.State,
		&addr.Country,
	)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return addr, nil
}

func ListAddresses(ctx context.Context, db *sql.DB, userID int64) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, street, city, state, country
		 FROM addresses
		 WHERE user_id = $1
		 ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var addr models.Address
		if err := rows.Scan(&addr.ID, &addr.UserID, &addr.Street, &addr.City, &addr.State, &addr.Country); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}

func DeleteAddress(ctx context.Context, db *sql.DB, userID, addressID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM addresses WHERE id = $1 AND user_id = $2`,
		addressID, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrAddressNotFound
	}
	return nil
}
