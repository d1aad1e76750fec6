package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
)

func TestCreateUser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	email := uniqueEmail("buyer")
	user, err := store.CreateUser(ctx, db, store.CreateUserRequest{
		Email:       email,
		PhoneNumber: "+1 (555) 123-4567",
		FullName:    "First Last",
		Password:    "secret99",
		Role:        models.RoleBuyer,
		BcryptCost:  4,
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	if user.PhoneNumber != "15551234567" {
		t.Errorf("Expected normalized phone 15551234567, got %q", user.PhoneNumber)
	}
	if user.Role != models.RoleBuyer {
		t.Errorf("Expected role BUYER, got %s", user.Role)
	}

	// a profile row exists from the moment the account does
	var profileCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE user_id = $1`, user.ID).Scan(&profileCount); err != nil {
		t.Fatalf("Count profiles: %v", err)
	}
	if profileCount != 1 {
		t.Errorf("Expected 1 profile, got %d", profileCount)
	}

	_, err = store.CreateUser(ctx, db, store.CreateUserRequest{
		Email:      email,
		Password:   "other",
		BcryptCost: 4,
	})
	if !errors.Is(err, database.ErrEmailTaken) {
		t.Errorf("Expected email taken error, got: %v", err)
	}
}

func TestCreateSuperuser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, store.CreateUserRequest{
		Email:       uniqueEmail("root"),
		Password:    "secret99",
		Role:        models.RoleBuyer,
		IsSuperuser: true,
		BcryptCost:  4,
	})
	if err != nil {
		t.Fatalf("Create superuser: %v", err)
	}

	// superusers are always verified admins, whatever role was requested
	if user.Role != models.RoleAdmin {
		t.Errorf("Expected role ADMIN, got %s", user.Role)
	}
	if !user.IsVerified {
		t.Error("Expected superuser to be verified")
	}
}

func TestAuthenticate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	email := uniqueEmail("login")
	user, err := store.CreateUser(ctx, db, store.CreateUserRequest{
		Email:      email,
		Password:   "correct-horse",
		BcryptCost: 4,
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	got, err := store.Authenticate(ctx, db, email, "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, got.ID)
	}

	if _, err := store.Authenticate(ctx, db, email, "wrong"); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected auth failure for wrong password, got: %v", err)
	}

	if err := store.SoftDeleteUser(ctx, db, user.ID); err != nil {
		t.Fatalf("Soft delete: %v", err)
	}

	// deleted users fail the same way as a bad password
	if _, err := store.Authenticate(ctx, db, email, "correct-horse"); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected auth failure for deleted user, got: %v", err)
	}
}

func TestSetSellerVerified(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	if seller.IsSellerVerified {
		t.Fatal("New seller should start unverified")
	}

	if err := store.SetSellerVerified(ctx, db, seller.ID, true); err != nil {
		t.Fatalf("Set seller verified: %v", err)
	}

	after, err := store.GetUser(ctx, db, seller.ID)
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if !after.IsSellerVerified {
		t.Error("Expected seller to be verified")
	}

	if err := store.SetSellerVerified(ctx, db, 99999, true); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected user not found error, got: %v", err)
	}
}

func TestAddresses(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, models.RoleBuyer)
	other := createTestUser(t, db, models.RoleBuyer)

	addr := createTestAddress(t, db, user.ID)

	addresses, err := store.ListAddresses(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("List addresses: %v", err)
	}
	if len(addresses) != 1 {
		t.Fatalf("Expected 1 address, got %d", len(addresses))
	}

	// deletes are scoped to the owner
	if err := store.DeleteAddress(ctx, db, other.ID, addr.ID); !errors.Is(err, database.ErrAddressNotFound) {
		t.Errorf("Expected not found for someone else's address, got: %v", err)
	}
	if err := store.DeleteAddress(ctx, db, user.ID, addr.ID); err != nil {
		t.Fatalf("Delete address: %v", err)
	}
}
