package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/go-marketplace/internal/models"
)

func TestAuthorizeAnonymous(t *testing.T) {
	assert.NoError(t, Authorize(nil, OpBrowseCatalog))

	assert.ErrorIs(t, Authorize(nil, OpMutateCart), ErrUnauthenticated)
	assert.ErrorIs(t, Authorize(nil, OpCheckout), ErrUnauthenticated)
	assert.ErrorIs(t, Authorize(nil, OpViewAdminDashboard), ErrUnauthenticated)
}

func TestAuthorizeRoles(t *testing.T) {
	buyer := &Identity{UserID: 1, Role: models.RoleBuyer}
	seller := &Identity{UserID: 2, Role: models.RoleSeller, IsSellerVerified: true}
	admin := &Identity{UserID: 3, Role: models.RoleAdmin}

	tests := []struct {
		name   string
		id     *Identity
		op     Operation
		wantOK bool
	}{
		{"buyer mutates cart", buyer, OpMutateCart, true},
		{"buyer checks out", buyer, OpCheckout, true},
		{"buyer reviews", buyer, OpReviewItem, true},
		{"buyer cannot create items", buyer, OpCreateItem, false},
		{"buyer cannot change order status", buyer, OpUpdateOrderStatus, false},

		{"seller creates items", seller, OpCreateItem, true},
		{"seller cannot checkout", seller, OpCheckout, false},
		{"seller cannot mutate categories", seller, OpMutateCategory, false},
		{"seller views own dashboard", seller, OpViewSellerDashboard, true},

		{"admin mutates categories", admin, OpMutateCategory, true},
		{"admin changes order status", admin, OpUpdateOrderStatus, true},
		{"admin cannot create items", admin, OpCreateItem, false},
		{"admin denied superuser dashboard", admin, OpViewAdminDashboard, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.id, tt.op)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeSellerVerificationGate(t *testing.T) {
	unverified := &Identity{UserID: 1, Role: models.RoleSeller}

	assert.ErrorIs(t, Authorize(unverified, OpCreateItem), ErrForbidden)
	assert.ErrorIs(t, Authorize(unverified, OpMutateItem), ErrForbidden)

	// the gate only covers catalog mutation
	assert.NoError(t, Authorize(unverified, OpBrowseCatalog))
	assert.NoError(t, Authorize(unverified, OpViewSellerDashboard))
}

func TestAuthorizeSuperuserBypass(t *testing.T) {
	root := &Identity{UserID: 1, Role: models.RoleAdmin, IsSuperuser: true}

	assert.NoError(t, Authorize(root, OpViewAdminDashboard))
	assert.NoError(t, Authorize(root, OpCreateItem))
	assert.NoError(t, Authorize(root, OpCheckout))
}

func TestAuthorizeDeletedDeniedEverything(t *testing.T) {
	deleted := &Identity{UserID: 1, Role: models.RoleAdmin, IsSuperuser: true, IsDeleted: true}

	assert.ErrorIs(t, Authorize(deleted, OpBrowseCatalog), ErrForbidden)
	assert.ErrorIs(t, Authorize(deleted, OpViewAdminDashboard), ErrForbidden)
}

func TestRequireOwner(t *testing.T) {
	owner := &Identity{UserID: 7, Role: models.RoleSeller}
	stranger := &Identity{UserID: 8, Role: models.RoleSeller}
	admin := &Identity{UserID: 9, Role: models.RoleAdmin}

	assert.NoError(t, RequireOwner(owner, 7))
	assert.ErrorIs(t, RequireOwner(stranger, 7), ErrForbidden)
	assert.NoError(t, RequireOwner(admin, 7))
	assert.ErrorIs(t, RequireOwner(nil, 7), ErrUnauthenticated)
}

func TestParseRole(t *testing.T) {
	for input, want := range map[string]models.Role{
		"buyer":  models.RoleBuyer,
		"SELLER": models.RoleSeller,
		" Admin": models.RoleAdmin,
	} {
		got, err := ParseRole(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("wizard")
	assert.Error(t, err)
}
