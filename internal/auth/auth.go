package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-marketplace/internal/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
)

// Identity is the authenticated caller attached to a request.
// A nil *Identity means an anonymous caller.
type Identity struct {
	UserID           int64
	Role             models.Role
	IsVerified       bool
	IsSellerVerified bool
	IsDeleted        bool
	IsSuperuser      bool
}

func IdentityFromUser(u *models.User) *Identity {
	return &Identity{
		UserID:           u.ID,
		Role:             u.Role,
		IsVerified:       u.IsVerified,
		IsSellerVerified: u.IsSellerVerified,
		IsDeleted:        u.IsDeleted,
		IsSuperuser:      u.IsSuperuser,
	}
}

func ParseRole(s string) (models.Role, error) {
	switch models.Role(strings.ToUpper(strings.TrimSpace(s))) {
	case models.RoleBuyer:
		return models.RoleBuyer, nil
	case models.RoleSeller:
		return models.RoleSeller, nil
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Operation int

const (
	OpBrowseCatalog Operation = iota
	OpCreateItem
	OpMutateItem
	OpMutateCategory
	OpMutateCart
	OpCheckout
	OpPlaceOrder
	OpUpdateOrderStatus
	OpCreatePayment
	OpReviewItem
	OpMutateWishlist
	OpReadNotifications
	OpManageAddresses
	OpViewAdminDashboard
	OpViewSellerDashboard
	OpViewBuyerDashboard
)

// allowedRoles is the capability table: which roles may perform each
// operation. Superusers bypass it entirely; catalog mutations carry an
// extra seller-verification gate on top.
var allowedRoles = map[Operation][]models.Role{
	OpBrowseCatalog:       {models.RoleBuyer, models.RoleSeller, models.RoleAdmin},
	OpCreateItem:          {models.RoleSeller},
	OpMutateItem:          {models.RoleSeller, models.RoleAdmin},
	OpMutateCategory:      {models.RoleAdmin},
	OpMutateCart:          {models.RoleBuyer},
	OpCheckout:            {models.RoleBuyer},
	OpPlaceOrder:          {models.RoleBuyer},
	OpUpdateOrderStatus:   {models.RoleAdmin},
	OpCreatePayment:       {models.RoleBuyer, models.RoleAdmin},
	OpReviewItem:          {models.RoleBuyer},
	OpMutateWishlist:      {models.RoleBuyer, models.RoleSeller, models.RoleAdmin},
	OpReadNotifications:   {models.RoleBuyer, models.RoleSeller, models.RoleAdmin},
	OpManageAddresses:     {models.RoleBuyer, models.RoleSeller, models.RoleAdmin},
	OpViewAdminDashboard:  {},
	OpViewSellerDashboard: {models.RoleSeller},
	OpViewBuyerDashboard:  {models.RoleBuyer},
}

// operations that mutate the catalog and therefore require a verified
// seller (admins and superusers are exempt)
var sellerVerifiedOps = map[Operation]bool{
	OpCreateItem: true,
	OpMutateItem: true,
}

// Authorize decides permit or deny for one operation. Deny-by-default:
// anonymous callers only browse, soft-deleted identities are denied
// everything regardless of role.
func Authorize(id *Identity, op Operation) error {
	if id == nil {
		if op == OpBrowseCatalog {
			return nil
		}
		return ErrUnauthenticated
	}

	if id.IsDeleted {
		return ErrForbidden
	}

	if id.IsSuperuser {
		return nil
	}

	if op == OpViewAdminDashboard {
		// superuser-only, already handled above
		return ErrForbidden
	}

	roles, ok := allowedRoles[op]
	if !ok {
		return ErrForbidden
	}

	permitted := false
	for _, r := range roles {
		if id.Role == r {
			permitted = true
			break
		}
	}
	if !permitted {
		return ErrForbidden
	}

	if sellerVerifiedOps[op] && id.Role == models.RoleSeller && !id.IsSellerVerified {
		return ErrForbidden
	}

	return nil
}

// RequireOwner gates object-level mutation: the caller must match the
// object's owner reference. Admins and superusers pass.
func RequireOwner(id *Identity, ownerID int64) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if id.IsDeleted {
		return ErrForbidden
	}
	if id.IsSuperuser || id.Role == models.RoleAdmin {
		return nil
	}
	if id.UserID != ownerID {
		return ErrForbidden
	}
	return nil
}
