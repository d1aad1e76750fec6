package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

type User struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	FullName         string    `json:"full_name"`
	Role             Role      `json:"role"`
	IsVerified       bool      `json:"is_verified"`
	IsSellerVerified bool      `json:"is_seller_verified"`
	IsActive         bool      `json:"is_active"`
	IsDeleted        bool      `json:"is_deleted"`
	IsSuperuser      bool      `json:"is_superuser"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Profile struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Bio    string `json:"bio,omitempty"`
}

type Address struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

const (
	ConditionNew         = "NEW"
	ConditionUsed        = "USED"
	ConditionRefurbished = "REFURBISHED"
)

const (
	ItemStatusPublished = "PUBLISHED"
	ItemStatusDraft     = "DRAFT"
	ItemStatusSold      = "SOLD"
	ItemStatusPending   = "PENDING"
)

type Item struct {
	ID           int64           `json:"id"`
	SellerID     int64           `json:"seller_id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description,omitempty"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	Condition    string          `json:"condition"`
	IsFree       bool            `json:"is_free"`
	Price        decimal.Decimal `json:"price"`
	IsNegotiable bool            `json:"is_negotiable"`
	Stock        int             `json:"stock"`
	Location     string          `json:"location,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ItemReview struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	ReviewerID *int64    `json:"reviewer_id,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Cart struct {
	ID        int64      `json:"id"`
	BuyerID   int64      `json:"buyer_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Items     []CartItem `json:"items,omitempty"`
}

type CartItem struct {
	ID       int64           `json:"id"`
	CartID   int64           `json:"cart_id"`
	ItemID   int64           `json:"item_id"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusPaid       = "PAID"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

type Order struct {
	ID                int64           `json:"id"`
	BuyerID           int64           `json:"buyer_id"`
	ShippingAddressID int64           `json:"shipping_address_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []OrderItem     `json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of an order line. Price is the
// quantity times the unit price at purchase time, never recomputed.
type OrderItem struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	ItemID   int64           `json:"item_id"`
	ItemName string          `json:"item_name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

type Payment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Provider  string          `json:"provider"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type WishlistEntry struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	ItemID  int64     `json:"item_id"`
	AddedAt time.Time `json:"added_at"`
}
