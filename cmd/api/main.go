package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-marketplace/internal/auth"
	"github.com/safar/go-marketplace/internal/config"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

type identityKey struct{}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", handleRegister(db, cfg))
	mux.HandleFunc("POST /auth/login", handleLogin(db, cfg))
	mux.HandleFunc("GET /me", handleMe())

	mux.HandleFunc("GET /addresses", handleListAddresses(db))
	mux.HandleFunc("POST /addresses", handleCreateAddress(db))
	mux.HandleFunc("DELETE /addresses/{id}", handleDeleteAddress(db))

	mux.HandleFunc("GET /categories", handleListCategories(db))
	mux.HandleFunc("POST /categories", handleCreateCategory(db))
	mux.HandleFunc("GET /categories/{slug}", handleGetCategory(db))
	mux.HandleFunc("GET /categories/{slug}/items", handleCategoryItems(db))

	mux.HandleFunc("GET /items", handleListItems(db))
	mux.HandleFunc("POST /items", handleCreateItem(db))
	mux.HandleFunc("GET /items/{slug}", handleGetItem(db))
	mux.HandleFunc("PATCH /items/{id}", handleUpdateItem(db))
	mux.HandleFunc("DELETE /items/{id}", handleDeleteItem(db))
	mux.HandleFunc("GET /items/{id}/stats", handleItemStats(db))
	mux.HandleFunc("GET /items/{id}/reviews", handleListReviews(db))
	mux.HandleFunc("POST /items/{id}/reviews", handleCreateReview(db))

	mux.HandleFunc("GET /carts/{id}", handleGetCart(db))
	mux.HandleFunc("POST /carts/{id}/add_item", handleCartAddItem(db))
	mux.HandleFunc("POST /carts/{id}/remove_item", handleCartRemoveItem(db))
	mux.HandleFunc("POST /carts/{id}/clear", handleCartClear(db))
	mux.HandleFunc("POST /carts/{id}/checkout", handleCheckout(db))
	mux.HandleFunc("GET /cart", handleMyCart(db))

	mux.HandleFunc("POST /orders", handleCreateOrder(db))
	mux.HandleFunc("GET /orders", handleListOrders(db))
	mux.HandleFunc("GET /orders/{id}", handleGetOrder(db))
	mux.HandleFunc("POST /orders/{id}/status", handleUpdateOrderStatus(db))
	mux.HandleFunc("GET /seller/orders", handleSellerOrders(db))

	mux.HandleFunc("POST /payments", handleCreatePayment(db))
	mux.HandleFunc("GET /payments", handleListPayments(db))

	mux.HandleFunc("GET /notifications", handleListNotifications(db))
	mux.HandleFunc("POST /notifications/{id}/read", handleReadNotification(db))

	mux.HandleFunc("GET /wishlist", handleListWishlist(db))
	mux.HandleFunc("POST /wishlist/add", handleWishlistAdd(db))
	mux.HandleFunc("POST /wishlist/remove", handleWishlistRemove(db))

	mux.HandleFunc("GET /dashboard/marketplace", handleMarketplaceDashboard(db))
	mux.HandleFunc("GET /dashboard/admin", handleAdminDashboard(db))
	mux.HandleFunc("GET /dashboard/seller", handleSellerDashboard(db))
	mux.HandleFunc("GET /dashboard/buyer", handleBuyerDashboard(db))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withIdentity(db, cfg, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// withIdentity resolves the bearer token into an identity on every
// request. The token carries only the user id; role and flags are
// re-read from the database so revocation takes effect immediately.
// Requests without a token pass through anonymous; Authorize decides
// what anonymous callers may do.
func withIdentity(db *sql.DB, cfg *config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		userID, err := auth.ParseToken(cfg.Auth.TokenSecret, tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := store.GetUser(r.Context(), db, userID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, auth.IdentityFromUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(identityKey{}).(*auth.Identity)
	return id
}

func handleRegister(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email       string `json:"email"`
			PhoneNumber string `json:"phone_number"`
			FullName    string `json:"full_name"`
			Password    string `json:"password"`
			Role        string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		role := models.RoleBuyer
		if req.Role != "" {
			parsed, err := auth.ParseRole(req.Role)
			if err != nil || parsed == models.RoleAdmin {
				respondError(w, http.StatusBadRequest, "Invalid role")
				return
			}
			role = parsed
		}

		user, err := store.CreateUser(r.Context(), db, store.CreateUserRequest{
			Email:       req.Email,
			PhoneNumber: req.PhoneNumber,
			FullName:    req.FullName,
			Password:    req.Password,
			Role:        role,
			BcryptCost:  cfg.Auth.BcryptCost,
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, user)
	}
}

func handleLogin(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, err := store.Authenticate(r.Context(), db, req.Email, req.Password)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := auth.IssueToken(cfg.Auth.TokenSecret, user.ID, cfg.Auth.TokenTTL)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Could not issue token")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"user":  user,
		})
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id == nil {
			respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		respondJSON(w, http.StatusOK, id)
	}
}

func handleListAddresses(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpManageAddresses); err != nil {
			respondAuthError(w, err)
			return
		}

		addresses, err := store.ListAddresses(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, addresses)
	}
}

func handleCreateAddress(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpManageAddresses); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			Street  string `json:"street"`
			City    string `json:"city"`
			State   string `json:"state"`
			Country string `json:"country"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		addr, err := store.CreateAddress(r.Context(), db, id.UserID, req.Street, req.City, req.State, req.Country)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, addr)
	}
}

func handleDeleteAddress(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpManageAddresses); err != nil {
			respondAuthError(w, err)
			return
		}

		addressID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid address ID")
			return
		}

		if err := store.DeleteAddress(r.Context(), db, id.UserID, addressID); err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Address deleted"})
	}
}

func handleListCategories(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := store.ListCategories(r.Context(), db)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, categories)
	}
}

func handleCreateCategory(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCategory); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		category, err := store.CreateCategory(r.Context(), db, req.Name, req.Description)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, category)
	}
}

func handleGetCategory(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := store.GetCategoryBySlug(r.Context(), db, r.PathValue("slug"))
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, category)
	}
}

func handleCategoryItems(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := store.GetCategoryBySlug(r.Context(), db, r.PathValue("slug"))
		if err != nil {
			respondStoreError(w, err)
			return
		}

		page, pageSize := pagination(r)
		result, err := store.ListItems(r.Context(), db, store.ItemFilter{
			Status:     models.ItemStatusPublished,
			CategoryID: category.ID,
		}, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleListItems(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		page, pageSize := pagination(r)

		// sellers browsing their own inventory see every status;
		// everyone else sees published items only
		filter := store.ItemFilter{Status: models.ItemStatusPublished}
		if r.URL.Query().Get("mine") == "true" && id != nil {
			if id.Role == models.RoleSeller {
				filter = store.ItemFilter{SellerID: id.UserID}
			} else if id.Role == models.RoleAdmin || id.IsSuperuser {
				filter = store.ItemFilter{}
			}
		}

		result, err := store.ListItems(r.Context(), db, filter, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

type itemPayload struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	CategoryID   *int64  `json:"category_id"`
	Condition    string  `json:"condition"`
	IsFree       bool    `json:"is_free"`
	Price        string  `json:"price"`
	IsNegotiable bool    `json:"is_negotiable"`
	Stock        int     `json:"stock"`
	Location     string  `json:"location"`
	Status       string  `json:"status"`
}

func handleCreateItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpCreateItem); err != nil {
			respondAuthError(w, err)
			return
		}

		var req itemPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		price := decimal.Zero
		if req.Price != "" {
			var err error
			price, err = decimal.NewFromString(req.Price)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid price")
				return
			}
		}

		item, err := store.CreateItem(r.Context(), db, store.CreateItemRequest{
			SellerID:     id.UserID,
			Name:         req.Name,
			Description:  req.Description,
			CategoryID:   req.CategoryID,
			Condition:    req.Condition,
			IsFree:       req.IsFree,
			Price:        price,
			IsNegotiable: req.IsNegotiable,
			Stock:        req.Stock,
			Location:     req.Location,
			Status:       req.Status,
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, item)
	}
}

func handleGetItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		item, err := store.GetItemBySlug(r.Context(), db, r.PathValue("slug"))
		if err != nil {
			respondStoreError(w, err)
			return
		}

		// unpublished items are visible to their seller and admins only
		if item.Status != models.ItemStatusPublished {
			if err := auth.RequireOwner(id, item.SellerID); err != nil {
				respondError(w, http.StatusNotFound, database.ErrItemNotFound.Error())
				return
			}
		}

		respondJSON(w, http.StatusOK, item)
	}
}

func handleUpdateItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateItem); err != nil {
			respondAuthError(w, err)
			return
		}

		itemID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}

		item, err := store.GetItem(r.Context(), db, itemID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if err := auth.RequireOwner(id, item.SellerID); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			Name         *string `json:"name"`
			Description  *string `json:"description"`
			CategoryID   *int64  `json:"category_id"`
			Condition    *string `json:"condition"`
			IsFree       *bool   `json:"is_free"`
			Price        *string `json:"price"`
			IsNegotiable *bool   `json:"is_negotiable"`
			Stock        *int    `json:"stock"`
			Location     *string `json:"location"`
			Status       *string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		update := store.UpdateItemRequest{
			Name:         req.Name,
			Description:  req.Description,
			CategoryID:   req.CategoryID,
			Condition:    req.Condition,
			IsFree:       req.IsFree,
			IsNegotiable: req.IsNegotiable,
			Stock:        req.Stock,
			Location:     req.Location,
			Status:       req.Status,
		}
		if req.Price != nil {
			price, err := decimal.NewFromString(*req.Price)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid price")
				return
			}
			update.Price = &price
		}

		updated, err := store.UpdateItem(r.Context(), db, itemID, update)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateItem); err != nil {
			respondAuthError(w, err)
			return
		}

		itemID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}

		item, err := store.GetItem(r.Context(), db, itemID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if err := auth.RequireOwner(id, item.SellerID); err != nil {
			respondAuthError(w, err)
			return
		}

		if err := store.DeleteItem(r.Context(), db, itemID); err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
	}
}

func handleItemStats(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}

		stats, err := store.GetItemStats(r.Context(), db, itemID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

func handleListReviews(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}

		reviews, err := store.ListReviewsForItem(r.Context(), db, itemID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, reviews)
	}
}

func handleCreateReview(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpReviewItem); err != nil {
			respondAuthError(w, err)
			return
		}

		itemID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid item ID")
			return
		}

		var req struct {
			Rating  int    `json:"rating"`
			Comment string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		review, err := store.CreateReview(r.Context(), db, id.UserID, itemID, req.Rating, req.Comment)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, review)
	}
}

// resolveOwnCart checks the path cart id against the caller's identity.
func resolveOwnCart(r *http.Request, db *sql.DB, id *auth.Identity) (*models.Cart, error) {
	cartID, err := pathID(r, "id")
	if err != nil {
		return nil, database.ErrInvalidInput
	}

	cart, err := store.GetCart(r.Context(), db, cartID)
	if err != nil {
		return nil, err
	}
	if cart.BuyerID != id.UserID && !id.IsSuperuser {
		// hide other buyers' carts entirely
		return nil, database.ErrCartNotFound
	}
	return cart, nil
}

func handleGetCart(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCart); err != nil {
			respondAuthError(w, err)
			return
		}

		cart, err := resolveOwnCart(r, db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondCartWithTotal(w, r, db, cart)
	}
}

func handleMyCart(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCart); err != nil {
			respondAuthError(w, err)
			return
		}

		cart, err := store.GetOrCreateCart(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondCartWithTotal(w, r, db, cart)
	}
}

func respondCartWithTotal(w http.ResponseWriter, r *http.Request, db *sql.DB, cart *models.Cart) {
	total, err := store.CartTotal(r.Context(), db, cart.BuyerID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cart":         cart,
		"total_amount": total,
	})
}

func handleCartAddItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCart); err != nil {
			respondAuthError(w, err)
			return
		}

		if _, err := resolveOwnCart(r, db, id); err != nil {
			respondStoreError(w, err)
			return
		}

		var req struct {
			Item     int64 `json:"item"`
			Quantity int   `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		line, err := store.AddCartItem(r.Context(), db, id.UserID, req.Item, req.Quantity)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, line)
	}
}

func handleCartRemoveItem(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCart); err != nil {
			respondAuthError(w, err)
			return
		}

		if _, err := resolveOwnCart(r, db, id); err != nil {
			respondStoreError(w, err)
			return
		}

		var req struct {
			Item int64 `json:"item"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := store.RemoveCartItem(r.Context(), db, id.UserID, req.Item); err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Item removed"})
	}
}

func handleCartClear(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateCart); err != nil {
			respondAuthError(w, err)
			return
		}

		if _, err := resolveOwnCart(r, db, id); err != nil {
			respondStoreError(w, err)
			return
		}

		if err := store.ClearCart(r.Context(), db, id.UserID); err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
	}
}

func handleCheckout(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpCheckout); err != nil {
			respondAuthError(w, err)
			return
		}

		if _, err := resolveOwnCart(r, db, id); err != nil {
			respondStoreError(w, err)
			return
		}

		var req struct {
			ShippingAddress int64 `json:"shipping_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		order, err := store.Checkout(r.Context(), db, id.UserID, req.ShippingAddress)
		if err != nil {
			// a bad shipping address is a validation failure here, not a missing resource
			if errors.Is(err, database.ErrAddressNotFound) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"message": "Checkout successful",
			"order":   order,
		})
	}
}

func handleCreateOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpPlaceOrder); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			ShippingAddress int64 `json:"shipping_address"`
			Items           []struct {
				Item     int64 `json:"item"`
				Quantity int   `json:"quantity"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var lines []store.OrderLineRequest
		for _, line := range req.Items {
			lines = append(lines, store.OrderLineRequest{
				ItemID:   line.Item,
				Quantity: line.Quantity,
			})
		}

		order, err := store.CreateOrder(r.Context(), db, store.CreateOrderRequest{
			BuyerID:           id.UserID,
			ShippingAddressID: req.ShippingAddress,
			Items:             lines,
		})
		if err != nil {
			if errors.Is(err, database.ErrAddressNotFound) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, order)
	}
}

func handleListOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpPlaceOrder); err != nil {
			respondAuthError(w, err)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		result, err := store.ListOrdersCursor(r.Context(), db, id.UserID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleGetOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id == nil {
			respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		orderID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		order, err := store.GetOrder(r.Context(), db, orderID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if err := auth.RequireOwner(id, order.BuyerID); err != nil {
			// hide orders the caller does not own
			respondError(w, http.StatusNotFound, database.ErrOrderNotFound.Error())
			return
		}

		respondJSON(w, http.StatusOK, order)
	}
}

func handleUpdateOrderStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpUpdateOrderStatus); err != nil {
			respondAuthError(w, err)
			return
		}

		orderID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		order, err := store.UpdateOrderStatus(r.Context(), db, orderID, strings.ToUpper(req.Status))
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, order)
	}
}

func handleSellerOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpViewSellerDashboard); err != nil {
			respondAuthError(w, err)
			return
		}

		orders, err := store.ListOrdersForSeller(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, orders)
	}
}

func handleCreatePayment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpCreatePayment); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			Order    int64  `json:"order"`
			Amount   string `json:"amount"`
			Provider string `json:"provider"`
			Status   string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid amount")
			return
		}

		payment, err := store.CreatePayment(r.Context(), db, store.CreatePaymentRequest{
			OrderID:  req.Order,
			UserID:   id.UserID,
			Amount:   amount,
			Provider: req.Provider,
			Status:   strings.ToUpper(req.Status),
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, payment)
	}
}

func handleListPayments(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpCreatePayment); err != nil {
			respondAuthError(w, err)
			return
		}

		payments, err := store.ListPayments(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, payments)
	}
}

func handleListNotifications(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpReadNotifications); err != nil {
			respondAuthError(w, err)
			return
		}

		notifications, err := store.ListNotifications(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, notifications)
	}
}

func handleReadNotification(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpReadNotifications); err != nil {
			respondAuthError(w, err)
			return
		}

		notificationID, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid notification ID")
			return
		}

		n, err := store.MarkNotificationRead(r.Context(), db, id.UserID, notificationID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, n)
	}
}

func handleListWishlist(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateWishlist); err != nil {
			respondAuthError(w, err)
			return
		}

		entries, err := store.ListWishlist(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, entries)
	}
}

func handleWishlistAdd(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateWishlist); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			ItemID int64 `json:"item_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		entry, created, err := store.AddToWishlist(r.Context(), db, id.UserID, req.ItemID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if !created {
			respondJSON(w, http.StatusOK, map[string]string{"message": "Item already in wishlist"})
			return
		}
		respondJSON(w, http.StatusCreated, entry)
	}
}

func handleWishlistRemove(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpMutateWishlist); err != nil {
			respondAuthError(w, err)
			return
		}

		var req struct {
			ItemID int64 `json:"item_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := store.RemoveFromWishlist(r.Context(), db, id.UserID, req.ItemID); err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Item removed"})
	}
}

func handleMarketplaceDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := store.GetMarketplaceSummary(r.Context(), db)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, summary)
	}
}

func handleAdminDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpViewAdminDashboard); err != nil {
			respondAuthError(w, err)
			return
		}

		totals, err := store.GetAdminTotals(r.Context(), db)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, totals)
	}
}

func handleSellerDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpViewSellerDashboard); err != nil {
			respondAuthError(w, err)
			return
		}

		stats, err := store.GetSellerStats(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

func handleBuyerDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if err := auth.Authorize(id, auth.OpViewBuyerDashboard); err != nil {
			respondAuthError(w, err)
			return
		}

		stats, err := store.GetBuyerStats(r.Context(), db, id.UserID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUnauthenticated) {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	respondError(w, http.StatusForbidden, err.Error())
}

// respondStoreError maps the store's error taxonomy onto status codes.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrEmptyCart),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrAddressNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrItemNotFound),
		errors.Is(err, database.ErrCartNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrPaymentNotFound),
		errors.Is(err, database.ErrNotificationNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrPaymentExists),
		errors.Is(err, database.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrOwnItem):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrForbidden):
		respondAuthError(w, err)
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
