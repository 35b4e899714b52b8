package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/safar/go-order-backend/internal/auth"
	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/orders"
	"github.com/safar/go-order-backend/internal/store"
	"github.com/shopspring/decimal"
)

func handleLogin(authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "Both email and password are required")
			return
		}

		userID, err := authService.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				respondError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			respondInternalError(w, err)
			return
		}

		pair, err := authService.IssueTokens(r.Context(), userID)
		if err != nil {
			respondInternalError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, pair)
	}
}

func handleRefreshToken(authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.RefreshToken == "" {
			respondError(w, http.StatusBadRequest, "Refresh token is required")
			return
		}

		pair, err := authService.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				respondError(w, http.StatusUnauthorized, "Invalid refresh token")
				return
			}
			respondInternalError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, pair)
	}
}

func handleLogout(authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "Token is required")
			return
		}

		if err := authService.Logout(r.Context(), token); err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				respondError(w, http.StatusUnauthorized, "Token is invalid or expired")
				return
			}
			respondInternalError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, messageResponse{"Logged out successfully"})
	}
}

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func toLineRequests(items []orderItemRequest) []orders.LineRequest {
	lines := make([]orders.LineRequest, 0, len(items))
	for _, item := range items {
		lines = append(lines, orders.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func handleOrders(engine *orders.Engine, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := authorize(w, r, authService)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Items []orderItemRequest `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			order, err := engine.CreateOrder(r.Context(), ownerID, toLineRequests(req.Items))
			if err != nil {
				respondOrderError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			list, err := engine.ListOrders(r.Context(), ownerID)
			if err != nil {
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, list)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(engine *orders.Engine, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := authorize(w, r, authService)
		if !ok {
			return
		}

		orderID, err := pathID(r.URL.Path, "/orders/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			order, err := engine.GetOwnedOrder(r.Context(), ownerID, orderID)
			if err != nil {
				respondOrderError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, order)

		case http.MethodPut:
			var req struct {
				Items *[]orderItemRequest `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var lines *[]orders.LineRequest
			if req.Items != nil {
				converted := toLineRequests(*req.Items)
				lines = &converted
			}

			order, err := engine.ReplaceOrderLines(r.Context(), ownerID, orderID, lines)
			if err != nil {
				respondOrderError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, order)

		case http.MethodDelete:
			deleted, err := engine.DeleteOrder(r.Context(), ownerID, orderID)
			if err != nil {
				respondInternalError(w, err)
				return
			}
			if !deleted {
				respondError(w, http.StatusNotFound, "Order not found")
				return
			}

			respondJSON(w, http.StatusOK, messageResponse{"Order deleted"})

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProducts(products *store.Products, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if _, ok := authorize(w, r, authService); !ok {
				return
			}

			var req struct {
				Name        string  `json:"name"`
				Description string  `json:"description"`
				Price       float64 `json:"price"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			if req.Name == "" {
				respondError(w, http.StatusBadRequest, "Product name is required")
				return
			}
			if req.Price <= 0 {
				respondError(w, http.StatusBadRequest, "Price must be positive")
				return
			}

			product, err := products.Create(r.Context(), req.Name, req.Description, decimal.NewFromFloat(req.Price))
			if err != nil {
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			list, err := products.List(r.Context(), r.URL.Query().Get("name"))
			if err != nil {
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, list)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(products *store.Products, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathID(r.URL.Path, "/products/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := products.Get(r.Context(), productID)
			if err != nil {
				if errors.Is(err, database.ErrProductNotFound) {
					respondError(w, http.StatusNotFound, "Product not found")
					return
				}
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, product)

		case http.MethodPut:
			if _, ok := authorize(w, r, authService); !ok {
				return
			}

			var req struct {
				Name        *string  `json:"name"`
				Description *string  `json:"description"`
				Price       *float64 `json:"price"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var price *decimal.Decimal
			if req.Price != nil {
				p := decimal.NewFromFloat(*req.Price)
				price = &p
			}

			updated, err := products.Update(r.Context(), productID, req.Name, req.Description, price)
			if err != nil {
				respondInternalError(w, err)
				return
			}
			if !updated {
				respondError(w, http.StatusNotFound, "Product not found")
				return
			}

			respondJSON(w, http.StatusOK, messageResponse{"Product updated"})

		case http.MethodDelete:
			if _, ok := authorize(w, r, authService); !ok {
				return
			}

			deleted, err := products.Delete(r.Context(), productID)
			if err != nil {
				respondInternalError(w, err)
				return
			}
			if !deleted {
				respondError(w, http.StatusNotFound, "Product not found")
				return
			}

			respondJSON(w, http.StatusOK, messageResponse{"Product deleted"})

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleUsers(users *store.Users, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name     string `json:"name"`
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			if req.Name == "" || req.Email == "" || req.Password == "" {
				respondError(w, http.StatusBadRequest, "Name, email and password are required")
				return
			}

			hash, err := authService.HashPassword(req.Password)
			if err != nil {
				respondInternalError(w, err)
				return
			}

			user, err := users.Create(r.Context(), req.Name, req.Email, hash)
			if err != nil {
				if errors.Is(err, database.ErrEmailTaken) {
					respondError(w, http.StatusConflict, "User with this email already exists")
					return
				}
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, user)

		case http.MethodGet:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if page < 1 {
				page = 1
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 10
			}

			list, err := users.List(r.Context(), limit, (page-1)*limit)
			if err != nil {
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, list)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleUserByID(users *store.Users, authService *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r.URL.Path, "/users/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			user, err := users.Get(r.Context(), userID)
			if err != nil {
				if errors.Is(err, database.ErrUserNotFound) {
					respondError(w, http.StatusNotFound, "User not found")
					return
				}
				respondInternalError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, user)

		case http.MethodPut:
			if _, ok := authorize(w, r, authService); !ok {
				return
			}

			var req struct {
				Name  *string `json:"name"`
				Email *string `json:"email"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			updated, err := users.Update(r.Context(), userID, req.Name, req.Email)
			if err != nil {
				if errors.Is(err, database.ErrEmailTaken) {
					respondError(w, http.StatusConflict, "User with this email already exists")
					return
				}
				respondInternalError(w, err)
				return
			}
			if !updated {
				respondError(w, http.StatusNotFound, "User not found")
				return
			}

			respondJSON(w, http.StatusOK, messageResponse{"User updated"})

		case http.MethodDelete:
			if _, ok := authorize(w, r, authService); !ok {
				return
			}

			deleted, err := users.Delete(r.Context(), userID)
			if err != nil {
				respondInternalError(w, err)
				return
			}
			if !deleted {
				respondError(w, http.StatusNotFound, "User not found")
				return
			}

			respondJSON(w, http.StatusOK, messageResponse{"User deleted"})

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// authorize resolves the bearer token to an authenticated user id, replying
// 401 itself when the token is missing or invalid.
func authorize(w http.ResponseWriter, r *http.Request, authService *auth.Service) (int64, bool) {
	token, ok := bearerToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return 0, false
	}

	userID, err := authService.VerifyAccess(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			respondError(w, http.StatusUnauthorized, "Token is invalid or expired")
			return 0, false
		}
		respondInternalError(w, err)
		return 0, false
	}

	return userID, true
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

func pathID(path, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
}

func respondOrderError(w http.ResponseWriter, err error) {
	var unknown *orders.UnknownProductError
	switch {
	case errors.Is(err, orders.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, "Order must contain items")
	case errors.As(err, &unknown):
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Products not found: %v", unknown.ProductIDs))
	case errors.Is(err, orders.ErrNotFound):
		respondError(w, http.StatusNotFound, "Order not found")
	default:
		respondInternalError(w, err)
	}
}

func respondInternalError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("request failed")
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
