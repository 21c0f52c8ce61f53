package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/marketplace-api/internal/pricing"
	"github.com/oakmarket/marketplace-api/internal/repository"
	"github.com/oakmarket/marketplace-api/internal/service"
)

const testSecret = "handler-test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	calc, err := pricing.NewCalculator("0.08", "15.99")
	require.NoError(t, err)

	authSvc := service.NewAuthService(store.Users(), testSecret, time.Hour)
	categorySvc := service.NewCategoryService(store.Categories(), store.Products())
	productSvc := service.NewProductService(store.Products(), store.Categories(), store.Reviews(), nil)
	cartSvc := service.NewCartService(store.Cart(), store.Products(), nil)
	orderSvc := service.NewOrderService(store.Orders(), store.Cart(), store.Products(), calc, nil, nil, nil)
	reviewSvc := service.NewReviewService(store.Reviews(), store.Products(), store.Orders(), nil, nil)

	router := NewRouter(RouterDeps{
		Auth:      NewAuthHandler(authSvc),
		Category:  NewCategoryHandler(categorySvc),
		Product:   NewProductHandler(productSvc),
		Cart:      NewCartHandler(cartSvc),
		Order:     NewOrderHandler(orderSvc),
		Review:    NewReviewHandler(reviewSvc),
		Health:    NewHealthHandler(nil, nil, nil),
		JWTSecret: testSecret,
	})
	return router, store
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func registerUser(t *testing.T, router *gin.Engine, email, role string) string {
	t.Helper()
	w, env := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":      email,
		"password":   "password123",
		"first_name": "Test",
		"last_name":  "User",
		"role":       role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp.Token
}

func TestRegisterLoginFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	token := registerUser(t, router, "ada@example.com", "")
	assert.NotEmpty(t, token)

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "ada@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "invalid credentials", env.Message)
}

func TestCartRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	w, env := doJSON(t, router, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
}

func TestShoppingFlow(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.Seed(context.Background()))

	buyer := registerUser(t, router, "buyer@example.com", "")

	// pick a product from the seeded catalog
	w, env := doJSON(t, router, http.MethodGet, "/api/v1/products?limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.NotEmpty(t, list.Products)
	productID := list.Products[0].ID

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", buyer, gin.H{
		"product_id": productID,
		"quantity":   2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/cart", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cart struct {
		Items []struct {
			Quantity int `json:"quantity"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	w, env = doJSON(t, router, http.MethodPost, "/api/v1/orders", buyer, gin.H{
		"items":          []gin.H{{"product_id": productID, "quantity": 2}},
		"payment_method": "credit_card",
		"shipping_address": gin.H{
			"street": "1 Main St", "city": "Portland", "state": "OR",
			"zip_code": "97201", "country": "US",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "pending", order.Status)

	// ordering cleared the cart
	w, env = doJSON(t, router, http.MethodGet, "/api/v1/cart", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	assert.Empty(t, cart.Items)

	// a buyer may not move order status
	w, _ = doJSON(t, router, http.MethodPut, "/api/v1/orders/"+order.ID+"/status", buyer, gin.H{
		"status": "shipped",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCategoryAdminOnly(t *testing.T) {
	router, _ := newTestRouter(t)
	buyer := registerUser(t, router, "buyer@example.com", "")

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/categories", buyer, gin.H{"name": "Gadgets"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProductValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	seller := registerUser(t, router, "seller@example.com", "seller")

	// missing required fields
	w, env := doJSON(t, router, http.MethodPost, "/api/v1/products", seller, gin.H{"name": "No price"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
