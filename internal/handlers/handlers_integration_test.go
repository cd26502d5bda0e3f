package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/razorpay"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testGatewaySecret = "test_gateway_secret"
	adminUsername     = "store_admin"
)

// stubGateway signs with a known secret so verification paths can be driven
// end to end without the real gateway.
type stubGateway struct{}

func (stubGateway) CreateOrder(amountMinorUnits int64, currency, receipt string) (string, error) {
	return "order_rzp_test", nil
}

func (stubGateway) VerifySignature(remoteOrderID, remotePaymentID, signature string) bool {
	return razorpay.VerifySignature(testGatewaySecret, remoteOrderID, remotePaymentID, signature)
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp() (*fiber.App, *services.AuthService, repositories.ProductRepository, error) {
	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()
	jwtSecret := viper.GetString("JWT_SECRET")

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
	}

	if err := db.AutoMigrate(&models.Product{}, &models.User{}); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Products and users live in SQLite; orders use the in-memory repository.
	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	orderRepo := repositories.NewMockOrderRepository()

	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, productRepo, userRepo, nil, nil, nil)
	paymentService := services.NewPaymentService(orderRepo, productRepo, userRepo, stubGateway{}, nil, nil)
	authService := services.NewAuthService(userRepo, jwtSecret)

	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	authHandler.RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	adminOnly := middleware.AdminRequired([]string{adminUsername})
	productHandler.RegisterRoutes(protectedRoutes)
	orderHandler.RegisterRoutes(protectedRoutes, adminOnly)
	paymentHandler.RegisterRoutes(protectedRoutes)

	return app, authService, productRepo, nil
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// registerAndLogin registers a fresh user and returns a bearer token.
// The shared-cache SQLite database survives across setupApp calls, so each
// test uses its own username.
func registerAndLogin(t *testing.T, app *fiber.App, username string) string {
	t.Helper()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"name":     "Test User",
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loginResp map[string]string
	decodeBody(t, resp, &loginResp)
	require.NotEmpty(t, loginResp["token"])
	return loginResp["token"]
}

func seedProduct(t *testing.T, repo repositories.ProductRepository, name string, price float64, stock int) *models.Product {
	t.Helper()
	product := models.Product{Name: name, Description: "Integration test item", Price: price, Stock: stock}
	require.NoError(t, repo.Create(&product))
	return &product
}

func stockOf(t *testing.T, repo repositories.ProductRepository, id string) int {
	t.Helper()
	product, err := repo.GetByID(id)
	require.NoError(t, err)
	return product.Stock
}

func TestAuthRegisterAndLogin(t *testing.T) {
	app, authService, _, err := setupApp()
	require.NoError(t, err)

	token := registerAndLogin(t, app, "authflow_user")

	claims, err := authService.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "authflow_user", claims["username"])
	assert.Contains(t, claims, "user_id")

	// Duplicate registration is rejected
	resp := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "authflow_user",
		"email":    "authflow_user@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestProductCRUD(t *testing.T) {
	app, _, _, err := setupApp()
	require.NoError(t, err)
	token := registerAndLogin(t, app, "product_admin")

	// Create
	resp := doJSON(t, app, http.MethodPost, "/api/v1/products", token, map[string]interface{}{
		"name":        "Smartphone",
		"description": "Latest model smartphone",
		"price":       799.99,
		"stock":       50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Product
	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Smartphone", created.Name)

	// Read
	resp = doJSON(t, app, http.MethodGet, "/api/v1/products/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched models.Product
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)

	// Update with a discount
	resp = doJSON(t, app, http.MethodPut, "/api/v1/products/"+created.ID, token, map[string]interface{}{
		"name":           "Smartphone Pro",
		"description":    "Latest model smartphone pro edition",
		"price":          899.99,
		"discount_price": 749.99,
		"stock":          45,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Product
	decodeBody(t, resp, &updated)
	assert.Equal(t, "Smartphone Pro", updated.Name)
	require.NotNil(t, updated.DiscountPrice)
	assert.InDelta(t, 749.99, *updated.DiscountPrice, 0.001)

	// Delete
	resp = doJSON(t, app, http.MethodDelete, "/api/v1/products/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/api/v1/products/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceAndCancelOrderFlow(t *testing.T) {
	app, _, productRepo, err := setupApp()
	require.NoError(t, err)
	token := registerAndLogin(t, app, "order_user")

	laptop := seedProduct(t, productRepo, "Flow Laptop", 1000.00, 5)
	mouse := seedProduct(t, productRepo, "Flow Mouse", 25.00, 10)

	address := map[string]string{
		"address":     "1 Test Street",
		"city":        "Testville",
		"postal_code": "12345",
		"country":     "Testland",
	}

	// Place an order for 2 laptops and 3 mice
	resp := doJSON(t, app, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": laptop.ID, "quantity": 2},
			{"product_id": mouse.ID, "quantity": 3},
		},
		"shipping_address": address,
		"payment_method":   "cod",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order models.Order
	decodeBody(t, resp, &order)
	assert.NotEmpty(t, order.ID)
	assert.Len(t, order.Items, 2)
	assert.InDelta(t, 2075.00, order.TotalAmount, 0.001)
	assert.Equal(t, models.OrderPlaced, order.OrderStatus)

	// Stock was decremented
	assert.Equal(t, 3, stockOf(t, productRepo, laptop.ID))
	assert.Equal(t, 7, stockOf(t, productRepo, mouse.ID))

	// The order shows up in the user's list
	resp = doJSON(t, app, http.MethodGet, "/api/v1/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []models.Order
	decodeBody(t, resp, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)

	// An order exceeding available stock is rejected and changes nothing
	resp = doJSON(t, app, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": laptop.ID, "quantity": 99},
		},
		"shipping_address": address,
		"payment_method":   "cod",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 3, stockOf(t, productRepo, laptop.ID))

	// Cancel the order; stock comes back
	resp = doJSON(t, app, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", token, map[string]string{
		"reason": "Changed my mind",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 5, stockOf(t, productRepo, laptop.ID))
	assert.Equal(t, 10, stockOf(t, productRepo, mouse.ID))

	// A second cancel is rejected
	resp = doJSON(t, app, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", token, map[string]string{
		"reason": "Again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestPaymentFlow(t *testing.T) {
	app, _, productRepo, err := setupApp()
	require.NoError(t, err)
	token := registerAndLogin(t, app, "payment_user")

	product := seedProduct(t, productRepo, "Payment Widget", 100.00, 5)

	address := map[string]string{
		"address":     "1 Test Street",
		"city":        "Testville",
		"postal_code": "12345",
		"country":     "Testland",
	}
	placeOrder := func() models.Order {
		resp := doJSON(t, app, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
			"items": []map[string]interface{}{
				{"product_id": product.ID, "quantity": 1},
			},
			"shipping_address": address,
			"payment_method":   "online",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var order models.Order
		decodeBody(t, resp, &order)
		return order
	}

	// --- Successful settlement ---
	order := placeOrder()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/payments/order", token, map[string]string{
		"order_id": order.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var gatewayResp map[string]interface{}
	decodeBody(t, resp, &gatewayResp)
	assert.Equal(t, "order_rzp_test", gatewayResp["razorpay_order_id"])

	sig := razorpay.Sign(testGatewaySecret, "order_rzp_test", "pay_test_1")
	resp = doJSON(t, app, http.MethodPost, "/api/v1/payments/verify", token, map[string]string{
		"order_id":            order.ID,
		"razorpay_order_id":   "order_rzp_test",
		"razorpay_payment_id": "pay_test_1",
		"razorpay_signature":  sig,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verifyResp struct {
		Order models.Order `json:"order"`
	}
	decodeBody(t, resp, &verifyResp)
	assert.Equal(t, models.PaymentPaid, verifyResp.Order.PaymentStatus)
	assert.Equal(t, 4, stockOf(t, productRepo, product.ID))

	// --- Failed settlement restocks ---
	order = placeOrder()
	require.Equal(t, 3, stockOf(t, productRepo, product.ID))

	resp = doJSON(t, app, http.MethodPost, "/api/v1/payments/order", token, map[string]string{
		"order_id": order.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/api/v1/payments/verify", token, map[string]string{
		"order_id":            order.ID,
		"razorpay_order_id":   "order_rzp_test",
		"razorpay_payment_id": "pay_test_2",
		"razorpay_signature":  "tampered-signature",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/api/v1/orders/"+order.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var failed models.Order
	decodeBody(t, resp, &failed)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
	assert.Equal(t, models.OrderCancelled, failed.OrderStatus)
	assert.Equal(t, 4, stockOf(t, productRepo, product.ID))
}

func TestOrderStatusIsAdminOnly(t *testing.T) {
	app, _, productRepo, err := setupApp()
	require.NoError(t, err)
	userToken := registerAndLogin(t, app, "status_user")
	adminToken := registerAndLogin(t, app, adminUsername)

	product := seedProduct(t, productRepo, "Status Widget", 10.00, 5)
	resp := doJSON(t, app, http.MethodPost, "/api/v1/orders", userToken, map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": product.ID, "quantity": 1},
		},
		"shipping_address": map[string]string{
			"address":     "1 Test Street",
			"city":        "Testville",
			"postal_code": "12345",
			"country":     "Testland",
		},
		"payment_method": "cod",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order models.Order
	decodeBody(t, resp, &order)

	// The order's owner is not a store operator
	resp = doJSON(t, app, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", userToken, map[string]string{
		"status": "shipped",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", adminToken, map[string]string{
		"status": "shipped",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/api/v1/orders/"+order.ID, userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var shipped models.Order
	decodeBody(t, resp, &shipped)
	assert.Equal(t, models.OrderShipped, shipped.OrderStatus)
}

func TestEndpointsWithoutAuth(t *testing.T) {
	app, _, _, err := setupApp()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/api/v1/orders", "", map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": "x", "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
