package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"fliq-backend/middleware"
	"fliq-backend/models"
	"fliq-backend/mpesa"
	"fliq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")

	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	// Limit to 1 open connection to prevent SQLite concurrent access issues
	// with in-memory databases.
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)

	// Create tables with raw SQLite-compatible SQL instead of AutoMigrate,
	// because the GORM model tags use PostgreSQL-specific defaults like
	// gen_random_uuid().
	if err := createSQLiteTables(testDB); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	os.Exit(code)
}

// freshDB returns a clean database for each test by deleting all rows.
func freshDB() *gorm.DB {
	// Delete in correct order to respect foreign keys
	testDB.Exec("DELETE FROM order_items")
	testDB.Exec("DELETE FROM orders")
	testDB.Exec("DELETE FROM cart_items")
	testDB.Exec("DELETE FROM carts")
	testDB.Exec("DELETE FROM products")
	testDB.Exec("DELETE FROM categories")
	testDB.Exec("DELETE FROM profiles")
	testDB.Exec("DELETE FROM contact_infos")
	testDB.Exec("DELETE FROM users")
	return testDB
}

func createSQLiteTables(db *gorm.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" TEXT PRIMARY KEY,
			"email" TEXT NOT NULL UNIQUE,
			"password" TEXT NOT NULL,
			"name" TEXT,
			"role" TEXT DEFAULT 'customer',
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_deleted_at ON "users"("deleted_at")`,

		`CREATE TABLE IF NOT EXISTS "contact_infos" (
			"id" TEXT PRIMARY KEY,
			"user_id" TEXT NOT NULL UNIQUE,
			"email" TEXT,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_contact_infos_user FOREIGN KEY ("user_id") REFERENCES "users"("id")
		)`,

		`CREATE TABLE IF NOT EXISTS "profiles" (
			"id" TEXT PRIMARY KEY,
			"user_id" TEXT NOT NULL UNIQUE,
			"first_name" TEXT,
			"last_name" TEXT,
			"phone" TEXT,
			"address" TEXT,
			"contact_info_id" TEXT,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_profiles_user FOREIGN KEY ("user_id") REFERENCES "users"("id")
		)`,

		`CREATE TABLE IF NOT EXISTS "categories" (
			"id" TEXT PRIMARY KEY,
			"name" TEXT NOT NULL,
			"slug" TEXT NOT NULL UNIQUE,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_deleted_at ON "categories"("deleted_at")`,

		`CREATE TABLE IF NOT EXISTS "products" (
			"id" TEXT PRIMARY KEY,
			"name" TEXT NOT NULL,
			"description" TEXT,
			"image_url" TEXT,
			"price" DECIMAL(10,2) NOT NULL,
			"category_id" TEXT NOT NULL,
			"stock" INTEGER DEFAULT 0,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME,
			CONSTRAINT fk_products_category FOREIGN KEY ("category_id") REFERENCES "categories"("id")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_deleted_at ON "products"("deleted_at")`,
		`CREATE INDEX IF NOT EXISTS idx_products_category_id ON "products"("category_id")`,

		`CREATE TABLE IF NOT EXISTS "carts" (
			"id" TEXT PRIMARY KEY,
			"user_id" TEXT NOT NULL UNIQUE,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_carts_user FOREIGN KEY ("user_id") REFERENCES "users"("id")
		)`,

		`CREATE TABLE IF NOT EXISTS "cart_items" (
			"id" TEXT PRIMARY KEY,
			"cart_id" TEXT NOT NULL,
			"product_id" TEXT NOT NULL,
			"quantity" INTEGER NOT NULL DEFAULT 1,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_cart_items_cart FOREIGN KEY ("cart_id") REFERENCES "carts"("id"),
			CONSTRAINT fk_cart_items_product FOREIGN KEY ("product_id") REFERENCES "products"("id")
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_product ON "cart_items"("cart_id","product_id")`,

		`CREATE TABLE IF NOT EXISTS "orders" (
			"id" TEXT PRIMARY KEY,
			"user_id" TEXT NOT NULL,
			"cart_id" TEXT NOT NULL,
			"contact_info_id" TEXT,
			"status" TEXT DEFAULT 'processing',
			"subtotal" DECIMAL(10,2) NOT NULL,
			"tax" DECIMAL(10,2) NOT NULL,
			"total" DECIMAL(10,2) NOT NULL,
			"phone_number" TEXT,
			"merchant_request_id" TEXT,
			"checkout_request_id" TEXT NOT NULL UNIQUE,
			"payment_result_code" INTEGER,
			"payment_result_desc" TEXT,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME,
			CONSTRAINT fk_orders_user FOREIGN KEY ("user_id") REFERENCES "users"("id")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_deleted_at ON "orders"("deleted_at")`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON "orders"("user_id")`,

		`CREATE TABLE IF NOT EXISTS "order_items" (
			"id" TEXT PRIMARY KEY,
			"order_id" TEXT NOT NULL,
			"product_id" TEXT NOT NULL,
			"product_name" TEXT,
			"unit_price" DECIMAL(10,2) NOT NULL,
			"quantity" INTEGER NOT NULL,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_order_items_order FOREIGN KEY ("order_id") REFERENCES "orders"("id"),
			CONSTRAINT fk_order_items_product FOREIGN KEY ("product_id") REFERENCES "products"("id")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON "order_items"("order_id")`,
	}

	for _, sql := range tables {
		if err := db.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// seedTestUser creates a user with contact info and profile, and returns it
// along with a valid JWT token.
func seedTestUser(db *gorm.DB, email, role string) (models.User, string) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	user := models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hashed),
		Name:     "Test User",
		Role:     role,
	}
	db.Create(&user)

	contact := models.ContactInfo{ID: uuid.New(), UserID: user.ID, Email: email}
	db.Create(&contact)
	db.Create(&models.Profile{ID: uuid.New(), UserID: user.ID, ContactInfoID: &contact.ID})

	token, _ := utils.GenerateToken(user.ID, user.Email, user.Role)
	return user, token
}

func seedCategory(db *gorm.DB, name, slug string) models.Category {
	cat := models.Category{ID: uuid.New(), Name: name, Slug: slug}
	db.Create(&cat)
	return cat
}

func seedProduct(db *gorm.DB, name string, categoryID uuid.UUID, price string, stock int) models.Product {
	prod := models.Product{
		ID:         uuid.New(),
		Name:       name,
		Price:      decimal.RequireFromString(price),
		CategoryID: categoryID,
		Stock:      stock,
	}
	db.Create(&prod)
	return prod
}

func seedCartWithItem(db *gorm.DB, userID, productID uuid.UUID, quantity int) (models.Cart, models.CartItem) {
	cart := models.Cart{ID: uuid.New(), UserID: userID}
	db.Create(&cart)
	item := models.CartItem{ID: uuid.New(), CartID: cart.ID, ProductID: productID, Quantity: quantity}
	db.Create(&item)
	return cart, item
}

// stubGateway satisfies PaymentInitiator and records what it was asked.
type stubGateway struct {
	resp       *mpesa.STKPushResponse
	err        error
	calls      int
	lastPhone  string
	lastAmount decimal.Decimal
}

func (s *stubGateway) STKPush(ctx context.Context, phone string, amount decimal.Decimal) (*mpesa.STKPushResponse, error) {
	s.calls++
	s.lastPhone = phone
	s.lastAmount = amount
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

// setupRouter wires all handlers the way routes.SetupRoutes does, with the
// gateway swapped for a stub.
func setupRouter(db *gorm.DB, gateway PaymentInitiator) *gin.Engine {
	r := gin.New()

	authHandler := &AuthHandler{DB: db}
	catalogHandler := &CatalogHandler{DB: db}
	cartHandler := &CartHandler{DB: db}
	checkoutHandler := &CheckoutHandler{DB: db, Gateway: gateway, Logger: zap.NewNop()}
	paymentHandler := &PaymentHandler{DB: db, Logger: zap.NewNop()}
	orderHandler := &OrderHandler{DB: db}

	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/products", catalogHandler.GetProducts)
	api.GET("/products/:id", catalogHandler.GetProduct)
	api.GET("/categories", catalogHandler.GetCategories)
	api.POST("/mpesa/callback", paymentHandler.MpesaCallback)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/auth/profile", authHandler.GetProfile)
	protected.PUT("/auth/profile", authHandler.UpdateProfile)
	protected.GET("/cart", cartHandler.GetCart)
	protected.POST("/cart", cartHandler.AddToCart)
	protected.PUT("/cart/items/:id", cartHandler.UpdateCartItem)
	protected.DELETE("/cart/items/:id", cartHandler.RemoveFromCart)
	protected.DELETE("/cart", cartHandler.ClearCart)
	protected.POST("/checkout", checkoutHandler.Checkout)
	protected.GET("/orders", orderHandler.GetOrders)
	protected.GET("/orders/:id", orderHandler.GetOrder)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.POST("/categories", catalogHandler.CreateCategory)
	admin.DELETE("/categories/:id", catalogHandler.DeleteCategory)
	admin.POST("/products", catalogHandler.CreateProduct)
	admin.PUT("/products/:id", catalogHandler.UpdateProduct)
	admin.DELETE("/products/:id", catalogHandler.DeleteProduct)
	admin.PUT("/orders/:id/status", orderHandler.UpdateOrderStatus)

	return r
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authRequest(method, path string, body interface{}, token string) *http.Request {
	req := jsonRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func parseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func parseResponseArray(w *httptest.ResponseRecorder) []map[string]interface{} {
	var resp []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}
