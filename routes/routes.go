package routes

import (
	"fliq-backend/handlers"
	"fliq-backend/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func SetupRoutes(r *gin.Engine, db *gorm.DB, gateway handlers.PaymentInitiator, logger *zap.Logger) {
	// Initialize handlers
	authHandler := &handlers.AuthHandler{DB: db}
	catalogHandler := &handlers.CatalogHandler{DB: db}
	cartHandler := &handlers.CartHandler{DB: db}
	checkoutHandler := &handlers.CheckoutHandler{DB: db, Gateway: gateway, Logger: logger}
	paymentHandler := &handlers.PaymentHandler{DB: db, Logger: logger}
	orderHandler := &handlers.OrderHandler{DB: db}

	// Public routes
	api := r.Group("/api")
	{
		// Auth routes
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		// Public catalog routes
		api.GET("/products", catalogHandler.GetProducts)
		api.GET("/products/:id", catalogHandler.GetProduct)
		api.GET("/categories", catalogHandler.GetCategories)

		// Payment gateway callback: unauthenticated by necessity, the
		// gateway cannot present user credentials.
		api.POST("/mpesa/callback", paymentHandler.MpesaCallback)
	}

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		// Profile
		protected.GET("/auth/profile", authHandler.GetProfile)
		protected.PUT("/auth/profile", authHandler.UpdateProfile)

		// Cart routes
		protected.GET("/cart", cartHandler.GetCart)
		protected.POST("/cart", cartHandler.AddToCart)
		protected.PUT("/cart/items/:id", cartHandler.UpdateCartItem)
		protected.DELETE("/cart/items/:id", cartHandler.RemoveFromCart)
		protected.DELETE("/cart", cartHandler.ClearCart)

		// Checkout and orders
		protected.POST("/checkout", checkoutHandler.Checkout)
		protected.GET("/orders", orderHandler.GetOrders)
		protected.GET("/orders/:id", orderHandler.GetOrder)
	}

	// Admin routes (require admin role)
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/categories", catalogHandler.CreateCategory)
		admin.DELETE("/categories/:id", catalogHandler.DeleteCategory)

		admin.POST("/products", catalogHandler.CreateProduct)
		admin.PUT("/products/:id", catalogHandler.UpdateProduct)
		admin.DELETE("/products/:id", catalogHandler.DeleteProduct)

		admin.PUT("/orders/:id/status", orderHandler.UpdateOrderStatus)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
