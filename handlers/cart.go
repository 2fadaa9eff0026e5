package handlers

import (
	"net/http"

	"fliq-backend/models"
	"fliq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartHandler struct {
	DB *gorm.DB
}

// cartResponse carries the persisted cart plus the derived money fields,
// which are computed on every read and never stored.
func cartResponse(cart models.Cart) gin.H {
	subtotal, tax, total := models.CartTotals(cart.Items)
	return gin.H{
		"id":         cart.ID,
		"items":      cart.Items,
		"subtotal":   subtotal,
		"tax":        tax,
		"total":      total,
		"created_at": cart.CreatedAt,
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var cart models.Cart
	err := h.DB.Preload("Items").Preload("Items.Product").Preload("Items.Product.Category").
		Where("user_id = ?", userID).First(&cart).Error
	if err != nil {
		// No cart yet is not an error: the customer simply has an empty one.
		c.JSON(http.StatusOK, cartResponse(models.Cart{}))
		return
	}

	c.JSON(http.StatusOK, cartResponse(cart))
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		ProductID uuid.UUID `json:"product_id" binding:"required"`
		Quantity  int       `json:"quantity" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	var product models.Product
	if err := h.DB.Where("id = ?", req.ProductID).First(&product).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	if product.Stock < req.Quantity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock"})
		return
	}

	// Get-or-create of the cart and the line item run under row locks inside
	// one transaction so two concurrent adds merge instead of losing an
	// increment.
	var cartItem models.CartItem
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&cart).Error
		if err != nil {
			cart = models.Cart{ID: uuid.New(), UserID: userID.(uuid.UUID)}
			if err := tx.Create(&cart).Error; err != nil {
				return err
			}
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND product_id = ?", cart.ID, req.ProductID).
			First(&cartItem).Error
		if err == nil {
			cartItem.Quantity += req.Quantity
			if cartItem.Quantity > product.Stock {
				cartItem.Quantity = product.Stock
			}
			return tx.Save(&cartItem).Error
		}

		cartItem = models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		}
		return tx.Create(&cartItem).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add item to cart"})
		return
	}

	h.DB.Preload("Product").Preload("Product.Category").First(&cartItem, cartItem.ID)
	c.JSON(http.StatusOK, cartItem)
}

func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")
	var req struct {
		Quantity int `json:"quantity" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	// Joining through carts scopes the lookup to the caller: an item in
	// somebody else's cart is a 404, never a silent success.
	var cartItem models.CartItem
	err := h.DB.Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", id, userID).
		First(&cartItem).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
		return
	}

	var product models.Product
	if err := h.DB.Where("id = ?", cartItem.ProductID).First(&product).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if product.Stock < req.Quantity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock"})
		return
	}

	cartItem.Quantity = req.Quantity
	if err := h.DB.Save(&cartItem).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart item"})
		return
	}

	h.DB.Preload("Product").Preload("Product.Category").First(&cartItem, cartItem.ID)
	c.JSON(http.StatusOK, cartItem)
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")

	var cartItem models.CartItem
	err := h.DB.Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", id, userID).
		First(&cartItem).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
		return
	}

	if err := h.DB.Delete(&cartItem).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove item from cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
		return
	}

	if err := h.DB.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}
