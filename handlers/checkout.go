package handlers

import (
	"context"
	"net/http"

	"fliq-backend/models"
	"fliq-backend/mpesa"
	"fliq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentInitiator is the slice of the gateway client checkout needs; tests
// substitute a stub.
type PaymentInitiator interface {
	STKPush(ctx context.Context, phone string, amount decimal.Decimal) (*mpesa.STKPushResponse, error)
}

type CheckoutHandler struct {
	DB      *gorm.DB
	Gateway PaymentInitiator
	Logger  *zap.Logger
}

// Checkout persists the submitted contact details, asks the gateway to prompt
// the customer's phone for the cart total, and on success records the order in
// processing state keyed by the gateway's CheckoutRequestID. The database
// transaction is never held open across the gateway call: a failed push
// leaves no order behind and the cart untouched.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
		Address     string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	var cart models.Cart
	err := h.DB.Preload("Items").Preload("Items.Product").
		Where("user_id = ?", userID).First(&cart).Error
	if err != nil || len(cart.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		return
	}

	var profile models.Profile
	if err := h.DB.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	profile.Phone = req.PhoneNumber
	profile.Address = req.Address
	if err := h.DB.Save(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contact details"})
		return
	}

	subtotal, tax, total := models.CartTotals(cart.Items)

	push, err := h.Gateway.STKPush(c.Request.Context(), req.PhoneNumber, total)
	if err != nil {
		h.Logger.Error("payment initiation failed",
			zap.String("user_id", cart.UserID.String()),
			zap.String("phone", req.PhoneNumber),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be initiated. Please try again."})
		return
	}

	order := models.Order{
		UserID:            cart.UserID,
		CartID:            cart.ID,
		ContactInfoID:     profile.ContactInfoID,
		Status:            models.OrderStatusProcessing,
		Subtotal:          subtotal,
		Tax:               tax,
		Total:             total,
		PhoneNumber:       req.PhoneNumber,
		MerchantRequestID: push.MerchantRequestID,
		CheckoutRequestID: push.CheckoutRequestID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, item := range cart.Items {
			orderItem := models.OrderItem{
				OrderID:     order.ID,
				ProductID:   item.ProductID,
				ProductName: item.Product.Name,
				UnitPrice:   item.Product.Price,
				Quantity:    item.Quantity,
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return err
			}
		}

		// The cart is archived into the order; a fresh one is created
		// lazily on the next add.
		return tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		h.Logger.Error("failed to record order after successful push",
			zap.String("checkout_request_id", push.CheckoutRequestID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	h.DB.Preload("Items").First(&order, order.ID)

	c.JSON(http.StatusCreated, gin.H{
		"order":            order,
		"customer_message": push.CustomerMessage,
	})
}
