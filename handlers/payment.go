package handlers

import (
	"net/http"

	"fliq-backend/models"
	"fliq-backend/mpesa"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// callbackAck is the body the gateway expects back. It is sent regardless of
// internal outcome so the gateway does not retry-storm the endpoint; internal
// failures are logged instead.
var callbackAck = gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

// MpesaCallback handles the asynchronous payment result. The endpoint is
// unauthenticated (the gateway holds no session), so the order is located
// purely by the CheckoutRequestID persisted at initiation time.
func (h *PaymentHandler) MpesaCallback(c *gin.Context) {
	var envelope mpesa.CallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.Logger.Warn("malformed payment callback payload", zap.Error(err))
		c.JSON(http.StatusOK, callbackAck)
		return
	}

	cb := envelope.Body.STKCallback
	if cb.CheckoutRequestID == "" {
		h.Logger.Warn("payment callback missing checkout request id")
		c.JSON(http.StatusOK, callbackAck)
		return
	}

	var order models.Order
	if err := h.DB.Where("checkout_request_id = ?", cb.CheckoutRequestID).First(&order).Error; err != nil {
		h.Logger.Warn("payment callback for unknown transaction",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int("result_code", cb.ResultCode))
		c.JSON(http.StatusOK, callbackAck)
		return
	}

	// Record the gateway verdict once; repeat deliveries leave the first
	// recorded result in place.
	h.DB.Model(&models.Order{}).
		Where("checkout_request_id = ? AND payment_result_code IS NULL", cb.CheckoutRequestID).
		Updates(map[string]interface{}{
			"payment_result_code": cb.ResultCode,
			"payment_result_desc": cb.ResultDesc,
		})

	if cb.ResultCode != mpesa.ResultSuccess {
		h.Logger.Info("payment declined or cancelled",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int("result_code", cb.ResultCode),
			zap.String("result_desc", cb.ResultDesc))
		c.JSON(http.StatusOK, callbackAck)
		return
	}

	// Guarded single update: only a processing order advances, so duplicate
	// deliveries apply the transition exactly once and a shipped order can
	// never revert.
	res := h.DB.Model(&models.Order{}).
		Where("checkout_request_id = ? AND status = ?", cb.CheckoutRequestID, models.OrderStatusProcessing).
		Update("status", models.OrderStatusShipped)
	if res.Error != nil {
		h.Logger.Error("failed to advance order status",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Error(res.Error))
	} else if res.RowsAffected == 0 {
		h.Logger.Info("duplicate payment callback ignored",
			zap.String("checkout_request_id", cb.CheckoutRequestID))
	} else {
		h.Logger.Info("payment confirmed, order shipped",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.String("order_id", order.ID.String()))
	}

	c.JSON(http.StatusOK, callbackAck)
}
