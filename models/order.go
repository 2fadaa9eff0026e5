package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// Order is created at payment initiation with status processing. The
// CheckoutRequestID returned by the STK push correlates the gateway callback
// back to this exact order.
type Order struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User              User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CartID            uuid.UUID       `gorm:"type:uuid;not null" json:"cart_id"`
	ContactInfoID     *uuid.UUID      `gorm:"type:uuid" json:"contact_info_id,omitempty"`
	ContactInfo       *ContactInfo    `gorm:"foreignKey:ContactInfoID" json:"contact_info,omitempty"`
	Status            OrderStatus     `gorm:"default:processing" json:"status"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax               decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"tax"`
	Total             decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	PhoneNumber       string          `json:"phone_number"`
	MerchantRequestID string          `json:"merchant_request_id"`
	CheckoutRequestID string          `gorm:"uniqueIndex;not null" json:"checkout_request_id"`
	PaymentResultCode *int            `json:"payment_result_code,omitempty"`
	PaymentResultDesc string          `json:"payment_result_desc,omitempty"`
	Items             []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

// OrderItem snapshots a cart line at checkout time so later catalog edits
// cannot change what the customer paid for.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Order       Order           `gorm:"foreignKey:OrderID" json:"-"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product     Product         `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (oi *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}

// AllowedTransitions defines the valid order status state machine. Status only
// moves forward; there is no path back from shipped or delivered.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to OrderStatus) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
