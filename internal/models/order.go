package models

import "time"

// Payment methods.
const (
	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"
)

// Payment statuses.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Order statuses.
const (
	OrderPlaced    = "placed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// OrderItem represents a single line within an order. Unit prices are
// snapshotted at placement time and never recomputed from the catalog.
type OrderItem struct {
	ID             uint    `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID        string  `json:"-" gorm:"index;type:varchar(36)"`
	ProductID      string  `json:"product_id" gorm:"type:varchar(36)"`
	Quantity       int     `json:"quantity"`
	Price          float64 `json:"price"`           // List unit price at time of order
	EffectivePrice float64 `json:"effective_price"` // Discount-adjusted unit price at time of order
}

// ShippingAddress is the destination recorded on an order.
type ShippingAddress struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// Order represents a customer order.
type Order struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string          `json:"user_id" gorm:"index;type:varchar(36)"`
	Items             []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress   ShippingAddress `json:"shipping_address" gorm:"embedded;embeddedPrefix:ship_"`
	Subtotal          float64         `json:"subtotal"`
	TotalAmount       float64         `json:"total_amount"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     string          `json:"payment_status"`
	OrderStatus       string          `json:"order_status"`
	IsCancelled       bool            `json:"is_cancelled"`
	IsDelivered       bool            `json:"is_delivered"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	RazorpayOrderID   string          `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string          `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string          `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
