package model

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipping  OrderStatus = "shipping"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCOD   PaymentMethod = "COD"
	PaymentVNPay PaymentMethod = "VNPAY"
)

// AddressSnapshot is copied onto the order at checkout, later edits to the address book do not leak in.
type AddressSnapshot struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Ward          string `json:"ward"`
	District      string `json:"district"`
	City          string `json:"city"`
}

type Order struct {
	BaseModel
	OrderCode     string        `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_code"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Status        OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(10);not null" json:"payment_method"`
	OrderItems    []OrderItem   `gorm:"foreignKey:OrderID" json:"order_items"`

	SubTotal                      int64 `gorm:"not null" json:"sub_total"`
	Discount                      int64 `gorm:"not null;default:0" json:"discount"`
	ShippingFee                   int64 `gorm:"not null;default:0" json:"shipping_fee"`
	TotalAfterDiscountAndShipping int64 `gorm:"not null" json:"total_after_discount_and_shipping"`

	CouponID   *uuid.UUID `gorm:"type:uuid" json:"coupon_id,omitempty"`
	CouponCode string     `gorm:"type:varchar(40)" json:"coupon_code,omitempty"`

	ShippingAddress AddressSnapshot `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	Note            string          `json:"note,omitempty"`

	PaymentTransactionID string `gorm:"type:varchar(64)" json:"payment_transaction_id,omitempty"`

	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt    *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`

	// InventoryRestored is set once every line has been restocked after cancellation.
	InventoryRestored bool  `gorm:"not null;default:false" json:"inventory_restored"`
	Version           int64 `gorm:"not null;default:0" json:"version"`
}

// ComputeTotal returns subTotal - discount + shippingFee.
func (o *Order) ComputeTotal() int64 {
	return o.SubTotal - o.Discount + o.ShippingFee
}

// Item returns the line matching the sellable unit, if present.
func (o *Order) Item(productID, variantID uuid.UUID, size string) (OrderItem, bool) {
	for _, it := range o.OrderItems {
		if it.ProductID == productID && it.VariantID == variantID && it.Size == size {
			return it, true
		}
	}
	return OrderItem{}, false
}

type OrderItem struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	InventoryItemID uuid.UUID `gorm:"type:uuid;not null" json:"inventory_item_id"`
	ProductID       uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	VariantID       uuid.UUID `gorm:"type:uuid;not null" json:"variant_id"`
	Size            string    `gorm:"type:varchar(20);not null" json:"size"`
	ProductName     string    `json:"product_name"`
	SKU             string    `json:"sku"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	PriceAtPurchase int64     `gorm:"not null" json:"price_at_purchase"`
}

// LineTotal returns PriceAtPurchase * Quantity.
func (i OrderItem) LineTotal() int64 {
	return i.PriceAtPurchase * int64(i.Quantity)
}
