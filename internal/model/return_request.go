package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "RETURN"
	ReturnTypeExchange ReturnType = "EXCHANGE"
)

type RefundMethod string

const (
	RefundOriginalPayment RefundMethod = "original_payment"
	RefundStoreCredit     RefundMethod = "store_credit"
	RefundBankTransfer    RefundMethod = "bank_transfer"
)

type ReturnStatus string

const (
	ReturnPending    ReturnStatus = "pending"
	ReturnApproved   ReturnStatus = "approved"
	ReturnProcessing ReturnStatus = "processing"
	ReturnCompleted  ReturnStatus = "completed"
	ReturnRejected   ReturnStatus = "rejected"
	ReturnCanceled   ReturnStatus = "canceled"
)

// IsActive reports whether the status still holds the line item claims.
func (s ReturnStatus) IsActive() bool {
	return s == ReturnPending || s == ReturnApproved || s == ReturnProcessing
}

type ReturnRequest struct {
	BaseModel
	OrderID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"order_id"`
	CustomerID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"customer_id"`
	Type         ReturnType   `gorm:"type:varchar(10);not null" json:"type"`
	Items        []ReturnItem `gorm:"foreignKey:ReturnRequestID" json:"items"`
	Reason       string       `gorm:"type:text" json:"reason"`
	RefundMethod RefundMethod `gorm:"type:varchar(20)" json:"refund_method"`
	RefundAmount int64        `gorm:"default:0" json:"refund_amount"`
	Status       ReturnStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	ProcessedBy     string     `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
	AdminNote       string     `gorm:"type:text" json:"admin_note,omitempty"`
	// ExchangeSagaID is the saga that owns the stock moves of an exchange. A new attempt may take it
	// over only once that saga is compensated.
	ExchangeSagaID *uuid.UUID `gorm:"type:uuid" json:"exchange_saga_id,omitempty"`

	Version int64 `gorm:"not null;default:0" json:"version"`
}

// ClaimKeys lists the (order, product, variant, size) keys this request holds while active.
func (r *ReturnRequest) ClaimKeys() []string {
	keys := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		keys = append(keys, ReturnClaimKey(r.OrderID, it.ProductID, it.VariantID, it.Size))
	}
	return keys
}

type ReturnItem struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ReturnRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"return_request_id"`
	InventoryItemID uuid.UUID `gorm:"type:uuid;not null" json:"inventory_item_id"`
	ProductID       uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	VariantID       uuid.UUID `gorm:"type:uuid;not null" json:"variant_id"`
	Size            string    `gorm:"type:varchar(20);not null" json:"size"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	PriceAtPurchase int64     `gorm:"not null" json:"price_at_purchase"`

	ExchangeToVariantID       *uuid.UUID `gorm:"type:uuid" json:"exchange_to_variant,omitempty"`
	ExchangeToSize            string     `gorm:"type:varchar(20)" json:"exchange_to_size,omitempty"`
	ExchangeToInventoryItemID *uuid.UUID `gorm:"type:uuid" json:"exchange_to_inventory_item_id,omitempty"`
}

// ReturnClaim reserves one order line for a single active return request.
type ReturnClaim struct {
	Key             string    `gorm:"type:varchar(160);primary_key" json:"key"`
	ReturnRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"return_request_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func ReturnClaimKey(orderID, productID, variantID uuid.UUID, size string) string {
	return fmt.Sprintf("%s:%s:%s:%s", orderID, productID, variantID, size)
}
