package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxIn     TransactionType = "IN"
	TxOut    TransactionType = "OUT"
	TxAdjust TransactionType = "ADJUST"
)

type TransactionReason string

const (
	ReasonRestock    TransactionReason = "restock"
	ReasonManual     TransactionReason = "manual"
	ReasonSale       TransactionReason = "sale"
	ReasonReturn     TransactionReason = "return"
	ReasonExchange   TransactionReason = "exchange"
	ReasonDamage     TransactionReason = "damage"
	ReasonLost       TransactionReason = "lost"
	ReasonAdjustment TransactionReason = "adjustment"
	ReasonOther      TransactionReason = "other"
)

// Reference types stored on ledger rows.
const (
	RefOrder         = "order"
	RefReturnRequest = "return_request"
	RefManual        = "manual"
)

// InventoryItem is the stock record of one sellable unit (product, variant, size).
// Quantity changes only through InventoryTransaction application.
type InventoryItem struct {
	BaseModel
	ProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_unit,priority:1" json:"product_id" validate:"uuid_required"`
	VariantID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_unit,priority:2" json:"variant_id" validate:"uuid_required"`
	Size        string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_inventory_unit,priority:3" json:"size" validate:"required"`
	SKU         string    `gorm:"type:varchar(64);index" json:"sku"`
	ProductName string    `gorm:"type:varchar(255)" json:"product_name" validate:"required"`

	Quantity          int     `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	CostPrice         int64   `gorm:"default:0" json:"cost_price" validate:"gte=0"`
	AverageCostPrice  int64   `gorm:"default:0" json:"average_cost_price"`
	SellingPrice      int64   `gorm:"default:0" json:"selling_price" validate:"gte=0"`
	DiscountPercent   float64 `gorm:"default:0" json:"discount_percent" validate:"gte=0,lte=100"`
	FinalPrice        int64   `gorm:"default:0" json:"final_price"`
	LowStockThreshold int     `gorm:"default:5" json:"low_stock_threshold" validate:"gte=0"`

	// Version is bumped on every write; conditional updates compare against it.
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// RecalculatePrice derives FinalPrice = SellingPrice * (1 - DiscountPercent/100), rounded to whole units.
func (i *InventoryItem) RecalculatePrice() {
	selling := decimal.NewFromInt(i.SellingPrice)
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(i.DiscountPercent).Div(decimal.NewFromInt(100)))
	i.FinalPrice = selling.Mul(factor).Round(0).IntPart()
}

// IsLowStock reports whether the on-hand quantity is at or under the threshold.
func (i *InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.LowStockThreshold
}

// InventoryTransaction is an append-only audit row of one stock mutation.
// QuantityAfter equals the item quantity committed together with it.
type InventoryTransaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primary_key;" json:"id"`
	InventoryItemID uuid.UUID         `gorm:"type:uuid;not null;index:idx_inventory_tx_subject,priority:1" json:"inventory_item_id"`
	Type            TransactionType   `gorm:"type:varchar(10);not null" json:"type"`
	QuantityBefore  int               `gorm:"not null" json:"quantity_before"`
	QuantityChange  int               `gorm:"not null" json:"quantity_change"`
	QuantityAfter   int               `gorm:"not null" json:"quantity_after"`
	Reason          TransactionReason `gorm:"type:varchar(20);not null" json:"reason"`
	Reference       string            `gorm:"type:varchar(64);index" json:"reference,omitempty"`
	ReferenceType   string            `gorm:"type:varchar(20)" json:"reference_type,omitempty"`
	UnitCost        int64             `gorm:"default:0" json:"unit_cost,omitempty"`
	Note            string            `json:"note,omitempty"`
	IdempotencyKey  *string           `gorm:"type:varchar(160);uniqueIndex" json:"idempotency_key,omitempty"`
	PerformedBy     string            `gorm:"type:varchar(255)" json:"performed_by"`
	CreatedAt       time.Time         `gorm:"index:idx_inventory_tx_subject,priority:2" json:"created_at"`
	// Seq is drawn after the item row is locked, so it follows commit order per item.
	Seq             int64             `gorm:"autoIncrement;not null;index" json:"-"`
}

// Reconciles reports whether the before/change/after snapshot is self consistent.
func (t *InventoryTransaction) Reconciles() bool {
	return t.QuantityBefore+t.QuantityChange == t.QuantityAfter && t.QuantityAfter >= 0
}
