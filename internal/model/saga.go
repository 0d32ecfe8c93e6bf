package model

import "time"

type SagaKind string

const (
	SagaCheckout SagaKind = "checkout"
	SagaExchange SagaKind = "exchange"
)

type SagaStatus string

const (
	SagaStarted     SagaStatus = "started"
	SagaCompleted   SagaStatus = "completed"
	SagaCompensated SagaStatus = "compensated"
)

// SagaStep is one planned ledger mutation. Key is the idempotency key it is applied with.
type SagaStep struct {
	Key             string            `json:"key"`
	InventoryItemID string            `json:"inventory_item_id"`
	Type            TransactionType   `json:"type"`
	Reason          TransactionReason `json:"reason"`
	QuantityChange  int               `json:"quantity_change"`
	Label           string            `json:"label,omitempty"`
}

// Saga records a multi-document inventory move so that a crash part-way can be found and reconciled.
type Saga struct {
	BaseModel
	Kind          SagaKind   `gorm:"type:varchar(20);not null" json:"kind"`
	Reference     string     `gorm:"type:varchar(64);not null;index" json:"reference"`
	ReferenceType string     `gorm:"type:varchar(20)" json:"reference_type"`
	Status        SagaStatus `gorm:"type:varchar(20);not null;index:idx_saga_status_created,priority:1" json:"status"`
	Steps         []SagaStep `gorm:"serializer:json" json:"steps"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`
	StartedAt     time.Time  `gorm:"index:idx_saga_status_created,priority:2" json:"started_at"`
}
