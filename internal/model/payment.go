package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentNotification is one verified gateway callback; DedupeKey is unique.
type PaymentNotification struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primary_key;" json:"id"`
	OrderID              uuid.UUID         `gorm:"type:uuid;not null;index" json:"order_id"`
	DedupeKey            string            `gorm:"type:varchar(200);uniqueIndex;not null" json:"-"`
	GatewayTransactionID string            `gorm:"type:varchar(64);index;not null" json:"gateway_transaction_id"`
	Success              bool              `json:"success"`
	Amount               int64             `json:"amount"`
	ResponseCode         string            `gorm:"type:varchar(10)" json:"response_code"`
	Params               map[string]string `gorm:"serializer:json" json:"params"`
	CreatedAt            time.Time         `json:"created_at"`
}
