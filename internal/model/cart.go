package model

import (
	"time"

	"github.com/google/uuid"
)

type CartItem struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_item,priority:1" json:"user_id"`
	InventoryItemID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_item,priority:2" json:"inventory_item_id" validate:"uuid_required"`
	Quantity        int       `gorm:"not null" json:"quantity" validate:"required,gt=0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
