package model

import "github.com/google/uuid"

type Address struct {
	BaseModel
	SoftDelete
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	RecipientName string    `json:"recipient_name" validate:"required"`
	Phone         string    `gorm:"type:varchar(20)" json:"phone" validate:"required"`
	Line1         string    `json:"line1" validate:"required"`
	Ward          string    `json:"ward"`
	District      string    `json:"district"`
	City          string    `json:"city" validate:"required"`
	IsDefault     bool      `json:"is_default"`
}

// Snapshot copies the address fields for embedding into an order.
func (a *Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		RecipientName: a.RecipientName,
		Phone:         a.Phone,
		Line1:         a.Line1,
		Ward:          a.Ward,
		District:      a.District,
		City:          a.City,
	}
}
