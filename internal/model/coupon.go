package model

import (
	"time"

	"github.com/google/uuid"
)

type CouponType string

const (
	CouponPercent CouponType = "percent"
	CouponFixed   CouponType = "fixed"
)

type Coupon struct {
	BaseModel
	SoftDelete
	Code              string     `gorm:"type:varchar(40);uniqueIndex;not null" json:"code" validate:"required,max=40"`
	Type              CouponType `gorm:"type:varchar(10);not null" json:"type" validate:"required,oneof=percent fixed"`
	Value             int64      `gorm:"not null" json:"value" validate:"gt=0"`
	MaxDiscountAmount int64      `gorm:"default:0" json:"max_discount_amount" validate:"gte=0"`
	MinOrderValue     int64      `gorm:"default:0" json:"min_order_value" validate:"gte=0"`
	MaxUses           int        `gorm:"default:0" json:"max_uses" validate:"gte=0"`
	UsedCount         int        `gorm:"not null;default:0" json:"used_count"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
}

// Exhausted reports whether the usage limit has been reached. MaxUses 0 means unlimited.
func (c *Coupon) Exhausted() bool {
	return c.MaxUses > 0 && c.UsedCount >= c.MaxUses
}

// CouponUsage records that a user consumed a coupon on an order; unique per (coupon, user).
type CouponUsage struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	CouponID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_user,priority:1" json:"coupon_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_user,priority:2" json:"user_id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null" json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
