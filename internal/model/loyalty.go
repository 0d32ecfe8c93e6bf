package model

import (
	"time"

	"github.com/google/uuid"
)

type LoyaltyTxType string

const (
	LoyaltyEarn   LoyaltyTxType = "EARN"
	LoyaltyRedeem LoyaltyTxType = "REDEEM"
	LoyaltyExpire LoyaltyTxType = "EXPIRE"
	LoyaltyAdjust LoyaltyTxType = "ADJUST"
)

type LoyaltySource string

const (
	LoyaltySourceOrder  LoyaltySource = "ORDER"
	LoyaltySourceManual LoyaltySource = "MANUAL"
)

// LoyaltyAccount holds the derived point balance of one user.
type LoyaltyAccount struct {
	UserID    uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoyaltyTransaction is the append-only point ledger row, same shape as the inventory ledger.
type LoyaltyTransaction struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;" json:"id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index:idx_loyalty_tx_subject,priority:1" json:"user_id"`
	Type           LoyaltyTxType `gorm:"type:varchar(10);not null" json:"type"`
	Points         int64         `gorm:"not null" json:"points"`
	BalanceBefore  int64         `gorm:"not null" json:"balance_before"`
	BalanceAfter   int64         `gorm:"not null" json:"balance_after"`
	// Remaining is what is left of a credit after deductions drew on it. Always 0 on debits.
	Remaining      int64         `gorm:"not null;default:0" json:"remaining"`
	Source         LoyaltySource `gorm:"type:varchar(10);not null" json:"source"`
	Reference      string        `gorm:"type:varchar(64);index" json:"reference,omitempty"`
	ExpiresAt      *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	IdempotencyKey *string       `gorm:"type:varchar(160);uniqueIndex" json:"idempotency_key,omitempty"`
	Note           string        `json:"note,omitempty"`
	PerformedBy    string        `json:"performed_by"`
	CreatedAt      time.Time     `gorm:"index:idx_loyalty_tx_subject,priority:2" json:"created_at"`
	// Seq is drawn after the account row is locked, so it follows commit order per user.
	Seq            int64         `gorm:"autoIncrement;not null;index" json:"-"`
}

// IsCredit reports whether the row added points that later deductions can draw on.
func (t *LoyaltyTransaction) IsCredit() bool {
	return t.Points > 0 && (t.Type == LoyaltyEarn || t.Type == LoyaltyAdjust)
}
