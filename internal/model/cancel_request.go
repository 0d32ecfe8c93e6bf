package model

import (
	"time"

	"github.com/google/uuid"
)

type CancelRequestStatus string

const (
	CancelPending  CancelRequestStatus = "pending"
	CancelApproved CancelRequestStatus = "approved"
	CancelRejected CancelRequestStatus = "rejected"
)

// CancelRequest is a customer's request to cancel an order that has not shipped yet.
type CancelRequest struct {
	BaseModel
	OrderID       uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_cancel_pending_order,where:status = 'pending'" json:"order_id"`
	RequestedBy   uuid.UUID           `gorm:"type:uuid;not null" json:"requested_by"`
	Reason        string              `gorm:"type:text" json:"reason"`
	Status        CancelRequestStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	AdminResponse string              `gorm:"type:text" json:"admin_response,omitempty"`
	ResolvedBy    string              `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
	Version       int64               `gorm:"not null;default:0" json:"version"`
}
