package repository

import (
	"context"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	// RecordNotification stores a callback; a second one with the same DedupeKey returns ErrDuplicateKey.
	RecordNotification(ctx context.Context, n *model.PaymentNotification) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.PaymentNotification, error)
}

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepo(db *gorm.DB) PaymentRepository {
	return &paymentRepo{db}
}

func (r *paymentRepo) RecordNotification(ctx context.Context, n *model.PaymentNotification) error {
	return translate(r.db.WithContext(ctx).Create(n).Error)
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.PaymentNotification, error) {
	var out []model.PaymentNotification
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&out).Error
	return out, translate(err)
}
