package repository

import (
	"context"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AddressRepository interface {
	SoftDeleter[model.Address]
	Create(ctx context.Context, addr *model.Address) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Address, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error)
}

type addressRepo struct {
	SoftDeleter[model.Address]
	db *gorm.DB
}

func NewAddressRepo(db *gorm.DB) AddressRepository {
	return &addressRepo{SoftDeleter: NewSoftDeleter[model.Address](db), db: db}
}

func (r *addressRepo) Create(ctx context.Context, addr *model.Address) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if addr.IsDefault {
			if err := tx.Model(&model.Address{}).
				Where("user_id = ?", addr.UserID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(addr).Error
	}))
}

func (r *addressRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Address, error) {
	var addr model.Address
	if err := r.db.WithContext(ctx).First(&addr, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &addr, nil
}

func (r *addressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	var addrs []model.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&addrs).Error
	return addrs, translate(err)
}
