package repository

import (
	"context"
	"time"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SagaRepository interface {
	Create(ctx context.Context, saga *model.Saga) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Saga, error)
	Update(ctx context.Context, saga *model.Saga) error
	FindByReference(ctx context.Context, reference string) ([]model.Saga, error)
	// FindStale lists sagas still marked started that began before the cutoff.
	FindStale(ctx context.Context, before time.Time, limit int) ([]model.Saga, error)
}

type sagaRepo struct {
	db *gorm.DB
}

func NewSagaRepo(db *gorm.DB) SagaRepository {
	return &sagaRepo{db}
}

func (r *sagaRepo) Create(ctx context.Context, saga *model.Saga) error {
	return translate(r.db.WithContext(ctx).Create(saga).Error)
}

func (r *sagaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Saga, error) {
	var saga model.Saga
	if err := r.db.WithContext(ctx).First(&saga, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &saga, nil
}

func (r *sagaRepo) Update(ctx context.Context, saga *model.Saga) error {
	return translate(r.db.WithContext(ctx).Save(saga).Error)
}

func (r *sagaRepo) FindByReference(ctx context.Context, reference string) ([]model.Saga, error) {
	var sagas []model.Saga
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("started_at ASC").
		Find(&sagas).Error
	return sagas, translate(err)
}

func (r *sagaRepo) FindStale(ctx context.Context, before time.Time, limit int) ([]model.Saga, error) {
	var sagas []model.Saga
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.SagaStarted, before).
		Order("started_at ASC").
		Limit(limit).
		Find(&sagas).Error
	return sagas, translate(err)
}
