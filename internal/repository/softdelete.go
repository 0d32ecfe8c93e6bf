package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SoftDeleter is the delete/restore/audit capability for models composing model.SoftDelete.
type SoftDeleter[T any] interface {
	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error
	Restore(ctx context.Context, id uuid.UUID) error
	FindWithDeleted(ctx context.Context, id uuid.UUID) (*T, error)
	ListWithDeleted(ctx context.Context) ([]T, error)
}

type gormSoftDeleter[T any] struct {
	db *gorm.DB
}

func NewSoftDeleter[T any](db *gorm.DB) SoftDeleter[T] {
	return &gormSoftDeleter[T]{db: db}
}

func (s *gormSoftDeleter[T]) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	res := s.db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_at": time.Now(),
			"deleted_by": deletedBy,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSoftDeleter[T]) Restore(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Unscoped().Model(new(T)).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": nil,
			"deleted_by": "",
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSoftDeleter[T]) FindWithDeleted(ctx context.Context, id uuid.UUID) (*T, error) {
	var out T
	if err := s.db.WithContext(ctx).Unscoped().First(&out, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *gormSoftDeleter[T]) ListWithDeleted(ctx context.Context) ([]T, error) {
	var out []T
	err := s.db.WithContext(ctx).Unscoped().Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}
