package repository

import (
	"context"
	"time"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error)
	// Upsert sets the quantity of the unit in the user's cart, inserting the line if missing.
	Upsert(ctx context.Context, item *model.CartItem) error
	Delete(ctx context.Context, userID, inventoryItemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type cartRepo struct {
	db *gorm.DB
}

func NewCartRepo(db *gorm.DB) CartRepository {
	return &cartRepo{db}
}

func (r *cartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, translate(err)
}

func (r *cartRepo) Upsert(ctx context.Context, item *model.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.UpdatedAt = time.Now()
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "inventory_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(item).Error)
}

func (r *cartRepo) Delete(ctx context.Context, userID, inventoryItemID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND inventory_item_id = ?", userID, inventoryItemID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error)
}
