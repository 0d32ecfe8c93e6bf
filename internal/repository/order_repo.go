package repository

import (
	"context"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderFilter struct {
	UserID *uuid.UUID
	Status model.OrderStatus
	// RestockPending selects cancelled orders whose lines have not all been restocked.
	RestockPending bool
	Limit  int
	Offset int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByCode(ctx context.Context, code string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	// Update writes the order columns (not its items) if the stored version still equals expectedVersion.
	Update(ctx context.Context, order *model.Order, expectedVersion int64) error
}

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) OrderRepository {
	return &orderRepo{db}
}

// Create inserts the order and its items in one transaction.
func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	}))
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Preload("OrderItems").First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepo) FindByCode(ctx context.Context, code string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Preload("OrderItems").First(&order, "order_code = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepo) List(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	var orders []model.Order
	q := r.db.WithContext(ctx).Preload("OrderItems")
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.RestockPending {
		q = q.Where("status = ? AND inventory_restored = ?", model.OrderCancelled, false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	err := q.Order("created_at DESC").Find(&orders).Error
	return orders, translate(err)
}

func (r *orderRepo) Update(ctx context.Context, order *model.Order, expectedVersion int64) error {
	order.Version = expectedVersion + 1
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "created_by", "OrderItems").
		Updates(order)
	if res.Error != nil {
		order.Version = expectedVersion
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = expectedVersion
		return ErrConflict
	}
	return nil
}
