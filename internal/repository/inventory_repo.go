package repository

import (
	"context"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InventoryFilter struct {
	ProductID    *uuid.UUID
	LowStockOnly bool
	Limit        int
	Offset       int
}

type InventoryRepository interface {
	Create(ctx context.Context, item *model.InventoryItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error)
	FindByUnit(ctx context.Context, productID, variantID uuid.UUID, size string) (*model.InventoryItem, error)
	List(ctx context.Context, filter InventoryFilter) ([]model.InventoryItem, error)
	// UpdatePricing writes the price columns if the item is still at expectedVersion.
	UpdatePricing(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error
	// ApplyMovement appends entry and sets the item quantity as one unit, conditional on expectedVersion.
	// Returns ErrConflict when another writer got there first, ErrDuplicateKey on a reused idempotency key.
	ApplyMovement(ctx context.Context, item *model.InventoryItem, expectedVersion int64, entry *model.InventoryTransaction) error
	FindTransactionByKey(ctx context.Context, key string) (*model.InventoryTransaction, error)
	ListTransactions(ctx context.Context, itemID uuid.UUID) ([]model.InventoryTransaction, error)
	ListTransactionsByReference(ctx context.Context, reference string) ([]model.InventoryTransaction, error)
}

type inventoryRepo struct {
	db *gorm.DB
}

func NewInventoryRepo(db *gorm.DB) InventoryRepository {
	return &inventoryRepo{db}
}

func (r *inventoryRepo) Create(ctx context.Context, item *model.InventoryItem) error {
	return translate(r.db.WithContext(ctx).Create(item).Error)
}

func (r *inventoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *inventoryRepo) FindByUnit(ctx context.Context, productID, variantID uuid.UUID, size string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ? AND size = ?", productID, variantID, size).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *inventoryRepo) List(ctx context.Context, filter InventoryFilter) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	q := r.db.WithContext(ctx).Model(&model.InventoryItem{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.LowStockOnly {
		q = q.Where("quantity <= low_stock_threshold")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	err := q.Order("product_name ASC, size ASC").Find(&items).Error
	return items, translate(err)
}

func (r *inventoryRepo) UpdatePricing(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Model(&model.InventoryItem{}).
		Where("id = ? AND version = ?", item.ID, expectedVersion).
		Updates(map[string]interface{}{
			"cost_price":          item.CostPrice,
			"selling_price":       item.SellingPrice,
			"discount_percent":    item.DiscountPercent,
			"final_price":         item.FinalPrice,
			"low_stock_threshold": item.LowStockThreshold,
			"version":             expectedVersion + 1,
			"updated_by":          item.UpdatedBy,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	item.Version = expectedVersion + 1
	return nil
}

func (r *inventoryRepo) ApplyMovement(ctx context.Context, item *model.InventoryItem, expectedVersion int64, entry *model.InventoryTransaction) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.InventoryItem{}).
			Where("id = ? AND version = ?", item.ID, expectedVersion).
			Updates(map[string]interface{}{
				"quantity":           item.Quantity,
				"average_cost_price": item.AverageCostPrice,
				"version":            expectedVersion + 1,
				"updated_by":         item.UpdatedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return translate(err)
	}
	item.Version = expectedVersion + 1
	return nil
}

func (r *inventoryRepo) FindTransactionByKey(ctx context.Context, key string) (*model.InventoryTransaction, error) {
	var entry model.InventoryTransaction
	if err := r.db.WithContext(ctx).First(&entry, "idempotency_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *inventoryRepo) ListTransactions(ctx context.Context, itemID uuid.UUID) ([]model.InventoryTransaction, error) {
	var entries []model.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("inventory_item_id = ?", itemID).
		Order("seq ASC").
		Find(&entries).Error
	return entries, translate(err)
}

func (r *inventoryRepo) ListTransactionsByReference(ctx context.Context, reference string) ([]model.InventoryTransaction, error) {
	var entries []model.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("seq ASC").
		Find(&entries).Error
	return entries, translate(err)
}
