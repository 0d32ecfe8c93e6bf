package memory

import (
	"context"
	"errors"
	"sort"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

var errNegativeQuantity = errors.New("memory: quantity check constraint violated")

type inventoryRepo struct {
	s *Store
}

func (r *inventoryRepo) Create(ctx context.Context, item *model.InventoryItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.items {
		if existing.ProductID == item.ProductID && existing.VariantID == item.VariantID && existing.Size == item.Size {
			return repository.ErrDuplicateKey
		}
	}
	r.s.stamp(&item.BaseModel)
	c := *item
	r.s.items[item.ID] = &c
	return nil
}

func (r *inventoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *item
	return &c, nil
}

func (r *inventoryRepo) FindByUnit(ctx context.Context, productID, variantID uuid.UUID, size string) (*model.InventoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, item := range r.s.items {
		if item.ProductID == productID && item.VariantID == variantID && item.Size == size {
			c := *item
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *inventoryRepo) List(ctx context.Context, filter repository.InventoryFilter) ([]model.InventoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.InventoryItem
	for _, item := range r.s.items {
		if filter.ProductID != nil && item.ProductID != *filter.ProductID {
			continue
		}
		if filter.LowStockOnly && !item.IsLowStock() {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].Size < out[j].Size
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *inventoryRepo) UpdatePricing(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.items[item.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	stored.CostPrice = item.CostPrice
	stored.SellingPrice = item.SellingPrice
	stored.DiscountPercent = item.DiscountPercent
	stored.FinalPrice = item.FinalPrice
	stored.LowStockThreshold = item.LowStockThreshold
	stored.UpdatedBy = item.UpdatedBy
	stored.UpdatedAt = r.s.now()
	stored.Version = expectedVersion + 1
	item.Version = stored.Version
	return nil
}

func (r *inventoryRepo) ApplyMovement(ctx context.Context, item *model.InventoryItem, expectedVersion int64, entry *model.InventoryTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.items[item.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	if item.Quantity < 0 {
		return errNegativeQuantity
	}
	if entry.IdempotencyKey != nil {
		if _, dup := r.s.itemTxKey[*entry.IdempotencyKey]; dup {
			return repository.ErrDuplicateKey
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	stored.Quantity = item.Quantity
	stored.AverageCostPrice = item.AverageCostPrice
	stored.UpdatedBy = item.UpdatedBy
	stored.UpdatedAt = r.s.now()
	stored.Version = expectedVersion + 1
	item.Version = stored.Version

	entry.Seq = int64(len(r.s.itemTx) + 1)
	c := *entry
	c.IdempotencyKey = copyString(entry.IdempotencyKey)
	r.s.itemTx = append(r.s.itemTx, &c)
	if c.IdempotencyKey != nil {
		r.s.itemTxKey[*c.IdempotencyKey] = &c
	}
	return nil
}

func (r *inventoryRepo) FindTransactionByKey(ctx context.Context, key string) (*model.InventoryTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.itemTxKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *entry
	c.IdempotencyKey = copyString(entry.IdempotencyKey)
	return &c, nil
}

func (r *inventoryRepo) ListTransactions(ctx context.Context, itemID uuid.UUID) ([]model.InventoryTransaction, error) {
	return r.filterTx(func(t *model.InventoryTransaction) bool { return t.InventoryItemID == itemID }), nil
}

func (r *inventoryRepo) ListTransactionsByReference(ctx context.Context, reference string) ([]model.InventoryTransaction, error) {
	return r.filterTx(func(t *model.InventoryTransaction) bool { return t.Reference == reference }), nil
}

// filterTx returns matching rows in append order, which is commit order.
func (r *inventoryRepo) filterTx(match func(*model.InventoryTransaction) bool) []model.InventoryTransaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.InventoryTransaction
	for _, t := range r.s.itemTx {
		if match(t) {
			c := *t
			c.IdempotencyKey = copyString(t.IdempotencyKey)
			out = append(out, c)
		}
	}
	return out
}
