package memory

import (
	"context"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type orderRepo struct {
	s *Store
}

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.codes[order.OrderCode]; dup {
		return repository.ErrDuplicateKey
	}
	if _, dup := r.s.orders[order.ID]; dup && order.ID != uuid.Nil {
		return repository.ErrDuplicateKey
	}
	r.s.stamp(&order.BaseModel)
	for i := range order.OrderItems {
		if order.OrderItems[i].ID == uuid.Nil {
			order.OrderItems[i].ID = uuid.New()
		}
		order.OrderItems[i].OrderID = order.ID
	}
	r.s.orders[order.ID] = copyOrder(order)
	r.s.codes[order.OrderCode] = order.ID
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r *orderRepo) FindByCode(ctx context.Context, code string) (*model.Order, error) {
	r.s.mu.RLock()
	id, ok := r.s.codes[code]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *orderRepo) List(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Order
	for _, o := range r.s.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.RestockPending && (o.Status != model.OrderCancelled || o.InventoryRestored) {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	newestFirst(out, func(o model.Order) time.Time { return o.CreatedAt })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *orderRepo) Update(ctx context.Context, order *model.Order, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	order.Version = expectedVersion + 1
	order.UpdatedAt = r.s.now()
	c := copyOrder(order)
	c.OrderItems = stored.OrderItems
	c.CreatedAt = stored.CreatedAt
	c.CreatedBy = stored.CreatedBy
	r.s.orders[order.ID] = c
	return nil
}
