package memory

import (
	"context"
	"sort"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type cartRepo struct {
	s *Store
}

func (r *cartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.CartItem
	for key, item := range r.s.carts {
		if key[0] == userID {
			out = append(out, *item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *cartRepo) Upsert(ctx context.Context, item *model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	key := [2]uuid.UUID{item.UserID, item.InventoryItemID}
	if existing, ok := r.s.carts[key]; ok {
		existing.Quantity = item.Quantity
		existing.UpdatedAt = now
		*item = *existing
		return nil
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	c := *item
	r.s.carts[key] = &c
	return nil
}

func (r *cartRepo) Delete(ctx context.Context, userID, inventoryItemID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]uuid.UUID{userID, inventoryItemID}
	if _, ok := r.s.carts[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.carts, key)
	return nil
}

func (r *cartRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key := range r.s.carts {
		if key[0] == userID {
			delete(r.s.carts, key)
		}
	}
	return nil
}
