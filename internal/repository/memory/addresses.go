package memory

import (
	"context"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type addressRepo struct {
	s *Store
	*softTable[model.Address]
}

func (r *addressRepo) Create(ctx context.Context, addr *model.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if addr.IsDefault {
		for _, a := range r.s.addresses {
			if a.UserID == addr.UserID {
				a.IsDefault = false
			}
		}
	}
	r.s.stamp(&addr.BaseModel)
	c := *addr
	r.s.addresses[addr.ID] = &c
	return nil
}

func (r *addressRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.find(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *addressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Address
	for _, a := range r.collect(false) {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}
