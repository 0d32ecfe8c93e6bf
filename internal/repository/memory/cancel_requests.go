package memory

import (
	"context"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type cancelRequestRepo struct {
	s *Store
}

func (r *cancelRequestRepo) Create(ctx context.Context, req *model.CancelRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.Status == model.CancelPending {
		for _, existing := range r.s.cancels {
			if existing.OrderID == req.OrderID && existing.Status == model.CancelPending {
				return repository.ErrDuplicateKey
			}
		}
	}
	r.s.stamp(&req.BaseModel)
	c := *req
	r.s.cancels[req.ID] = &c
	return nil
}

func (r *cancelRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CancelRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.cancels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *req
	return &c, nil
}

func (r *cancelRequestRepo) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*model.CancelRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, req := range r.s.cancels {
		if req.OrderID == orderID && req.Status == model.CancelPending {
			c := *req
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *cancelRequestRepo) List(ctx context.Context, filter repository.CancelRequestFilter) ([]model.CancelRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.CancelRequest
	for _, req := range r.s.cancels {
		if filter.OrderID != nil && req.OrderID != *filter.OrderID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *req)
	}
	newestFirst(out, func(c model.CancelRequest) time.Time { return c.CreatedAt })
	return out, nil
}

func (r *cancelRequestRepo) Update(ctx context.Context, req *model.CancelRequest, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.cancels[req.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	req.Version = expectedVersion + 1
	req.UpdatedAt = r.s.now()
	c := *req
	c.CreatedAt = stored.CreatedAt
	r.s.cancels[req.ID] = &c
	return nil
}
