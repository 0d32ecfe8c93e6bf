package memory

import (
	"context"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type returnRequestRepo struct {
	s *Store
}

func (r *returnRequestRepo) Create(ctx context.Context, req *model.ReturnRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	keys := req.ClaimKeys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, held := r.s.claims[k]; held || seen[k] {
			return repository.ErrDuplicateKey
		}
		seen[k] = true
	}
	r.s.stamp(&req.BaseModel)
	for i := range req.Items {
		if req.Items[i].ID == uuid.Nil {
			req.Items[i].ID = uuid.New()
		}
		req.Items[i].ReturnRequestID = req.ID
	}
	for _, k := range keys {
		r.s.claims[k] = req.ID
	}
	r.s.returns[req.ID] = copyReturn(req)
	return nil
}

func (r *returnRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.returns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyReturn(req), nil
}

func (r *returnRequestRepo) List(ctx context.Context, filter repository.ReturnRequestFilter) ([]model.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.ReturnRequest
	for _, req := range r.s.returns {
		if filter.CustomerID != nil && req.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.OrderID != nil && req.OrderID != *filter.OrderID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *copyReturn(req))
	}
	newestFirst(out, func(r model.ReturnRequest) time.Time { return r.CreatedAt })
	return out, nil
}

func (r *returnRequestRepo) Update(ctx context.Context, req *model.ReturnRequest, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.returns[req.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	req.Version = expectedVersion + 1
	req.UpdatedAt = r.s.now()
	c := copyReturn(req)
	c.Items = stored.Items
	c.CreatedAt = stored.CreatedAt
	r.s.returns[req.ID] = c
	return nil
}

func (r *returnRequestRepo) ReleaseClaims(ctx context.Context, requestID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, id := range r.s.claims {
		if id == requestID {
			delete(r.s.claims, k)
		}
	}
	return nil
}
