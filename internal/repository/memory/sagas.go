package memory

import (
	"context"
	"sort"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type sagaRepo struct {
	s *Store
}

func (r *sagaRepo) Create(ctx context.Context, saga *model.Saga) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stamp(&saga.BaseModel)
	r.s.sagas[saga.ID] = copySaga(saga)
	return nil
}

func (r *sagaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Saga, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	saga, ok := r.s.sagas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySaga(saga), nil
}

func (r *sagaRepo) Update(ctx context.Context, saga *model.Saga) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sagas[saga.ID]; !ok {
		return repository.ErrNotFound
	}
	saga.UpdatedAt = r.s.now()
	r.s.sagas[saga.ID] = copySaga(saga)
	return nil
}

func (r *sagaRepo) FindByReference(ctx context.Context, reference string) ([]model.Saga, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Saga
	for _, saga := range r.s.sagas {
		if saga.Reference == reference {
			out = append(out, *copySaga(saga))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *sagaRepo) FindStale(ctx context.Context, before time.Time, limit int) ([]model.Saga, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Saga
	for _, saga := range r.s.sagas {
		if saga.Status == model.SagaStarted && saga.StartedAt.Before(before) {
			out = append(out, *copySaga(saga))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, limit, 0), nil
}
