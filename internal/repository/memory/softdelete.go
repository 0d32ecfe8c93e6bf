package memory

import (
	"context"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// softTable implements repository.SoftDeleter over one map of the store.
type softTable[T any] struct {
	s       *Store
	rows    func() map[uuid.UUID]*T
	meta    func(*T) *model.SoftDelete
	created func(*T) time.Time
}

func couponTable(s *Store) *softTable[model.Coupon] {
	return &softTable[model.Coupon]{
		s:       s,
		rows:    func() map[uuid.UUID]*model.Coupon { return s.coupons },
		meta:    func(c *model.Coupon) *model.SoftDelete { return &c.SoftDelete },
		created: func(c *model.Coupon) time.Time { return c.CreatedAt },
	}
}

func addressTable(s *Store) *softTable[model.Address] {
	return &softTable[model.Address]{
		s:       s,
		rows:    func() map[uuid.UUID]*model.Address { return s.addresses },
		meta:    func(a *model.Address) *model.SoftDelete { return &a.SoftDelete },
		created: func(a *model.Address) time.Time { return a.CreatedAt },
	}
}

func (t *softTable[T]) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	row, ok := t.rows()[id]
	if !ok || t.meta(row).IsDeleted() {
		return repository.ErrNotFound
	}
	m := t.meta(row)
	m.DeletedAt = gorm.DeletedAt{Time: t.s.now(), Valid: true}
	m.DeletedBy = deletedBy
	return nil
}

func (t *softTable[T]) Restore(ctx context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	row, ok := t.rows()[id]
	if !ok || !t.meta(row).IsDeleted() {
		return repository.ErrNotFound
	}
	*t.meta(row) = model.SoftDelete{}
	return nil
}

func (t *softTable[T]) FindWithDeleted(ctx context.Context, id uuid.UUID) (*T, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row, ok := t.rows()[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *row
	return &c, nil
}

func (t *softTable[T]) ListWithDeleted(ctx context.Context) ([]T, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.collect(true), nil
}

// find returns a live row. Callers hold the lock.
func (t *softTable[T]) find(id uuid.UUID) (*T, bool) {
	row, ok := t.rows()[id]
	if !ok || t.meta(row).IsDeleted() {
		return nil, false
	}
	return row, true
}

// collect copies rows newest first. Callers hold the lock.
func (t *softTable[T]) collect(withDeleted bool) []T {
	var out []T
	for _, row := range t.rows() {
		if !withDeleted && t.meta(row).IsDeleted() {
			continue
		}
		out = append(out, *row)
	}
	newestFirst(out, func(v T) time.Time { return t.created(&v) })
	return out
}
