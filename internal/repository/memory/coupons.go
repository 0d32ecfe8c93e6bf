package memory

import (
	"context"
	"strings"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type couponRepo struct {
	s *Store
	*softTable[model.Coupon]
}

func (r *couponRepo) Create(ctx context.Context, coupon *model.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	for _, c := range r.s.coupons {
		if c.Code == coupon.Code {
			return repository.ErrDuplicateKey
		}
	}
	r.s.stamp(&coupon.BaseModel)
	c := *coupon
	r.s.coupons[coupon.ID] = &c
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range r.s.coupons {
		if c.Code == code && !c.IsDeleted() {
			out := *c
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *couponRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.find(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *couponRepo) List(ctx context.Context) ([]model.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.collect(false), nil
}

func (r *couponRepo) HasUsage(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.usages[[2]uuid.UUID{couponID, userID}]
	return ok, nil
}

func (r *couponRepo) FindUsageByOrder(ctx context.Context, orderID uuid.UUID) (*model.CouponUsage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.usages {
		if u.OrderID == orderID {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *couponRepo) Redeem(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.find(couponID)
	if !ok || c.Exhausted() {
		return repository.ErrConflict
	}
	key := [2]uuid.UUID{couponID, userID}
	if _, dup := r.s.usages[key]; dup {
		return repository.ErrDuplicateKey
	}
	c.UsedCount++
	r.s.usages[key] = &model.CouponUsage{
		ID:        uuid.New(),
		CouponID:  couponID,
		UserID:    userID,
		OrderID:   orderID,
		CreatedAt: r.s.now(),
	}
	return nil
}

func (r *couponRepo) Release(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]uuid.UUID{couponID, userID}
	usage, ok := r.s.usages[key]
	if !ok || usage.OrderID != orderID {
		return nil
	}
	delete(r.s.usages, key)
	if c, ok := r.s.coupons[couponID]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}
