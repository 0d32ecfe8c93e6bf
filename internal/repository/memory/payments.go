package memory

import (
	"context"
	"sort"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type paymentRepo struct {
	s *Store
}

func (r *paymentRepo) RecordNotification(ctx context.Context, n *model.PaymentNotification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.payments[n.DedupeKey]; dup {
		return repository.ErrDuplicateKey
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = r.s.now()
	c := *n
	c.Params = make(map[string]string, len(n.Params))
	for k, v := range n.Params {
		c.Params[k] = v
	}
	r.s.payments[n.DedupeKey] = &c
	return nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.PaymentNotification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.PaymentNotification
	for _, n := range r.s.payments {
		if n.OrderID == orderID {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
