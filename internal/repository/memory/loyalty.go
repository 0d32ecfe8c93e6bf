package memory

import (
	"context"
	"sort"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

type loyaltyRepo struct {
	s *Store
}

func (r *loyaltyRepo) FindAccount(ctx context.Context, userID uuid.UUID) (*model.LoyaltyAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	acc, ok := r.s.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *acc
	return &c, nil
}

func (r *loyaltyRepo) Apply(ctx context.Context, account *model.LoyaltyAccount, expectedVersion int64, entry *model.LoyaltyTransaction, draws []repository.PointsDraw) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, exists := r.s.accounts[account.UserID]
	switch {
	case expectedVersion == 0 && exists:
		return repository.ErrConflict
	case expectedVersion != 0 && (!exists || stored.Version != expectedVersion):
		return repository.ErrConflict
	}
	if account.Balance < 0 {
		return errNegativeQuantity
	}
	if entry.IdempotencyKey != nil {
		if _, dup := r.s.loyaltyKey[*entry.IdempotencyKey]; dup {
			return repository.ErrDuplicateKey
		}
	}
	credits := make([]*model.LoyaltyTransaction, len(draws))
	for i, d := range draws {
		credit := r.find(d.CreditID)
		if credit == nil || credit.Remaining < d.Points {
			return repository.ErrConflict
		}
		credits[i] = credit
	}
	for i, d := range draws {
		credits[i].Remaining -= d.Points
	}

	now := r.s.now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	account.Version = expectedVersion + 1
	account.UpdatedAt = now
	if !exists {
		account.CreatedAt = now
	}
	acc := *account
	r.s.accounts[account.UserID] = &acc

	entry.Seq = int64(len(r.s.loyaltyTx) + 1)
	c := *entry
	c.IdempotencyKey = copyString(entry.IdempotencyKey)
	r.s.loyaltyTx = append(r.s.loyaltyTx, &c)
	if c.IdempotencyKey != nil {
		r.s.loyaltyKey[*c.IdempotencyKey] = &c
	}
	return nil
}

func (r *loyaltyRepo) FindTransactionByKey(ctx context.Context, key string) (*model.LoyaltyTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.loyaltyKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *entry
	c.IdempotencyKey = copyString(entry.IdempotencyKey)
	return &c, nil
}

func (r *loyaltyRepo) ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.LoyaltyTransaction
	for _, t := range r.s.loyaltyTx {
		if t.UserID == userID {
			c := *t
			c.IdempotencyKey = copyString(t.IdempotencyKey)
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *loyaltyRepo) find(id uuid.UUID) *model.LoyaltyTransaction {
	for _, t := range r.s.loyaltyTx {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *loyaltyRepo) OpenCredits(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.LoyaltyTransaction
	for _, t := range r.s.loyaltyTx {
		if t.UserID != userID || t.Remaining <= 0 {
			continue
		}
		c := *t
		c.IdempotencyKey = copyString(t.IdempotencyKey)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiresAt, out[j].ExpiresAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

func (r *loyaltyRepo) FindExpirable(ctx context.Context, now time.Time, limit int) ([]model.LoyaltyTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.LoyaltyTransaction
	for _, t := range r.s.loyaltyTx {
		if t.Type != model.LoyaltyEarn || t.Remaining <= 0 || t.ExpiresAt == nil || t.ExpiresAt.After(now) {
			continue
		}
		c := *t
		c.IdempotencyKey = copyString(t.IdempotencyKey)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return paginate(out, limit, 0), nil
}
