// Package memory implements the repository interfaces over process memory.
// Conditional updates, unique keys and soft delete behave like the postgres repositories,
// which lets services run without a database in tests and with STORAGE_DRIVER=memory.
package memory

import (
	"sort"
	"sync"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
)

// Store holds every table. One mutex serialises writers the way a row lock would.
type Store struct {
	mu sync.RWMutex

	items     map[uuid.UUID]*model.InventoryItem
	itemTx    []*model.InventoryTransaction
	itemTxKey map[string]*model.InventoryTransaction

	orders map[uuid.UUID]*model.Order
	codes  map[string]uuid.UUID

	cancels map[uuid.UUID]*model.CancelRequest

	returns map[uuid.UUID]*model.ReturnRequest
	claims  map[string]uuid.UUID

	accounts   map[uuid.UUID]*model.LoyaltyAccount
	loyaltyTx  []*model.LoyaltyTransaction
	loyaltyKey map[string]*model.LoyaltyTransaction

	coupons map[uuid.UUID]*model.Coupon
	usages  map[[2]uuid.UUID]*model.CouponUsage

	sagas    map[uuid.UUID]*model.Saga
	payments map[string]*model.PaymentNotification

	addresses map[uuid.UUID]*model.Address
	carts     map[[2]uuid.UUID]*model.CartItem

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		items:      map[uuid.UUID]*model.InventoryItem{},
		itemTxKey:  map[string]*model.InventoryTransaction{},
		orders:     map[uuid.UUID]*model.Order{},
		codes:      map[string]uuid.UUID{},
		cancels:    map[uuid.UUID]*model.CancelRequest{},
		returns:    map[uuid.UUID]*model.ReturnRequest{},
		claims:     map[string]uuid.UUID{},
		accounts:   map[uuid.UUID]*model.LoyaltyAccount{},
		loyaltyKey: map[string]*model.LoyaltyTransaction{},
		coupons:    map[uuid.UUID]*model.Coupon{},
		usages:     map[[2]uuid.UUID]*model.CouponUsage{},
		sagas:      map[uuid.UUID]*model.Saga{},
		payments:   map[string]*model.PaymentNotification{},
		addresses:  map[uuid.UUID]*model.Address{},
		carts:      map[[2]uuid.UUID]*model.CartItem{},
		now:        time.Now,
	}
}

// Repositories returns every repository backed by this store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Inventory: &inventoryRepo{s},
		Orders:    &orderRepo{s},
		Cancels:   &cancelRequestRepo{s},
		Returns:   &returnRequestRepo{s},
		Loyalty:   &loyaltyRepo{s},
		Coupons:   &couponRepo{s, couponTable(s)},
		Sagas:     &sagaRepo{s},
		Payments:  &paymentRepo{s},
		Addresses: &addressRepo{s, addressTable(s)},
		Cart:      &cartRepo{s},
	}
}

// stamp fills the audit timestamps gorm would set.
func (s *Store) stamp(b *model.BaseModel) {
	now := s.now()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func paginate[T any](rows []T, limit, offset int) []T {
	if limit <= 0 {
		return rows
	}
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func newestFirst[T any](rows []T, at func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool { return at(rows[i]).After(at(rows[j])) })
}

func copyOrder(o *model.Order) *model.Order {
	c := *o
	c.OrderItems = append([]model.OrderItem(nil), o.OrderItems...)
	return &c
}

func copyReturn(r *model.ReturnRequest) *model.ReturnRequest {
	c := *r
	c.Items = append([]model.ReturnItem(nil), r.Items...)
	return &c
}

func copySaga(s *model.Saga) *model.Saga {
	c := *s
	c.Steps = append([]model.SagaStep(nil), s.Steps...)
	return &c
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
