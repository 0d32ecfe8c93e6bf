package service_test

import (
	"testing"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCompensatesAbandonedCheckout(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	orderID := uuid.New()
	key := service.SaleKey(orderID, 0)

	// the process died after the sale was applied but before the order was written
	_, _, err := f.inventory.ApplyTransaction(f.ctx, service.ApplyCommand{
		ItemID: shirt.ID, Type: model.TxOut, Reason: model.ReasonSale, QuantityChange: -2, IdempotencyKey: key,
	})
	require.NoError(t, err)
	saga := &model.Saga{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Kind:      model.SagaCheckout,
		Reference: orderID.String(),
		Status:    model.SagaStarted,
		Steps: []model.SagaStep{
			{Key: key, InventoryItemID: shirt.ID.String(), Type: model.TxOut, Reason: model.ReasonSale, QuantityChange: -2},
			{Key: service.SaleKey(orderID, 1), InventoryItemID: shirt.ID.String(), Type: model.TxOut, Reason: model.ReasonSale, QuantityChange: -1},
		},
		StartedAt: f.clock.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, f.repos.Sagas.Create(f.ctx, saga))
	assert.Equal(t, 3, f.quantity(shirt.ID))

	report, err := f.reconciler.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Compensated)
	assert.Equal(t, 5, f.quantity(shirt.ID))
	f.requireLedgerConsistent(shirt.ID)

	stored, err := f.repos.Sagas.FindByID(f.ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SagaCompensated, stored.Status)

	// a second pass has nothing left to do
	report, err = f.reconciler.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Compensated)
	assert.Equal(t, 5, f.quantity(shirt.ID))
}

func TestReconcileCompletesSagaWithOrder(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, line(shirt, 2))

	sagas, err := f.repos.Sagas.FindByReference(f.ctx, order.ID.String())
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	saga := sagas[0]
	saga.Status = model.SagaStarted
	saga.StartedAt = f.clock.Now().Add(-time.Hour)
	require.NoError(t, f.repos.Sagas.Update(f.ctx, &saga))

	report, err := f.reconciler.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 3, f.quantity(shirt.ID))

	stored, err := f.repos.Sagas.FindByID(f.ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SagaCompleted, stored.Status)
}

func TestReconcileRedrivesPendingRestock(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, line(shirt, 2))

	// cancelled but the restock never ran
	stored, err := f.repos.Orders.FindByID(f.ctx, order.ID)
	require.NoError(t, err)
	stored.Status = model.OrderCancelled
	require.NoError(t, f.repos.Orders.Update(f.ctx, stored, stored.Version))
	pending, err := f.repos.Orders.List(f.ctx, repository.OrderFilter{RestockPending: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	report, err := f.reconciler.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restocked)
	assert.Equal(t, 5, f.quantity(shirt.ID))

	pending, err = f.repos.Orders.List(f.ctx, repository.OrderFilter{RestockPending: true})
	require.NoError(t, err)
	assert.Empty(t, pending)
}
