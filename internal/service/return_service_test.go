package service_test

import (
	"context"
	"testing"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func returnLine(item *model.InventoryItem, qty int) service.ReturnLine {
	return service.ReturnLine{ProductID: item.ProductID, VariantID: item.VariantID, Size: item.Size, Quantity: qty}
}

func (f *fixture) deliveredOrder(lines ...service.CartLine) *model.Order {
	f.t.Helper()
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, lines...)
	return f.deliver(order.ID)
}

func (f *fixture) openReturn(order *model.Order, typ model.ReturnType, lines ...service.ReturnLine) (*model.ReturnRequest, error) {
	return f.returns.CreateReturnRequest(f.ctx, service.CreateReturnCommand{
		OrderID:    order.ID,
		CustomerID: order.UserID,
		Type:       typ,
		Items:      lines,
		Reason:     "does not fit",
	})
}

func (f *fixture) approve(req *model.ReturnRequest) {
	f.t.Helper()
	_, err := f.returns.Approve(f.ctx, service.ReviewReturnCommand{RequestID: req.ID, ActorID: "admin@test"})
	require.NoError(f.t, err)
}

func TestProcessReturnRefundsAndRestocks(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 2))
	assert.Equal(t, 3, f.quantity(shirt.ID))

	req, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 2))
	require.NoError(t, err)
	assert.Equal(t, model.ReturnPending, req.Status)
	assert.Equal(t, model.RefundOriginalPayment, req.RefundMethod)
	f.approve(req)

	done, err := f.returns.ProcessReturn(f.ctx, req.ID, "admin@test")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)
	assert.EqualValues(t, 200000, done.RefundAmount)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 5, f.quantity(shirt.ID))
	f.requireLedgerConsistent(shirt.ID)

	require.Len(t, f.disburser.calls, 1)
	assert.EqualValues(t, 200000, f.disburser.calls[0].Amount)

	// 23 earned on 230000, 200000 refunded
	balance, err := f.loyalty.Balance(f.ctx, order.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, balance)

	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	requireKind(t, err, service.KindValidation)
}

func TestPartialReturnsUpToPurchasedQuantity(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 3))

	first, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	require.NoError(t, err)
	f.approve(first)
	_, err = f.returns.ProcessReturn(f.ctx, first.ID, "admin@test")
	require.NoError(t, err)

	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 3))
	requireKind(t, err, service.KindValidation)

	second, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 2))
	require.NoError(t, err)
	assert.Equal(t, model.ReturnPending, second.Status)
}

func TestDuplicateReturnRequestRejected(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 2))

	first, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	require.NoError(t, err)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	requireKind(t, err, service.KindDuplicateReturnRequest)

	// the claim is released once the customer withdraws
	_, err = f.returns.CancelByCustomer(f.ctx, first.ID, order.UserID)
	require.NoError(t, err)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	assert.NoError(t, err)
}

func TestReturnRequestValidation(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	scarf := f.stock("Silk Scarf", "OS", 5, 50000)
	user, addr := f.customer()
	pending := f.mustCheckout(user, addr, line(shirt, 1))

	_, err := f.openReturn(pending, model.ReturnTypeReturn, returnLine(shirt, 1))
	requireKind(t, err, service.KindOrderNotDelivered)

	order := f.deliver(pending.ID)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 2))
	requireKind(t, err, service.KindValidation)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(scarf, 1))
	requireKind(t, err, service.KindValidation)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1), returnLine(shirt, 1))
	requireKind(t, err, service.KindValidation)

	_, err = f.returns.CreateReturnRequest(f.ctx, service.CreateReturnCommand{
		OrderID: order.ID, CustomerID: uuid.New(), Type: model.ReturnTypeReturn,
		Items: []service.ReturnLine{returnLine(shirt, 1)}, Reason: "x",
	})
	requireKind(t, err, service.KindNotFound)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	requireKind(t, err, service.KindValidation)
}

func TestReturnReviewTransitions(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 1))
	req, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 1))
	require.NoError(t, err)

	_, err = f.returns.ProcessReturn(f.ctx, req.ID, "admin@test")
	requireKind(t, err, service.KindIllegalTransition)

	rejected, err := f.returns.Reject(f.ctx, service.ReviewReturnCommand{RequestID: req.ID, ActorID: "admin@test", Note: "worn"})
	require.NoError(t, err)
	assert.Equal(t, "worn", rejected.RejectionReason)

	_, err = f.returns.Approve(f.ctx, service.ReviewReturnCommand{RequestID: req.ID, ActorID: "admin@test"})
	requireKind(t, err, service.KindIllegalTransition)
	_, err = f.returns.CancelByCustomer(f.ctx, req.ID, order.UserID)
	requireKind(t, err, service.KindIllegalTransition)

	listed, err := f.returns.List(f.ctx, repository.ReturnRequestFilter{Status: model.ReturnRejected})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRefundFailureLeavesProcessing(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 2))
	req, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 2))
	require.NoError(t, err)
	f.approve(req)

	f.disburser.fail = true
	_, err = f.returns.ProcessReturn(f.ctx, req.ID, "admin@test")
	requireKind(t, err, service.KindPaymentGateway)

	stuck, err := f.returns.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnProcessing, stuck.Status)
	assert.Equal(t, 5, f.quantity(shirt.ID))

	f.disburser.fail = false
	done, err := f.returns.ProcessReturn(f.ctx, req.ID, "admin@test")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)
	assert.Equal(t, 5, f.quantity(shirt.ID))
	f.requireLedgerConsistent(shirt.ID)
}

func TestProcessExchangeSwapsStock(t *testing.T) {
	f := newFixture(t)
	medium := f.stock("Linen Shirt", "M", 5, 100000)
	large := f.sibling(medium, "L", 2)
	order := f.deliveredOrder(line(medium, 1))

	exchange := returnLine(medium, 1)
	exchange.ExchangeToSize = "L"
	req, err := f.openReturn(order, model.ReturnTypeExchange, exchange)
	require.NoError(t, err)
	require.NotNil(t, req.Items[0].ExchangeToInventoryItemID)
	assert.Equal(t, large.ID, *req.Items[0].ExchangeToInventoryItemID)
	f.approve(req)

	done, err := f.returns.ProcessExchange(f.ctx, req.ID, "admin@test")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)
	assert.Equal(t, 5, f.quantity(medium.ID))
	assert.Equal(t, 1, f.quantity(large.ID))
	f.requireLedgerConsistent(medium.ID)
	f.requireLedgerConsistent(large.ID)

	sagas, err := f.repos.Sagas.FindByReference(f.ctx, req.ID.String())
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, model.SagaCompleted, sagas[0].Status)
}

func TestExchangeSoldOutCompensates(t *testing.T) {
	f := newFixture(t)
	medium := f.stock("Linen Shirt", "M", 5, 100000)
	large := f.sibling(medium, "L", 0)
	order := f.deliveredOrder(line(medium, 1))

	exchange := returnLine(medium, 1)
	exchange.ExchangeToSize = "L"
	req, err := f.openReturn(order, model.ReturnTypeExchange, exchange)
	require.NoError(t, err)
	f.approve(req)

	_, err = f.returns.ProcessExchange(f.ctx, req.ID, "admin@test")
	requireKind(t, err, service.KindInsufficientStock)

	stuck, err := f.returns.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnProcessing, stuck.Status)
	assert.Equal(t, 4, f.quantity(medium.ID))
	assert.Equal(t, 0, f.quantity(large.ID))

	sagas, err := f.repos.Sagas.FindByReference(f.ctx, req.ID.String())
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, model.SagaCompensated, sagas[0].Status)

	_, _, err = f.inventory.Restock(f.ctx, service.MovementCommand{ItemID: large.ID, Quantity: 1})
	require.NoError(t, err)
	done, err := f.returns.ProcessExchange(f.ctx, req.ID, "admin@test")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)
	assert.Equal(t, 5, f.quantity(medium.ID))
	assert.Equal(t, 0, f.quantity(large.ID))
}

func TestExchangeTargetMustDiffer(t *testing.T) {
	f := newFixture(t)
	medium := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(medium, 1))

	_, err := f.openReturn(order, model.ReturnTypeExchange, returnLine(medium, 1))
	requireKind(t, err, service.KindValidation)

	missing := returnLine(medium, 1)
	missing.ExchangeToSize = "XXL"
	_, err = f.openReturn(order, model.ReturnTypeExchange, missing)
	requireKind(t, err, service.KindValidation)
}

// slowInventory stretches item lookups so concurrent calls overlap.
type slowInventory struct {
	service.InventoryService
	delay time.Duration
}

func (s slowInventory) GetItem(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	time.Sleep(s.delay)
	return s.InventoryService.GetItem(ctx, id)
}

// requireLostRace accepts the outcomes a caller that lost a race on the same request may see.
func requireLostRace(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	kind := service.KindOf(err)
	assert.Contains(t, []service.Kind{service.KindConflict, service.KindIllegalTransition}, kind, err.Error())
}

func TestConcurrentExchangeMovesStockOnce(t *testing.T) {
	f := newFixture(t)
	medium := f.stock("Linen Shirt", "M", 11, 100000)
	large := f.sibling(medium, "L", 10)
	order := f.deliveredOrder(line(medium, 1))

	exchange := returnLine(medium, 1)
	exchange.ExchangeToSize = "L"
	req, err := f.openReturn(order, model.ReturnTypeExchange, exchange)
	require.NoError(t, err)
	f.approve(req)

	returns := f.returnService(slowInventory{InventoryService: f.inventory, delay: 20 * time.Millisecond})
	errs := make([]error, 4)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			_, errs[i] = returns.ProcessExchange(f.ctx, req.ID, "admin@test")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range errs {
		requireLostRace(t, err)
		if err == nil {
			succeeded++
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	assert.Equal(t, 11, f.quantity(medium.ID))
	assert.Equal(t, 9, f.quantity(large.ID))
	f.requireLedgerConsistent(medium.ID)
	f.requireLedgerConsistent(large.ID)

	done, err := f.returns.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)

	sagas, err := f.repos.Sagas.FindByReference(f.ctx, req.ID.String())
	require.NoError(t, err)
	completed := 0
	for _, saga := range sagas {
		if saga.Status == model.SagaCompleted {
			completed++
			require.NotNil(t, done.ExchangeSagaID)
			assert.Equal(t, *done.ExchangeSagaID, saga.ID)
		} else {
			assert.Equal(t, model.SagaCompensated, saga.Status)
		}
	}
	assert.Equal(t, 1, completed)
}

func TestConcurrentProcessReturnRestocksOnce(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	order := f.deliveredOrder(line(shirt, 2))
	req, err := f.openReturn(order, model.ReturnTypeReturn, returnLine(shirt, 2))
	require.NoError(t, err)
	f.approve(req)

	errs := make([]error, 6)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = f.returns.ProcessReturn(f.ctx, req.ID, "admin@test")
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, err := range errs {
		requireLostRace(t, err)
	}

	assert.Equal(t, 5, f.quantity(shirt.ID))
	f.requireLedgerConsistent(shirt.ID)

	done, err := f.returns.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, done.Status)
	assert.EqualValues(t, 200000, done.RefundAmount)

	require.NotEmpty(t, f.disburser.calls)
	for _, call := range f.disburser.calls {
		assert.Equal(t, f.disburser.calls[0].IdempotencyKey, call.IdempotencyKey)
	}

	balance, err := f.loyalty.Balance(f.ctx, order.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, balance)
}
