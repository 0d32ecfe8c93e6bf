package service_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, service.CanTransition(model.OrderPending, model.OrderConfirmed))
	assert.True(t, service.CanTransition(model.OrderConfirmed, model.OrderCancelled))
	assert.True(t, service.CanTransition(model.OrderShipping, model.OrderDelivered))
	assert.False(t, service.CanTransition(model.OrderPending, model.OrderDelivered))
	assert.False(t, service.CanTransition(model.OrderShipping, model.OrderCancelled))
	assert.False(t, service.CanTransition(model.OrderDelivered, model.OrderPending))
	assert.False(t, service.CanTransition(model.OrderCancelled, model.OrderConfirmed))
}

func TestOrderHappyPath(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()

	order := f.mustCheckout(user, addr, line(shirt, 2))
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, model.PaymentPending, order.PaymentStatus)
	assert.EqualValues(t, 200000, order.SubTotal)
	assert.EqualValues(t, 230000, order.TotalAfterDiscountAndShipping)
	assert.Equal(t, "Ho Chi Minh City", order.ShippingAddress.City)
	require.Len(t, order.OrderItems, 1)
	assert.EqualValues(t, 100000, order.OrderItems[0].PriceAtPurchase)
	assert.Equal(t, 3, f.quantity(shirt.ID))

	delivered := f.deliver(order.ID)
	assert.Equal(t, model.OrderDelivered, delivered.Status)
	assert.Equal(t, model.PaymentPaid, delivered.PaymentStatus)
	assert.NotNil(t, delivered.ConfirmedAt)
	assert.NotNil(t, delivered.ShippedAt)
	assert.NotNil(t, delivered.DeliveredAt)

	balance, err := f.loyalty.Balance(f.ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 23, balance)

	// re-delivering credits nothing more
	_, err = f.transition(order.ID, model.OrderDelivered)
	require.NoError(t, err)
	balance, err = f.loyalty.Balance(f.ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 23, balance)

	assert.Equal(t, 1, f.rec.count(service.EventOrderCreated))
	assert.Equal(t, 3, f.rec.count(service.EventOrderStatusChanged))
	f.requireLedgerConsistent(shirt.ID)
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, line(shirt, 1))

	_, err := f.transition(order.ID, model.OrderDelivered)
	requireKind(t, err, service.KindIllegalTransition)
	_, err = f.transition(order.ID, model.OrderPending)
	requireKind(t, err, service.KindIllegalTransition)

	f.deliver(order.ID)
	_, err = f.transition(order.ID, model.OrderCancelled)
	requireKind(t, err, service.KindNotCancellable)

	_, err = f.transition(uuid.New(), model.OrderConfirmed)
	requireKind(t, err, service.KindNotFound)
}

func TestCheckoutRaceForLastUnit(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 1, 100000)
	alice, aliceAddr := f.customer()
	bob, bobAddr := f.customer()

	var placed, soldOut atomic.Int32
	var g errgroup.Group
	for _, buyer := range []struct {
		id   uuid.UUID
		addr *model.Address
	}{{alice, aliceAddr}, {bob, bobAddr}} {
		g.Go(func() error {
			_, err := f.checkout(buyer.id, buyer.addr, model.PaymentCOD, "", line(shirt, 1))
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, service.ErrInsufficientStock):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, placed.Load())
	assert.EqualValues(t, 1, soldOut.Load())
	assert.Equal(t, 0, f.quantity(shirt.ID))
	f.requireLedgerConsistent(shirt.ID)

	orders, err := f.orders.ListOrders(f.ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutCompensatesAppliedLines(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	scarf := f.stock("Silk Scarf", "OS", 1, 50000)
	user, addr := f.customer()

	_, err := f.checkout(user, addr, model.PaymentCOD, "", line(shirt, 2), line(scarf, 2))
	requireKind(t, err, service.KindInsufficientStock)
	assert.Contains(t, service.Message(err), "Silk Scarf (OS)")

	assert.Equal(t, 5, f.quantity(shirt.ID))
	assert.Equal(t, 1, f.quantity(scarf.ID))
	f.requireLedgerConsistent(shirt.ID)
	f.requireLedgerConsistent(scarf.ID)

	orders, err := f.orders.ListOrders(f.ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, f.rec.count(service.EventOrderCreated))
}

func TestCheckoutFromCartClearsIt(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()

	_, err := f.cart.SetItem(f.ctx, service.CartItemCommand{UserID: user, InventoryItemID: shirt.ID, Quantity: 2})
	require.NoError(t, err)
	view, err := f.cart.Get(f.ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 200000, view.SubTotal)

	order := f.mustCheckout(user, addr)
	assert.Equal(t, 2, order.OrderItems[0].Quantity)

	view, err = f.cart.Get(f.ctx, user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.checkout(user, addr, model.PaymentCOD, "")
	requireKind(t, err, service.KindValidation)
}

func TestCartRejectsMoreThanStock(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 2, 100000)
	user := uuid.New()

	_, err := f.cart.SetItem(f.ctx, service.CartItemCommand{UserID: user, InventoryItemID: shirt.ID, Quantity: 3})
	requireKind(t, err, service.KindInsufficientStock)
}

func TestCheckoutWithCouponAndCancelReleasesIt(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	c := f.coupon(service.CreateCouponCommand{Code: "SPRING", Type: model.CouponFixed, Value: 20000, MaxUses: 1})
	user, addr := f.customer()

	res, err := f.checkout(user, addr, model.PaymentCOD, "spring", line(shirt, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 20000, res.Order.Discount)
	assert.EqualValues(t, 110000, res.Order.TotalAfterDiscountAndShipping)

	_, err = f.checkout(user, addr, model.PaymentCOD, "SPRING", line(shirt, 1))
	requireKind(t, err, service.KindCouponInvalid)
	assert.Equal(t, 4, f.quantity(shirt.ID))

	cancelled, err := f.orders.Transition(f.ctx, service.TransitionCommand{
		OrderID: res.Order.ID, Target: model.OrderCancelled, ActorID: "admin@test", Reason: "customer called",
	})
	require.NoError(t, err)
	assert.True(t, cancelled.InventoryRestored)
	assert.Equal(t, "customer called", cancelled.CancelReason)
	assert.Equal(t, 5, f.quantity(shirt.ID))

	stored, err := f.repos.Coupons.FindByID(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
	_, err = f.checkout(user, addr, model.PaymentCOD, "SPRING", line(shirt, 1))
	assert.NoError(t, err)
}

func TestCancelTwiceRestocksOnce(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, line(shirt, 2))

	_, err := f.transition(order.ID, model.OrderCancelled)
	require.NoError(t, err)
	_, err = f.transition(order.ID, model.OrderCancelled)
	require.NoError(t, err)

	assert.Equal(t, 5, f.quantity(shirt.ID))
	assert.Equal(t, 1, f.rec.count(service.EventOrderStatusChanged))
	f.requireLedgerConsistent(shirt.ID)
}

func TestCheckoutVNPayReturnsPaymentURL(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()

	res, err := f.checkout(user, addr, model.PaymentVNPay, "", line(shirt, 1))
	require.NoError(t, err)
	assert.Contains(t, res.PaymentURL, res.Order.OrderCode)
	assert.Empty(t, res.PaymentError)

	f.gateway.fail = true
	res, err = f.checkout(user, addr, model.PaymentVNPay, "", line(shirt, 1))
	require.NoError(t, err)
	assert.Empty(t, res.PaymentURL)
	assert.NotEmpty(t, res.PaymentError)

	kept, err := f.orders.GetOrder(f.ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, kept.Status)
	assert.Equal(t, 3, f.quantity(shirt.ID))
}

func TestCheckoutRequiresOwnAddress(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	_, addr := f.customer()

	_, err := f.checkout(uuid.New(), addr, model.PaymentCOD, "", line(shirt, 1))
	requireKind(t, err, service.KindNotFound)
	assert.Equal(t, 5, f.quantity(shirt.ID))
}

func TestGetOrderForHidesOtherCustomers(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	order := f.mustCheckout(user, addr, line(shirt, 1))

	got, err := f.orders.GetOrderFor(f.ctx, order.ID, user)
	require.NoError(t, err)
	assert.Equal(t, order.OrderCode, got.OrderCode)

	_, err = f.orders.GetOrderFor(f.ctx, order.ID, uuid.New())
	requireKind(t, err, service.KindNotFound)
}

func TestPreviewDoesNotReserveStock(t *testing.T) {
	f := newFixture(t)
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()

	totals, err := f.orders.Preview(f.ctx, service.PreviewCommand{UserID: user, AddressID: addr.ID, Lines: []service.CartLine{line(shirt, 3)}})
	require.NoError(t, err)
	assert.EqualValues(t, 330000, totals.Total)
	assert.Equal(t, 5, f.quantity(shirt.ID))
}
