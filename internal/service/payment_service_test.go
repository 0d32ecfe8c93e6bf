package service_test

import (
	"strconv"
	"testing"

	"storefront-engine/internal/model"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callback(order *model.Order, txn, code string, amount int64) map[string]string {
	return map[string]string{
		"sig":    "ok",
		"ref":    order.OrderCode,
		"txn":    txn,
		"code":   code,
		"amount": strconv.FormatInt(amount, 10),
	}
}

func (f *fixture) onlineOrder() *model.Order {
	f.t.Helper()
	shirt := f.stock("Linen Shirt", "M", 5, 100000)
	user, addr := f.customer()
	res, err := f.checkout(user, addr, model.PaymentVNPay, "", line(shirt, 1))
	require.NoError(f.t, err)
	return res.Order
}

func TestCallbackMarksPaidOnce(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	out, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "00", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, model.PaymentPaid, out.Order.PaymentStatus)
	assert.Equal(t, "T1", out.Order.PaymentTransactionID)

	again, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "00", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 1, f.rec.count(service.EventOrderPaymentChanged))
}

func TestCallbackAmountMismatchFails(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	out, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "00", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, out.Order.PaymentStatus)
}

func TestLateFailureNeverDowngradesPaid(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	_, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "00", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	out, err := f.payments.HandleCallback(f.ctx, callback(order, "T2", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, model.PaymentPaid, out.Order.PaymentStatus)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()
	params := callback(order, "T1", "00", order.TotalAfterDiscountAndShipping)
	params["sig"] = "forged"

	_, err := f.payments.HandleCallback(f.ctx, params)
	requireKind(t, err, service.KindValidation)

	params["sig"] = "ok"
	params["ref"] = "ORD-UNKNOWN"
	_, err = f.payments.HandleCallback(f.ctx, params)
	requireKind(t, err, service.KindNotFound)
}

func TestRetryPaymentResetsFailed(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	_, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)

	url, err := f.payments.RetryPayment(f.ctx, order.ID, order.UserID, "127.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, url, order.OrderCode)

	current, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, current.PaymentStatus)

	_, err = f.payments.RetryPayment(f.ctx, order.ID, uuid.New(), "127.0.0.1")
	requireKind(t, err, service.KindForbidden)

	_, err = f.payments.HandleCallback(f.ctx, callback(order, "T2", "00", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	_, err = f.payments.RetryPayment(f.ctx, order.ID, order.UserID, "127.0.0.1")
	requireKind(t, err, service.KindValidation)
}

func TestUnnumberedFailuresAreNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	out, err := f.payments.HandleCallback(f.ctx, callback(order, "0", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.True(t, out.Applied)

	_, err = f.payments.RetryPayment(f.ctx, order.ID, order.UserID, "127.0.0.1")
	require.NoError(t, err)

	// the second attempt is declined the same way and still reaches the order
	out, err = f.payments.HandleCallback(f.ctx, callback(order, "0", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.True(t, out.Applied)
	assert.Equal(t, model.PaymentFailed, out.Order.PaymentStatus)

	notes, err := f.repos.Payments.ListByOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestNumberedCallbackReplayIsIgnored(t *testing.T) {
	f := newFixture(t)
	order := f.onlineOrder()

	_, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	_, err = f.payments.RetryPayment(f.ctx, order.ID, order.UserID, "127.0.0.1")
	require.NoError(t, err)

	replay, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "24", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, model.PaymentPending, replay.Order.PaymentStatus)

	// same transaction reported again with a different outcome is a separate notification
	settled, err := f.payments.HandleCallback(f.ctx, callback(order, "T1", "00", order.TotalAfterDiscountAndShipping))
	require.NoError(t, err)
	assert.True(t, settled.Applied)
	assert.Equal(t, model.PaymentPaid, settled.Order.PaymentStatus)
}
