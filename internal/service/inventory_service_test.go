package service_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"storefront-engine/internal/model"
	"storefront-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestApplyTransactionRecordsSnapshots(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)

	updated, entry, err := f.inventory.Sale(f.ctx, service.MovementCommand{ItemID: item.ID, Quantity: 3, PerformedBy: "test"})
	require.NoError(t, err)

	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, 10, entry.QuantityBefore)
	assert.Equal(t, -3, entry.QuantityChange)
	assert.Equal(t, 7, entry.QuantityAfter)
	assert.Equal(t, model.TxOut, entry.Type)
	assert.Equal(t, model.ReasonSale, entry.Reason)
	f.requireLedgerConsistent(item.ID)
}

func TestApplyTransactionRejectsSignMismatch(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)

	cases := []service.ApplyCommand{
		{ItemID: item.ID, Type: model.TxIn, Reason: model.ReasonRestock, QuantityChange: -1},
		{ItemID: item.ID, Type: model.TxOut, Reason: model.ReasonSale, QuantityChange: 2},
		{ItemID: item.ID, Type: model.TxOut, Reason: model.ReasonRestock, QuantityChange: -1},
		{ItemID: item.ID, Type: model.TxAdjust, Reason: model.ReasonAdjustment},
	}
	for _, cmd := range cases {
		_, _, err := f.inventory.ApplyTransaction(f.ctx, cmd)
		requireKind(t, err, service.KindValidation)
	}
	assert.Equal(t, 10, f.quantity(item.ID))
}

func TestApplyTransactionInsufficientStock(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 2, 100000)

	_, _, err := f.inventory.Sale(f.ctx, service.MovementCommand{ItemID: item.ID, Quantity: 3})
	requireKind(t, err, service.KindInsufficientStock)
	assert.True(t, errors.Is(err, service.ErrInsufficientStock))
	assert.Contains(t, service.Message(err), "Linen Shirt (M)")

	assert.Equal(t, 2, f.quantity(item.ID))
	txs, err := f.inventory.ListTransactions(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestApplyTransactionIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)
	cmd := service.MovementCommand{ItemID: item.ID, Quantity: 4, IdempotencyKey: "order:x:line:0:sale"}

	_, first, err := f.inventory.Sale(f.ctx, cmd)
	require.NoError(t, err)
	updated, second, err := f.inventory.Sale(f.ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 6, updated.Quantity)
	f.requireLedgerConsistent(item.ID)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)

	var sold, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, _, err := f.inventory.Sale(f.ctx, service.MovementCommand{ItemID: item.ID, Quantity: 1})
			switch {
			case err == nil:
				sold.Add(1)
			case errors.Is(err, service.ErrInsufficientStock):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 10, sold.Load())
	assert.EqualValues(t, 15, rejected.Load())
	assert.Equal(t, 0, f.quantity(item.ID))
	f.requireLedgerConsistent(item.ID)
}

func TestRestockBlendsAverageCost(t *testing.T) {
	f := newFixture(t)
	item, err := f.inventory.CreateItem(f.ctx, service.CreateItemCommand{
		ProductID:       uuidFor(1),
		VariantID:       uuidFor(2),
		Size:            "L",
		ProductName:     "Denim Jacket",
		CostPrice:       100,
		SellingPrice:    300,
		InitialQuantity: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100, item.AverageCostPrice)

	updated, _, err := f.inventory.Restock(f.ctx, service.MovementCommand{ItemID: item.ID, Quantity: 10, UnitCost: 200})
	require.NoError(t, err)
	assert.EqualValues(t, 150, updated.AverageCostPrice)
	assert.Equal(t, 20, updated.Quantity)
}

func TestAdjustToAbsoluteQuantity(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)
	target := 4

	_, entry, err := f.inventory.Adjust(f.ctx, service.AdjustCommand{ItemID: item.ID, SetQuantity: &target, Note: "stock take"})
	require.NoError(t, err)
	assert.Equal(t, model.TxAdjust, entry.Type)
	assert.Equal(t, -6, entry.QuantityChange)
	assert.Equal(t, 4, f.quantity(item.ID))
	assert.Equal(t, 1, f.rec.count(service.EventStockLow))
	f.requireLedgerConsistent(item.ID)
}

func TestSetPricingRecomputesFinalPrice(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 10, 100000)

	updated, err := f.inventory.SetPricing(f.ctx, service.PricingCommand{
		ItemID:          item.ID,
		CostPrice:       90000,
		SellingPrice:    200000,
		DiscountPercent: 15,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 170000, updated.FinalPrice)
	assert.Equal(t, 10, updated.Quantity)
}

func TestCreateItemRejectsDuplicateUnit(t *testing.T) {
	f := newFixture(t)
	item := f.stock("Linen Shirt", "M", 1, 100000)

	_, err := f.inventory.CreateItem(f.ctx, service.CreateItemCommand{
		ProductID:   item.ProductID,
		VariantID:   item.VariantID,
		Size:        "M",
		ProductName: "Linen Shirt",
	})
	requireKind(t, err, service.KindValidation)
}
