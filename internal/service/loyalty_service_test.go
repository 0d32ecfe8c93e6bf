package service_test

import (
	"sync/atomic"
	"testing"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEarnForOrderFloorsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order := &model.Order{
		BaseModel:                     model.BaseModel{ID: uuid.New()},
		OrderCode:                     "ORD-TEST",
		UserID:                        uuid.New(),
		TotalAfterDiscountAndShipping: 239999,
	}

	first, err := f.loyalty.EarnForOrder(f.ctx, order)
	require.NoError(t, err)
	assert.EqualValues(t, 23, first.Points)
	require.NotNil(t, first.ExpiresAt)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 365), *first.ExpiresAt)

	second, err := f.loyalty.EarnForOrder(f.ctx, order)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := f.loyalty.Balance(f.ctx, order.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 23, balance)

	small := &model.Order{BaseModel: model.BaseModel{ID: uuid.New()}, UserID: order.UserID, TotalAfterDiscountAndShipping: 9999}
	none, err := f.loyalty.EarnForOrder(f.ctx, small)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAdjustPoints(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	_, err := f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: -5, Note: "correction"})
	requireKind(t, err, service.KindInsufficientPoints)

	credit, err := f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: 10, Note: "goodwill", PerformedBy: "admin@test"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, credit.BalanceBefore)
	assert.EqualValues(t, 10, credit.BalanceAfter)

	debit, err := f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: -4, Note: "correction"})
	require.NoError(t, err)
	assert.EqualValues(t, -4, debit.Points)
	assert.EqualValues(t, 6, debit.BalanceAfter)

	_, err = f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: 0, Note: "noop"})
	requireKind(t, err, service.KindValidation)

	summary, err := f.loyalty.Summary(f.ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 6, summary.Balance)
	assert.Len(t, summary.History, 2)
}

func TestExpirePoints(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	order := &model.Order{BaseModel: model.BaseModel{ID: uuid.New()}, UserID: user, TotalAfterDiscountAndShipping: 500000}
	_, err := f.loyalty.EarnForOrder(f.ctx, order)
	require.NoError(t, err)

	// spend some before expiry so the clamp kicks in
	_, err = f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: -20, Note: "redeemed"})
	require.NoError(t, err)

	n, err := f.loyalty.ExpirePoints(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	later := f.clock.Now().AddDate(0, 0, 366)
	n, err = f.loyalty.ExpirePoints(f.ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	balance, err := f.loyalty.Balance(f.ctx, user)
	require.NoError(t, err)
	assert.Zero(t, balance)

	n, err = f.loyalty.ExpirePoints(f.ctx, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreditRejectsDeductionTypes(t *testing.T) {
	f := newFixture(t)
	_, err := f.loyalty.CreditPoints(f.ctx, service.PointsCommand{
		UserID: uuid.New(), Type: model.LoyaltyExpire, Points: 5, Source: model.LoyaltySourceManual,
	})
	requireKind(t, err, service.KindValidation)
}

func pointsOrder(user uuid.UUID, total int64) *model.Order {
	return &model.Order{BaseModel: model.BaseModel{ID: uuid.New()}, OrderCode: "ORD-PTS", UserID: user, TotalAfterDiscountAndShipping: total}
}

// requirePointsConsistent checks that the balance equals both the ledger sum and what is left on credits.
func requirePointsConsistent(t *testing.T, f *fixture, user uuid.UUID) int64 {
	t.Helper()
	summary, err := f.loyalty.Summary(f.ctx, user)
	require.NoError(t, err)
	var sum, remaining int64
	for _, entry := range summary.History {
		sum += entry.Points
		remaining += entry.Remaining
		assert.GreaterOrEqual(t, entry.Remaining, int64(0))
		if !entry.IsCredit() {
			assert.Zero(t, entry.Remaining, "debit rows carry no remainder")
		}
	}
	assert.Equal(t, summary.Balance, sum)
	assert.Equal(t, summary.Balance, remaining)
	return summary.Balance
}

func TestExpiryAfterFullRefundKeepsNewerPoints(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	first := pointsOrder(user, 1000000)
	_, err := f.loyalty.EarnForOrder(f.ctx, first)
	require.NoError(t, err)

	reversal, err := f.loyalty.ReverseForRefund(f.ctx, first, first.TotalAfterDiscountAndShipping, "return:a:points")
	require.NoError(t, err)
	assert.EqualValues(t, -100, reversal.Points)

	f.clock.Advance(200 * 24 * time.Hour)
	_, err = f.loyalty.EarnForOrder(f.ctx, pointsOrder(user, 500000))
	require.NoError(t, err)

	// the first order's points are due, but the refund already took all of them
	n, err := f.loyalty.ExpirePoints(f.ctx, f.clock.Now().AddDate(0, 0, 170))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 50, requirePointsConsistent(t, f, user))

	n, err = f.loyalty.ExpirePoints(f.ctx, f.clock.Now().AddDate(0, 0, 366))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, requirePointsConsistent(t, f, user))
}

func TestExpiryAfterPartialRefundAndRedeem(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	order := pointsOrder(user, 1000000)
	earn, err := f.loyalty.EarnForOrder(f.ctx, order)
	require.NoError(t, err)

	_, err = f.loyalty.ReverseForRefund(f.ctx, order, 400000, "return:b:points")
	require.NoError(t, err)
	_, err = f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: 10, Note: "goodwill"})
	require.NoError(t, err)

	// redemptions use the points that expire first
	_, err = f.loyalty.DeductPoints(f.ctx, service.PointsCommand{
		UserID: user, Type: model.LoyaltyRedeem, Points: 15, Source: model.LoyaltySourceOrder,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 55, requirePointsConsistent(t, f, user))

	n, err := f.loyalty.ExpirePoints(f.ctx, earn.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	summary, err := f.loyalty.Summary(f.ctx, user)
	require.NoError(t, err)
	last := summary.History[len(summary.History)-1]
	assert.Equal(t, model.LoyaltyExpire, last.Type)
	assert.EqualValues(t, -45, last.Points)
	assert.EqualValues(t, 10, requirePointsConsistent(t, f, user))
}

func TestConcurrentRedeemAndExpiryStayConsistent(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	earn, err := f.loyalty.EarnForOrder(f.ctx, pointsOrder(user, 1000000))
	require.NoError(t, err)
	_, err = f.loyalty.Adjust(f.ctx, service.AdjustPointsCommand{UserID: user, Points: 30, Note: "goodwill"})
	require.NoError(t, err)

	var redeemed atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.loyalty.DeductPoints(f.ctx, service.PointsCommand{
				UserID: user, Type: model.LoyaltyRedeem, Points: 10, Source: model.LoyaltySourceOrder,
			})
			if err == nil {
				redeemed.Add(10)
				return nil
			}
			if service.KindOf(err) == service.KindInsufficientPoints {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		_, err := f.loyalty.ExpirePoints(f.ctx, earn.ExpiresAt.Add(time.Minute))
		return err
	})
	require.NoError(t, g.Wait())

	balance := requirePointsConsistent(t, f, user)
	assert.LessOrEqual(t, balance, int64(130)-redeemed.Load())

	n, err := f.loyalty.ExpirePoints(f.ctx, earn.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
