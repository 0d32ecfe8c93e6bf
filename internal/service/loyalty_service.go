package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PointsCommand moves points on one account. Points is the unsigned amount; the type decides the sign.
// Clamp caps a deduction at the available balance instead of failing. A deduction draws on
// DrawFrom first, then on the other credits soonest expiry first; an EXPIRE draws on DrawFrom only.
type PointsCommand struct {
	UserID         uuid.UUID           `validate:"uuid_required"`
	Type           model.LoyaltyTxType `validate:"required,oneof=EARN REDEEM EXPIRE ADJUST"`
	Points         int64               `validate:"gte=0"`
	Source         model.LoyaltySource `validate:"required,oneof=ORDER MANUAL"`
	Reference      string
	ExpiresAt      *time.Time
	IdempotencyKey string
	Note           string
	PerformedBy    string
	Clamp          bool
	DrawFrom       uuid.UUID
}

type AdjustPointsCommand struct {
	UserID      uuid.UUID `json:"user_id" validate:"uuid_required"`
	Points      int64     `json:"points" validate:"ne=0"`
	Note        string    `json:"note" validate:"required"`
	PerformedBy string    `json:"-"`
}

type LoyaltySummary struct {
	UserID  uuid.UUID                  `json:"user_id"`
	Balance int64                      `json:"balance"`
	History []model.LoyaltyTransaction `json:"history"`
}

type LoyaltyService interface {
	CreditPoints(ctx context.Context, cmd PointsCommand) (*model.LoyaltyTransaction, error)
	DeductPoints(ctx context.Context, cmd PointsCommand) (*model.LoyaltyTransaction, error)
	Adjust(ctx context.Context, cmd AdjustPointsCommand) (*model.LoyaltyTransaction, error)

	// EarnForOrder credits floor(total / VND per point) once per order. Returns nil when nothing is earned.
	EarnForOrder(ctx context.Context, order *model.Order) (*model.LoyaltyTransaction, error)
	// ReverseForRefund takes back the share of an order's earned points matching refundAmount.
	ReverseForRefund(ctx context.Context, order *model.Order, refundAmount int64, key string) (*model.LoyaltyTransaction, error)
	// ExpirePoints writes an EXPIRE row for what is left of every EARN row past its expiry and returns
	// how many were expired.
	ExpirePoints(ctx context.Context, now time.Time) (int, error)

	Summary(ctx context.Context, userID uuid.UUID) (*LoyaltySummary, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
}

type LoyaltyDeps struct {
	Repo        repository.LoyaltyRepository
	Notifier    Notifier
	Logger      *zap.Logger
	Retry       RetryPolicy
	VNDPerPoint int64
	ExpiryDays  int
	Clock       func() time.Time
}

type loyaltyService struct {
	repo        repository.LoyaltyRepository
	retry       RetryPolicy
	vndPerPoint int64
	expiryDays  int
	now         func() time.Time
	sideEffects
}

const expireBatchSize = 100

func NewLoyaltyService(deps LoyaltyDeps) LoyaltyService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.VNDPerPoint <= 0 {
		deps.VNDPerPoint = 10000
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &loyaltyService{
		repo:        deps.Repo,
		retry:       deps.Retry,
		vndPerPoint: deps.VNDPerPoint,
		expiryDays:  deps.ExpiryDays,
		now:         deps.Clock,
		sideEffects: newSideEffects(nil, deps.Notifier, deps.Logger),
	}
}

func EarnKey(orderID uuid.UUID) string {
	return fmt.Sprintf("order:%s:earn", orderID)
}

func (s *loyaltyService) CreditPoints(ctx context.Context, cmd PointsCommand) (*model.LoyaltyTransaction, error) {
	if cmd.Type != model.LoyaltyEarn && cmd.Type != model.LoyaltyAdjust {
		return nil, newError(KindValidation, "%s cannot credit points", cmd.Type)
	}
	return s.apply(ctx, cmd, cmd.Points)
}

func (s *loyaltyService) DeductPoints(ctx context.Context, cmd PointsCommand) (*model.LoyaltyTransaction, error) {
	if cmd.Type == model.LoyaltyEarn {
		return nil, newError(KindValidation, "EARN cannot deduct points")
	}
	return s.apply(ctx, cmd, -cmd.Points)
}

func (s *loyaltyService) apply(ctx context.Context, cmd PointsCommand, delta int64) (*model.LoyaltyTransaction, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	if cmd.IdempotencyKey != "" {
		if entry, err := s.repo.FindTransactionByKey(ctx, cmd.IdempotencyKey); err == nil {
			return entry, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	var entry *model.LoyaltyTransaction
	err := s.retry.run(ctx, func() error {
		account, err := s.repo.FindAccount(ctx, cmd.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			account = &model.LoyaltyAccount{UserID: cmd.UserID}
		} else if err != nil {
			return err
		}

		points := delta
		if cmd.Clamp && points < 0 && -points > account.Balance {
			points = -account.Balance
		}
		before := account.Balance
		if before+points < 0 {
			return newError(KindInsufficientPoints, "balance %d is not enough to deduct %d points", before, -points)
		}
		var draws []repository.PointsDraw
		if points < 0 {
			var drawn int64
			draws, drawn, err = s.drawPlan(ctx, cmd, -points)
			if err != nil {
				return err
			}
			if cmd.Type == model.LoyaltyExpire {
				points = -drawn
			}
		}
		if points == 0 {
			entry = nil
			return nil
		}
		after := before + points

		entry = &model.LoyaltyTransaction{
			ID:            uuid.New(),
			UserID:        cmd.UserID,
			Type:          cmd.Type,
			Points:        points,
			BalanceBefore: before,
			BalanceAfter:  after,
			Source:        cmd.Source,
			Reference:     cmd.Reference,
			ExpiresAt:     cmd.ExpiresAt,
			Note:          cmd.Note,
			PerformedBy:   cmd.PerformedBy,
		}
		if entry.IsCredit() {
			entry.Remaining = points
		}
		if cmd.IdempotencyKey != "" {
			key := cmd.IdempotencyKey
			entry.IdempotencyKey = &key
		}
		if entry.BalanceBefore+entry.Points != entry.BalanceAfter {
			return fmt.Errorf("loyalty: unbalanced entry for %s", cmd.UserID)
		}
		account.Balance = after
		return s.repo.Apply(ctx, account, account.Version, entry, draws)
	})
	if errors.Is(err, repository.ErrDuplicateKey) && cmd.IdempotencyKey != "" {
		return s.repo.FindTransactionByKey(ctx, cmd.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// drawPlan spreads need points over the user's open credits and returns the draws with their total.
// The total falls short of need only when the credits hold less, which for an EXPIRE means what is
// left of DrawFrom.
func (s *loyaltyService) drawPlan(ctx context.Context, cmd PointsCommand, need int64) ([]repository.PointsDraw, int64, error) {
	credits, err := s.repo.OpenCredits(ctx, cmd.UserID)
	if err != nil {
		return nil, 0, err
	}
	ordered := make([]model.LoyaltyTransaction, 0, len(credits))
	for _, c := range credits {
		if c.ID == cmd.DrawFrom {
			ordered = append(ordered, c)
		}
	}
	if cmd.Type != model.LoyaltyExpire {
		for _, c := range credits {
			if c.ID != cmd.DrawFrom {
				ordered = append(ordered, c)
			}
		}
	}

	var draws []repository.PointsDraw
	var drawn int64
	for _, c := range ordered {
		if drawn == need {
			break
		}
		take := min(c.Remaining, need-drawn)
		draws = append(draws, repository.PointsDraw{CreditID: c.ID, Points: take})
		drawn += take
	}
	return draws, drawn, nil
}

func (s *loyaltyService) Adjust(ctx context.Context, cmd AdjustPointsCommand) (*model.LoyaltyTransaction, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	points := PointsCommand{
		UserID:      cmd.UserID,
		Type:        model.LoyaltyAdjust,
		Source:      model.LoyaltySourceManual,
		Note:        cmd.Note,
		PerformedBy: cmd.PerformedBy,
	}
	if cmd.Points > 0 {
		points.Points = cmd.Points
		return s.CreditPoints(ctx, points)
	}
	points.Points = -cmd.Points
	return s.DeductPoints(ctx, points)
}

// pointsFor converts an amount of money into whole points, rounding down.
func (s *loyaltyService) pointsFor(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(s.vndPerPoint)).Floor().IntPart()
}

func (s *loyaltyService) EarnForOrder(ctx context.Context, order *model.Order) (*model.LoyaltyTransaction, error) {
	points := s.pointsFor(order.TotalAfterDiscountAndShipping)
	if points == 0 {
		return nil, nil
	}
	cmd := PointsCommand{
		UserID:         order.UserID,
		Type:           model.LoyaltyEarn,
		Points:         points,
		Source:         model.LoyaltySourceOrder,
		Reference:      order.ID.String(),
		IdempotencyKey: EarnKey(order.ID),
		Note:           "order " + order.OrderCode,
		PerformedBy:    "system",
	}
	if s.expiryDays > 0 {
		exp := s.now().AddDate(0, 0, s.expiryDays)
		cmd.ExpiresAt = &exp
	}
	entry, err := s.CreditPoints(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, order.UserID, TemplatePointsEarned, map[string]any{
		"order_code": order.OrderCode,
		"points":     entry.Points,
		"balance":    entry.BalanceAfter,
	})
	return entry, nil
}

func (s *loyaltyService) ReverseForRefund(ctx context.Context, order *model.Order, refundAmount int64, key string) (*model.LoyaltyTransaction, error) {
	earned, err := s.repo.FindTransactionByKey(ctx, EarnKey(order.ID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	total := order.TotalAfterDiscountAndShipping
	if total <= 0 || refundAmount <= 0 {
		return nil, nil
	}
	if refundAmount > total {
		refundAmount = total
	}
	points := decimal.NewFromInt(earned.Points).
		Mul(decimal.NewFromInt(refundAmount)).
		Div(decimal.NewFromInt(total)).
		Floor().IntPart()
	if points == 0 {
		return nil, nil
	}
	return s.DeductPoints(ctx, PointsCommand{
		UserID:         order.UserID,
		Type:           model.LoyaltyAdjust,
		Points:         points,
		Source:         model.LoyaltySourceOrder,
		Reference:      order.ID.String(),
		IdempotencyKey: key,
		Note:           "refund on order " + order.OrderCode,
		PerformedBy:    "system",
		Clamp:          true,
		DrawFrom:       earned.ID,
	})
}

func (s *loyaltyService) ExpirePoints(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		batch, err := s.repo.FindExpirable(ctx, now, expireBatchSize)
		if err != nil {
			return expired, err
		}
		if len(batch) == 0 {
			return expired, nil
		}
		for _, earn := range batch {
			entry, err := s.DeductPoints(ctx, PointsCommand{
				UserID:         earn.UserID,
				Type:           model.LoyaltyExpire,
				Points:         earn.Remaining,
				Source:         earn.Source,
				Reference:      earn.ID.String(),
				IdempotencyKey: "expire:" + earn.ID.String(),
				Note:           "points expired",
				PerformedBy:    "system",
				Clamp:          true,
				DrawFrom:       earn.ID,
			})
			if err != nil {
				return expired, err
			}
			if entry != nil {
				expired++
			}
		}
		if len(batch) < expireBatchSize {
			return expired, nil
		}
	}
}

func (s *loyaltyService) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccount(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *loyaltyService) Summary(ctx context.Context, userID uuid.UUID) (*LoyaltySummary, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &LoyaltySummary{UserID: userID, Balance: balance, History: history}, nil
}
