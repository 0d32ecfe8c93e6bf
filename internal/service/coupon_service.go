package service

import (
	"context"
	"errors"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
)

type CreateCouponCommand struct {
	Code              string           `json:"code" validate:"required,max=40"`
	Type              model.CouponType `json:"type" validate:"required,oneof=percent fixed"`
	Value             int64            `json:"value" validate:"gt=0"`
	MaxDiscountAmount int64            `json:"max_discount_amount" validate:"gte=0"`
	MinOrderValue     int64            `json:"min_order_value" validate:"gte=0"`
	MaxUses           int              `json:"max_uses" validate:"gte=0"`
	StartsAt          *time.Time       `json:"starts_at"`
	ExpiresAt         *time.Time       `json:"expires_at"`
	PerformedBy       string           `json:"-"`
}

type CouponService interface {
	Create(ctx context.Context, cmd CreateCouponCommand) (*model.Coupon, error)
	List(ctx context.Context, includeDeleted bool) ([]model.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID, deletedBy string) error
	Restore(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
}

type couponService struct {
	repo repository.CouponRepository
}

func NewCouponService(repo repository.CouponRepository) CouponService {
	return &couponService{repo: repo}
}

func (s *couponService) Create(ctx context.Context, cmd CreateCouponCommand) (*model.Coupon, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	if cmd.Type == model.CouponPercent && cmd.Value > 100 {
		return nil, newError(KindValidation, "percent coupons cannot exceed 100")
	}
	if cmd.StartsAt != nil && cmd.ExpiresAt != nil && cmd.ExpiresAt.Before(*cmd.StartsAt) {
		return nil, newError(KindValidation, "coupon expires before it starts")
	}
	coupon := &model.Coupon{
		BaseModel:         model.BaseModel{ID: uuid.New(), CreatedBy: cmd.PerformedBy, UpdatedBy: cmd.PerformedBy},
		Code:              cmd.Code,
		Type:              cmd.Type,
		Value:             cmd.Value,
		MaxDiscountAmount: cmd.MaxDiscountAmount,
		MinOrderValue:     cmd.MinOrderValue,
		MaxUses:           cmd.MaxUses,
		StartsAt:          cmd.StartsAt,
		ExpiresAt:         cmd.ExpiresAt,
		IsActive:          true,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, newError(KindValidation, "coupon code %s already exists", coupon.Code)
		}
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) List(ctx context.Context, includeDeleted bool) ([]model.Coupon, error) {
	if includeDeleted {
		return s.repo.ListWithDeleted(ctx)
	}
	return s.repo.List(ctx)
}

func (s *couponService) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	return notFound(s.repo.SoftDelete(ctx, id, deletedBy), "coupon")
}

func (s *couponService) Restore(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, notFound(err, "deleted coupon")
	}
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "coupon")
	}
	return coupon, nil
}
