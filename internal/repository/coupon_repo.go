package repository

import (
	"context"
	"strings"
	"time"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CouponRepository interface {
	SoftDeleter[model.Coupon]
	Create(ctx context.Context, coupon *model.Coupon) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
	FindByCode(ctx context.Context, code string) (*model.Coupon, error)
	List(ctx context.Context) ([]model.Coupon, error)
	HasUsage(ctx context.Context, couponID, userID uuid.UUID) (bool, error)
	// Redeem increments used_count while below max_uses and records the user's usage, as one unit.
	// ErrConflict means the coupon was exhausted (or deleted) meanwhile; ErrDuplicateKey that the user already used it.
	Redeem(ctx context.Context, couponID, userID, orderID uuid.UUID) error
	FindUsageByOrder(ctx context.Context, orderID uuid.UUID) (*model.CouponUsage, error)
	// Release undoes Redeem for the given order.
	Release(ctx context.Context, couponID, userID, orderID uuid.UUID) error
}

type couponRepo struct {
	SoftDeleter[model.Coupon]
	db *gorm.DB
}

func NewCouponRepo(db *gorm.DB) CouponRepository {
	return &couponRepo{SoftDeleter: NewSoftDeleter[model.Coupon](db), db: db}
}

func (r *couponRepo) Create(ctx context.Context, coupon *model.Coupon) error {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	return translate(r.db.WithContext(ctx).Create(coupon).Error)
}

func (r *couponRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &coupon, nil
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.db.WithContext(ctx).First(&coupon, "code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if err != nil {
		return nil, translate(err)
	}
	return &coupon, nil
}

func (r *couponRepo) List(ctx context.Context) ([]model.Coupon, error) {
	var coupons []model.Coupon
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error
	return coupons, translate(err)
}

func (r *couponRepo) HasUsage(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count > 0, translate(err)
}

func (r *couponRepo) FindUsageByOrder(ctx context.Context, orderID uuid.UUID) (*model.CouponUsage, error) {
	var usage model.CouponUsage
	if err := r.db.WithContext(ctx).First(&usage, "order_id = ?", orderID).Error; err != nil {
		return nil, translate(err)
	}
	return &usage, nil
}

func (r *couponRepo) Redeem(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Coupon{}).
			Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", couponID).
			Update("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.Create(&model.CouponUsage{
			ID:        uuid.New(),
			CouponID:  couponID,
			UserID:    userID,
			OrderID:   orderID,
			CreatedAt: time.Now(),
		}).Error
	}))
}

func (r *couponRepo) Release(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("coupon_id = ? AND user_id = ? AND order_id = ?", couponID, userID, orderID).
			Delete(&model.CouponUsage{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Unscoped().Model(&model.Coupon{}).
			Where("id = ? AND used_count > 0", couponID).
			Update("used_count", gorm.Expr("used_count - 1")).Error
	}))
}
