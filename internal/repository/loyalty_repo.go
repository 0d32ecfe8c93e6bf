package repository

import (
	"context"
	"time"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PointsDraw takes Points off the remainder of one earlier credit row.
type PointsDraw struct {
	CreditID uuid.UUID
	Points   int64
}

type LoyaltyRepository interface {
	FindAccount(ctx context.Context, userID uuid.UUID) (*model.LoyaltyAccount, error)
	// Apply appends entry, lowers the remainder of every drawn credit and writes the account balance
	// as one unit. expectedVersion 0 means the account does not exist yet and is inserted; otherwise
	// the update is conditional on the version. A draw larger than its credit's remainder is ErrConflict.
	Apply(ctx context.Context, account *model.LoyaltyAccount, expectedVersion int64, entry *model.LoyaltyTransaction, draws []PointsDraw) error
	FindTransactionByKey(ctx context.Context, key string) (*model.LoyaltyTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error)
	// OpenCredits returns the user's credit rows with points left, soonest expiry first and
	// non-expiring credits last.
	OpenCredits(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error)
	// FindExpirable returns EARN rows past their expiry that still have points left.
	FindExpirable(ctx context.Context, now time.Time, limit int) ([]model.LoyaltyTransaction, error)
}

type loyaltyRepo struct {
	db *gorm.DB
}

func NewLoyaltyRepo(db *gorm.DB) LoyaltyRepository {
	return &loyaltyRepo{db}
}

func (r *loyaltyRepo) FindAccount(ctx context.Context, userID uuid.UUID) (*model.LoyaltyAccount, error) {
	var acc model.LoyaltyAccount
	if err := r.db.WithContext(ctx).First(&acc, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

func (r *loyaltyRepo) Apply(ctx context.Context, account *model.LoyaltyAccount, expectedVersion int64, entry *model.LoyaltyTransaction, draws []PointsDraw) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			account.Version = 1
			if err := tx.Create(account).Error; err != nil {
				if translate(err) == ErrDuplicateKey {
					return ErrConflict
				}
				return err
			}
		} else {
			res := tx.Model(&model.LoyaltyAccount{}).
				Where("user_id = ? AND version = ?", account.UserID, expectedVersion).
				Updates(map[string]interface{}{
					"balance": account.Balance,
					"version": expectedVersion + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
			account.Version = expectedVersion + 1
		}
		for _, d := range draws {
			res := tx.Model(&model.LoyaltyTransaction{}).
				Where("id = ? AND remaining >= ?", d.CreditID, d.Points).
				Update("remaining", gorm.Expr("remaining - ?", d.Points))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		account.Version = expectedVersion
		return translate(err)
	}
	return nil
}

func (r *loyaltyRepo) FindTransactionByKey(ctx context.Context, key string) (*model.LoyaltyTransaction, error) {
	var entry model.LoyaltyTransaction
	if err := r.db.WithContext(ctx).First(&entry, "idempotency_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *loyaltyRepo) ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	var entries []model.LoyaltyTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&entries).Error
	return entries, translate(err)
}

func (r *loyaltyRepo) OpenCredits(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	var entries []model.LoyaltyTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND remaining > 0", userID).
		Order("expires_at ASC NULLS LAST, seq ASC").
		Find(&entries).Error
	return entries, translate(err)
}

func (r *loyaltyRepo) FindExpirable(ctx context.Context, now time.Time, limit int) ([]model.LoyaltyTransaction, error) {
	var entries []model.LoyaltyTransaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND remaining > 0 AND expires_at IS NOT NULL AND expires_at <= ?", model.LoyaltyEarn, now).
		Order("expires_at ASC, seq ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, translate(err)
}
