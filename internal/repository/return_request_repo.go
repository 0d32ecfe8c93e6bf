package repository

import (
	"context"
	"time"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReturnRequestFilter struct {
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Status     model.ReturnStatus
}

type ReturnRequestRepository interface {
	// Create inserts the request, its items and one claim per line item in one transaction.
	// A claim already held by another active request yields ErrDuplicateKey and nothing is written.
	Create(ctx context.Context, req *model.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ReturnRequest, error)
	List(ctx context.Context, filter ReturnRequestFilter) ([]model.ReturnRequest, error)
	Update(ctx context.Context, req *model.ReturnRequest, expectedVersion int64) error
	// ReleaseClaims frees the line item claims once the request is terminal.
	ReleaseClaims(ctx context.Context, requestID uuid.UUID) error
}

type returnRequestRepo struct {
	db *gorm.DB
}

func NewReturnRequestRepo(db *gorm.DB) ReturnRequestRepository {
	return &returnRequestRepo{db}
}

func (r *returnRequestRepo) Create(ctx context.Context, req *model.ReturnRequest) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		claims := make([]model.ReturnClaim, 0, len(req.Items))
		for _, key := range req.ClaimKeys() {
			claims = append(claims, model.ReturnClaim{Key: key, ReturnRequestID: req.ID, CreatedAt: now})
		}
		if len(claims) > 0 {
			if err := tx.Create(&claims).Error; err != nil {
				return err
			}
		}
		return tx.Create(req).Error
	}))
}

func (r *returnRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ReturnRequest, error) {
	var req model.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *returnRequestRepo) List(ctx context.Context, filter ReturnRequestFilter) ([]model.ReturnRequest, error) {
	var reqs []model.ReturnRequest
	q := r.db.WithContext(ctx).Preload("Items")
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	err := q.Order("created_at DESC").Find(&reqs).Error
	return reqs, translate(err)
}

func (r *returnRequestRepo) Update(ctx context.Context, req *model.ReturnRequest, expectedVersion int64) error {
	req.Version = expectedVersion + 1
	res := r.db.WithContext(ctx).Model(&model.ReturnRequest{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "created_by", "Items").
		Updates(req)
	if res.Error != nil {
		req.Version = expectedVersion
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		req.Version = expectedVersion
		return ErrConflict
	}
	return nil
}

func (r *returnRequestRepo) ReleaseClaims(ctx context.Context, requestID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).
		Where("return_request_id = ?", requestID).
		Delete(&model.ReturnClaim{}).Error)
}
