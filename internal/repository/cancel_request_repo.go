package repository

import (
	"context"

	"storefront-engine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CancelRequestFilter struct {
	OrderID *uuid.UUID
	Status  model.CancelRequestStatus
}

type CancelRequestRepository interface {
	// Create fails with ErrDuplicateKey if the order already has a pending request.
	Create(ctx context.Context, req *model.CancelRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CancelRequest, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*model.CancelRequest, error)
	List(ctx context.Context, filter CancelRequestFilter) ([]model.CancelRequest, error)
	Update(ctx context.Context, req *model.CancelRequest, expectedVersion int64) error
}

type cancelRequestRepo struct {
	db *gorm.DB
}

func NewCancelRequestRepo(db *gorm.DB) CancelRequestRepository {
	return &cancelRequestRepo{db}
}

func (r *cancelRequestRepo) Create(ctx context.Context, req *model.CancelRequest) error {
	return translate(r.db.WithContext(ctx).Create(req).Error)
}

func (r *cancelRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CancelRequest, error) {
	var req model.CancelRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *cancelRequestRepo) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*model.CancelRequest, error) {
	var req model.CancelRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, model.CancelPending).
		First(&req).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *cancelRequestRepo) List(ctx context.Context, filter CancelRequestFilter) ([]model.CancelRequest, error) {
	var reqs []model.CancelRequest
	q := r.db.WithContext(ctx).Model(&model.CancelRequest{})
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	err := q.Order("created_at DESC").Find(&reqs).Error
	return reqs, translate(err)
}

func (r *cancelRequestRepo) Update(ctx context.Context, req *model.CancelRequest, expectedVersion int64) error {
	req.Version = expectedVersion + 1
	res := r.db.WithContext(ctx).Model(&model.CancelRequest{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "created_by").
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
