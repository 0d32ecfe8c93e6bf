package service

import (
	"context"
	"errors"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CancelRequestCommand struct {
	OrderID uuid.UUID `json:"-" validate:"uuid_required"`
	UserID  uuid.UUID `json:"-" validate:"uuid_required"`
	Reason  string    `json:"reason" validate:"required,max=1000"`
}

type ResolveCancelCommand struct {
	RequestID     uuid.UUID                 `json:"-" validate:"uuid_required"`
	Decision      model.CancelRequestStatus `json:"status" validate:"required,oneof=approved rejected"`
	AdminResponse string                    `json:"admin_response" validate:"max=1000"`
	ActorID       string                    `json:"-"`
}

type AdminCancelCommand struct {
	OrderID uuid.UUID `json:"-" validate:"uuid_required"`
	Reason  string    `json:"reason" validate:"required,max=1000"`
	ActorID string    `json:"-"`
}

type CancellationService interface {
	RequestCancellation(ctx context.Context, cmd CancelRequestCommand) (*model.CancelRequest, error)
	ResolveCancellation(ctx context.Context, cmd ResolveCancelCommand) (*model.CancelRequest, error)
	AdminCancelOrder(ctx context.Context, cmd AdminCancelCommand) (*model.Order, error)
	List(ctx context.Context, filter repository.CancelRequestFilter) ([]model.CancelRequest, error)
}

type CancellationDeps struct {
	Requests repository.CancelRequestRepository
	Orders   repository.OrderRepository
	OrderSvc OrderService
	Events   EventPublisher
	Notifier Notifier
	Logger   *zap.Logger
	Retry    RetryPolicy
	Clock    func() time.Time
}

type cancellationService struct {
	requests repository.CancelRequestRepository
	orders   repository.OrderRepository
	orderSvc OrderService
	retry    RetryPolicy
	now      func() time.Time
	sideEffects
}

func NewCancellationService(deps CancellationDeps) CancellationService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &cancellationService{
		requests:    deps.Requests,
		orders:      deps.Orders,
		orderSvc:    deps.OrderSvc,
		retry:       deps.Retry,
		now:         deps.Clock,
		sideEffects: newSideEffects(deps.Events, deps.Notifier, deps.Logger),
	}
}

func cancellable(status model.OrderStatus) bool {
	return status == model.OrderPending || status == model.OrderConfirmed
}

func (s *cancellationService) RequestCancellation(ctx context.Context, cmd CancelRequestCommand) (*model.CancelRequest, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if order.UserID != cmd.UserID {
		return nil, newError(KindForbidden, "order %s does not belong to you", order.OrderCode)
	}
	if !cancellable(order.Status) {
		return nil, newError(KindNotCancellable, "order %s is %s and can no longer be cancelled", order.OrderCode, order.Status)
	}

	actor := cmd.UserID.String()
	req := &model.CancelRequest{
		BaseModel:   model.BaseModel{CreatedBy: actor, UpdatedBy: actor},
		OrderID:     order.ID,
		RequestedBy: cmd.UserID,
		Reason:      cmd.Reason,
		Status:      model.CancelPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, newError(KindConflict, "a cancellation request for order %s is already pending", order.OrderCode)
		}
		return nil, err
	}

	data := map[string]any{
		"request_id": req.ID,
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"order_code": order.OrderCode,
		"reason":     req.Reason,
	}
	s.publish(ctx, EventCancelRequested, order.ID.String(), data)
	s.notify(ctx, order.UserID, TemplateCancelRequested, data)
	return req, nil
}

// ResolveCancellation decides a pending request. Approval cancels the order before the request is
// closed, so a failure in between leaves the request pending and approving again finishes the job.
func (s *cancellationService) ResolveCancellation(ctx context.Context, cmd ResolveCancelCommand) (*model.CancelRequest, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	req, err := s.requests.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, notFound(err, "cancel request")
	}

	switch {
	case req.Status == model.CancelPending:
	case req.Status == model.CancelApproved && cmd.Decision == model.CancelApproved:
		// re-drive the restock of an already approved request
		if _, err := s.cancelOrder(ctx, req.OrderID, req.Reason, cmd.ActorID); err != nil {
			return nil, err
		}
		return req, nil
	default:
		return nil, newError(KindIllegalTransition, "cancel request is already %s", req.Status)
	}

	var order *model.Order
	if cmd.Decision == model.CancelApproved {
		order, err = s.cancelOrder(ctx, req.OrderID, req.Reason, cmd.ActorID)
		if KindOf(err) == KindNotCancellable {
			// the order moved on while the request waited, so it can only be rejected
			if _, rerr := s.settle(ctx, req.ID, model.CancelRejected, err.Error(), cmd.ActorID, nil); rerr != nil {
				s.log.Warn("stale cancel request not closed", zap.String("request_id", req.ID.String()), zap.Error(rerr))
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}
	}
	return s.settle(ctx, req.ID, cmd.Decision, cmd.AdminResponse, cmd.ActorID, order)
}

// settle records the decision on a pending request and announces it. Settling again with the same
// decision returns the stored request.
func (s *cancellationService) settle(ctx context.Context, id uuid.UUID, decision model.CancelRequestStatus, response, actor string, order *model.Order) (*model.CancelRequest, error) {
	var req *model.CancelRequest
	err := s.retry.run(ctx, func() error {
		current, err := s.requests.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != model.CancelPending {
			if current.Status == decision {
				req = current
				return nil
			}
			return newError(KindIllegalTransition, "cancel request is already %s", current.Status)
		}
		now := s.now()
		current.Status = decision
		current.AdminResponse = response
		current.ResolvedBy = actor
		current.ResolvedAt = &now
		current.UpdatedBy = actor
		if err := s.requests.Update(ctx, current, current.Version); err != nil {
			return err
		}
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"request_id":     req.ID,
		"order_id":       req.OrderID,
		"user_id":        req.RequestedBy,
		"status":         req.Status,
		"admin_response": req.AdminResponse,
	}
	if order != nil {
		data["order_code"] = order.OrderCode
	}
	s.publish(ctx, EventCancelResolved, req.OrderID.String(), data)
	s.notify(ctx, req.RequestedBy, TemplateCancelResolved, data)
	return req, nil
}

func (s *cancellationService) cancelOrder(ctx context.Context, orderID uuid.UUID, reason, actor string) (*model.Order, error) {
	return s.orderSvc.Transition(ctx, TransitionCommand{
		OrderID: orderID,
		Target:  model.OrderCancelled,
		ActorID: actor,
		Reason:  reason,
	})
}

// AdminCancelOrder cancels directly and closes any pending customer request as approved.
func (s *cancellationService) AdminCancelOrder(ctx context.Context, cmd AdminCancelCommand) (*model.Order, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	order, err := s.cancelOrder(ctx, cmd.OrderID, cmd.Reason, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	pending, err := s.requests.FindPendingByOrder(ctx, order.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return order, nil
	}
	if err != nil {
		s.log.Warn("pending cancel request lookup failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return order, nil
	}
	_, err = s.ResolveCancellation(ctx, ResolveCancelCommand{
		RequestID:     pending.ID,
		Decision:      model.CancelApproved,
		AdminResponse: cmd.Reason,
		ActorID:       cmd.ActorID,
	})
	if err != nil {
		s.log.Warn("pending cancel request not closed", zap.String("request_id", pending.ID.String()), zap.Error(err))
	}
	return order, nil
}

func (s *cancellationService) List(ctx context.Context, filter repository.CancelRequestFilter) ([]model.CancelRequest, error) {
	return s.requests.List(ctx, filter)
}
