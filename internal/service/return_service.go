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
	"go.uber.org/zap"
)

type ReturnLine struct {
	ProductID           uuid.UUID  `json:"product_id" validate:"uuid_required"`
	VariantID           uuid.UUID  `json:"variant_id" validate:"uuid_required"`
	Size                string     `json:"size" validate:"required"`
	Quantity            int        `json:"quantity" validate:"required,gt=0"`
	ExchangeToVariantID *uuid.UUID `json:"exchange_to_variant"`
	ExchangeToSize      string     `json:"exchange_to_size"`
}

type CreateReturnCommand struct {
	OrderID      uuid.UUID          `json:"order_id" validate:"uuid_required"`
	CustomerID   uuid.UUID          `json:"-" validate:"uuid_required"`
	Type         model.ReturnType   `json:"type" validate:"required,oneof=RETURN EXCHANGE"`
	Items        []ReturnLine       `json:"items" validate:"required,min=1,dive"`
	Reason       string             `json:"reason" validate:"required,max=1000"`
	RefundMethod model.RefundMethod `json:"refund_method" validate:"omitempty,oneof=original_payment store_credit bank_transfer"`
}

type ReviewReturnCommand struct {
	RequestID uuid.UUID `json:"-" validate:"uuid_required"`
	ActorID   string    `json:"-"`
	Note      string    `json:"note" validate:"max=1000"`
}

// RefundDisbursement is handed to the disburser once the returned stock is back on the shelf.
type RefundDisbursement struct {
	RequestID      uuid.UUID
	OrderID        uuid.UUID
	CustomerID     uuid.UUID
	Amount         int64
	Method         model.RefundMethod
	IdempotencyKey string
}

// RefundDisburser moves the refund money. It must tolerate being called again with the same key.
type RefundDisburser interface {
	Disburse(ctx context.Context, d RefundDisbursement) error
}

type ReturnService interface {
	CreateReturnRequest(ctx context.Context, cmd CreateReturnCommand) (*model.ReturnRequest, error)
	Approve(ctx context.Context, cmd ReviewReturnCommand) (*model.ReturnRequest, error)
	Reject(ctx context.Context, cmd ReviewReturnCommand) (*model.ReturnRequest, error)
	CancelByCustomer(ctx context.Context, requestID, customerID uuid.UUID) (*model.ReturnRequest, error)
	ProcessReturn(ctx context.Context, requestID uuid.UUID, actor string) (*model.ReturnRequest, error)
	ProcessExchange(ctx context.Context, requestID uuid.UUID, actor string) (*model.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ReturnRequest, error)
	List(ctx context.Context, filter repository.ReturnRequestFilter) ([]model.ReturnRequest, error)
}

type ReturnDeps struct {
	Requests   repository.ReturnRequestRepository
	Orders     repository.OrderRepository
	Sagas      repository.SagaRepository
	Inventory  InventoryService
	Loyalty    LoyaltyService
	Disburser  RefundDisburser
	Events     EventPublisher
	Notifier   Notifier
	Logger     *zap.Logger
	Retry      RetryPolicy
	WindowDays int
	Clock      func() time.Time
}

type returnService struct {
	requests   repository.ReturnRequestRepository
	orders     repository.OrderRepository
	inventory  InventoryService
	loyalty    LoyaltyService
	disburser  RefundDisburser
	sagas      *sagaRunner
	retry      RetryPolicy
	windowDays int
	now        func() time.Time
	sideEffects
}

func NewReturnService(deps ReturnDeps) ReturnService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	fx := newSideEffects(deps.Events, deps.Notifier, deps.Logger)
	if deps.Disburser == nil {
		deps.Disburser = NewLogDisburser(fx.log)
	}
	return &returnService{
		requests:  deps.Requests,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		loyalty:   deps.Loyalty,
		disburser: deps.Disburser,
		sagas: &sagaRunner{
			sagas:     deps.Sagas,
			inventory: deps.Inventory,
			log:       fx.log,
			now:       deps.Clock,
		},
		retry:       deps.Retry,
		windowDays:  deps.WindowDays,
		now:         deps.Clock,
		sideEffects: fx,
	}
}

var returnTransitions = map[model.ReturnStatus][]model.ReturnStatus{
	model.ReturnPending:    {model.ReturnApproved, model.ReturnRejected, model.ReturnCanceled},
	model.ReturnApproved:   {model.ReturnProcessing, model.ReturnRejected},
	model.ReturnProcessing: {model.ReturnCompleted},
}

func canMoveReturn(from, to model.ReturnStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ReturnItemKey(requestID uuid.UUID, n int) string {
	return fmt.Sprintf("return:%s:item:%d", requestID, n)
}

func (s *returnService) CreateReturnRequest(ctx context.Context, cmd CreateReturnCommand) (*model.ReturnRequest, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if order.UserID != cmd.CustomerID {
		return nil, newError(KindNotFound, "order not found")
	}
	if order.Status != model.OrderDelivered {
		return nil, newError(KindOrderNotDelivered, "order %s has not been delivered yet", order.OrderCode)
	}
	if s.windowDays > 0 && order.DeliveredAt != nil &&
		s.now().After(order.DeliveredAt.AddDate(0, 0, s.windowDays)) {
		return nil, newError(KindValidation, "the %d day return window for order %s has closed", s.windowDays, order.OrderCode)
	}

	returned, err := s.returnedQuantities(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	reqID := uuid.New()
	actor := cmd.CustomerID.String()
	req := &model.ReturnRequest{
		BaseModel:    model.BaseModel{ID: reqID, CreatedBy: actor, UpdatedBy: actor},
		OrderID:      order.ID,
		CustomerID:   cmd.CustomerID,
		Type:         cmd.Type,
		Reason:       cmd.Reason,
		RefundMethod: cmd.RefundMethod,
		Status:       model.ReturnPending,
	}
	if req.Type == model.ReturnTypeReturn && req.RefundMethod == "" {
		req.RefundMethod = model.RefundOriginalPayment
	}

	seen := map[string]bool{}
	for _, l := range cmd.Items {
		key := model.ReturnClaimKey(order.ID, l.ProductID, l.VariantID, l.Size)
		if seen[key] {
			return nil, newError(KindValidation, "item %s (%s) is listed twice", l.ProductID, l.Size)
		}
		seen[key] = true

		line, ok := order.Item(l.ProductID, l.VariantID, l.Size)
		if !ok {
			return nil, newError(KindValidation, "order %s has no item %s (%s)", order.OrderCode, l.ProductID, l.Size)
		}
		if left := line.Quantity - returned[key]; l.Quantity > left {
			return nil, newError(KindValidation, "only %d of %s (%s) can still be returned", left, line.ProductName, line.Size)
		}

		item := model.ReturnItem{
			ID:              uuid.New(),
			ReturnRequestID: reqID,
			InventoryItemID: line.InventoryItemID,
			ProductID:       line.ProductID,
			VariantID:       line.VariantID,
			Size:            line.Size,
			Quantity:        l.Quantity,
			PriceAtPurchase: line.PriceAtPurchase,
		}
		if req.Type == model.ReturnTypeExchange {
			target, err := s.exchangeTarget(ctx, line, l)
			if err != nil {
				return nil, err
			}
			item.ExchangeToVariantID = &target.VariantID
			item.ExchangeToSize = target.Size
			item.ExchangeToInventoryItemID = &target.ID
		}
		req.Items = append(req.Items, item)
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, newError(KindDuplicateReturnRequest, "a return or exchange for one of these items is already in progress")
		}
		return nil, err
	}
	s.announce(ctx, req, "")
	return req, nil
}

// returnedQuantities sums what completed requests already took back, per claim key.
func (s *returnService) returnedQuantities(ctx context.Context, orderID uuid.UUID) (map[string]int, error) {
	done, err := s.requests.List(ctx, repository.ReturnRequestFilter{OrderID: &orderID, Status: model.ReturnCompleted})
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, r := range done {
		for _, it := range r.Items {
			out[model.ReturnClaimKey(orderID, it.ProductID, it.VariantID, it.Size)] += it.Quantity
		}
	}
	return out, nil
}

func (s *returnService) exchangeTarget(ctx context.Context, line model.OrderItem, l ReturnLine) (*model.InventoryItem, error) {
	variant := line.VariantID
	if l.ExchangeToVariantID != nil {
		variant = *l.ExchangeToVariantID
	}
	size := line.Size
	if l.ExchangeToSize != "" {
		size = l.ExchangeToSize
	}
	target, err := s.inventory.FindByUnit(ctx, line.ProductID, variant, size)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, newError(KindValidation, "exchange target %s (%s) does not exist", line.ProductName, size)
		}
		return nil, err
	}
	if target.ID == line.InventoryItemID {
		return nil, newError(KindValidation, "exchange target must differ from %s (%s)", line.ProductName, line.Size)
	}
	return target, nil
}

// move applies a status change under the version check, re-reading on conflict.
// mutate sees the freshly loaded request and may refuse the change by returning an error.
func (s *returnService) move(ctx context.Context, id uuid.UUID, to model.ReturnStatus, actor string, mutate func(*model.ReturnRequest) error) (*model.ReturnRequest, error) {
	var req *model.ReturnRequest
	err := s.retry.run(ctx, func() error {
		current, err := s.requests.FindByID(ctx, id)
		if err != nil {
			return notFound(err, "return request")
		}
		if !canMoveReturn(current.Status, to) {
			return newError(KindIllegalTransition, "return request is %s and cannot become %s", current.Status, to)
		}
		if mutate != nil {
			if err := mutate(current); err != nil {
				return err
			}
		}
		current.Status = to
		current.UpdatedBy = actor
		if err := s.requests.Update(ctx, current, current.Version); err != nil {
			return err
		}
		req = current
		return nil
	})
	return req, err
}

func (s *returnService) releaseClaims(ctx context.Context, req *model.ReturnRequest) {
	if err := s.requests.ReleaseClaims(ctx, req.ID); err != nil {
		s.log.Error("return claims release failed", zap.String("request_id", req.ID.String()), zap.Error(err))
	}
}

func (s *returnService) announce(ctx context.Context, req *model.ReturnRequest, from model.ReturnStatus) {
	data := map[string]any{
		"request_id":    req.ID,
		"order_id":      req.OrderID,
		"user_id":       req.CustomerID,
		"type":          req.Type,
		"from":          from,
		"to":            req.Status,
		"refund_amount": req.RefundAmount,
	}
	s.publish(ctx, EventReturnStatusChanged, req.ID.String(), data)
	s.notify(ctx, req.CustomerID, TemplateReturnStatus, data)
}

func (s *returnService) Approve(ctx context.Context, cmd ReviewReturnCommand) (*model.ReturnRequest, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	req, err := s.move(ctx, cmd.RequestID, model.ReturnApproved, cmd.ActorID, func(r *model.ReturnRequest) error {
		now := s.now()
		r.ApprovedBy = cmd.ActorID
		r.ApprovedAt = &now
		r.AdminNote = cmd.Note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, req, model.ReturnPending)
	return req, nil
}

func (s *returnService) Reject(ctx context.Context, cmd ReviewReturnCommand) (*model.ReturnRequest, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	var from model.ReturnStatus
	req, err := s.move(ctx, cmd.RequestID, model.ReturnRejected, cmd.ActorID, func(r *model.ReturnRequest) error {
		from = r.Status
		r.RejectionReason = cmd.Note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.releaseClaims(ctx, req)
	s.announce(ctx, req, from)
	return req, nil
}

func (s *returnService) CancelByCustomer(ctx context.Context, requestID, customerID uuid.UUID) (*model.ReturnRequest, error) {
	req, err := s.move(ctx, requestID, model.ReturnCanceled, customerID.String(), func(r *model.ReturnRequest) error {
		if r.CustomerID != customerID {
			return newError(KindNotFound, "return request not found")
		}
		now := s.now()
		r.CanceledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.releaseClaims(ctx, req)
	s.announce(ctx, req, model.ReturnPending)
	return req, nil
}

// startProcessing moves an approved request to processing, or resumes one left processing by an
// earlier attempt.
func (s *returnService) startProcessing(ctx context.Context, id uuid.UUID, typ model.ReturnType, actor string) (*model.ReturnRequest, bool, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, false, notFound(err, "return request")
	}
	if req.Type != typ {
		return nil, false, newError(KindValidation, "request is a %s, not a %s", req.Type, typ)
	}
	if req.Status == model.ReturnProcessing {
		return req, false, nil
	}
	moved, err := s.move(ctx, id, model.ReturnProcessing, actor, func(r *model.ReturnRequest) error {
		now := s.now()
		r.ProcessedBy = actor
		r.ProcessedAt = &now
		return nil
	})
	if KindOf(err) == KindIllegalTransition {
		// a concurrent call may have started it first
		if current, findErr := s.requests.FindByID(ctx, id); findErr == nil && current.Status == model.ReturnProcessing {
			return current, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return moved, true, nil
}

// complete closes a processing request. A request another call already completed is returned as is.
func (s *returnService) complete(ctx context.Context, id uuid.UUID, actor string, refund int64) (*model.ReturnRequest, error) {
	req, err := s.move(ctx, id, model.ReturnCompleted, actor, func(r *model.ReturnRequest) error {
		now := s.now()
		r.CompletedAt = &now
		r.RefundAmount = refund
		return nil
	})
	if KindOf(err) == KindIllegalTransition {
		if current, findErr := s.requests.FindByID(ctx, id); findErr == nil && current.Status == model.ReturnCompleted {
			return current, nil
		}
	}
	if err != nil {
		return nil, err
	}
	s.releaseClaims(ctx, req)
	s.announce(ctx, req, model.ReturnProcessing)
	return req, nil
}

// ProcessReturn restocks the returned items, refunds their purchase price and reverses the points
// the refunded share of the order earned. Every step is keyed, so a failed run can simply be repeated.
func (s *returnService) ProcessReturn(ctx context.Context, requestID uuid.UUID, actor string) (*model.ReturnRequest, error) {
	req, started, err := s.startProcessing(ctx, requestID, model.ReturnTypeReturn, actor)
	if err != nil {
		return nil, err
	}
	if started {
		s.announce(ctx, req, model.ReturnApproved)
	}
	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}

	var refund int64
	for n, it := range req.Items {
		_, _, err := s.inventory.ApplyTransaction(ctx, ApplyCommand{
			ItemID:         it.InventoryItemID,
			Type:           model.TxIn,
			Reason:         model.ReasonReturn,
			QuantityChange: it.Quantity,
			Reference:      req.ID.String(),
			ReferenceType:  model.RefReturnRequest,
			PerformedBy:    actor,
			Note:           "customer return",
			IdempotencyKey: ReturnItemKey(req.ID, n),
		})
		if err != nil {
			return nil, err
		}
		refund += it.PriceAtPurchase * int64(it.Quantity)
	}

	err = s.disburser.Disburse(ctx, RefundDisbursement{
		RequestID:      req.ID,
		OrderID:        order.ID,
		CustomerID:     req.CustomerID,
		Amount:         refund,
		Method:         req.RefundMethod,
		IdempotencyKey: fmt.Sprintf("return:%s:refund", req.ID),
	})
	if err != nil {
		s.log.Error("refund disbursement failed", zap.String("request_id", req.ID.String()), zap.Int64("amount", refund), zap.Error(err))
		return nil, wrapError(KindPaymentGateway, err, "refund of %d could not be disbursed, the request stays processing", refund)
	}

	if _, err := s.loyalty.ReverseForRefund(ctx, order, refund, fmt.Sprintf("return:%s:points", req.ID)); err != nil {
		return nil, err
	}
	return s.complete(ctx, req.ID, actor, refund)
}

// ProcessExchange swaps each returned unit for its target in one saga: the target leaves stock before
// the original comes back. A sold out target compensates the saga and leaves the request processing.
func (s *returnService) ProcessExchange(ctx context.Context, requestID uuid.UUID, actor string) (*model.ReturnRequest, error) {
	req, started, err := s.startProcessing(ctx, requestID, model.ReturnTypeExchange, actor)
	if err != nil {
		return nil, err
	}
	if started {
		s.announce(ctx, req, model.ReturnApproved)
	}

	sagaID := uuid.New()
	steps := make([]model.SagaStep, 0, 2*len(req.Items))
	for n, it := range req.Items {
		if it.ExchangeToInventoryItemID == nil {
			return nil, newError(KindValidation, "item %d has no exchange target", n)
		}
		target, err := s.inventory.GetItem(ctx, *it.ExchangeToInventoryItemID)
		if err != nil {
			return nil, err
		}
		steps = append(steps,
			model.SagaStep{
				Key:             fmt.Sprintf("exchange:%s:item:%d:out", sagaID, n),
				InventoryItemID: it.ExchangeToInventoryItemID.String(),
				Type:            model.TxOut,
				Reason:          model.ReasonExchange,
				QuantityChange:  -it.Quantity,
				Label:           fmt.Sprintf("%s (%s)", target.ProductName, target.Size),
			},
			model.SagaStep{
				Key:             fmt.Sprintf("exchange:%s:item:%d:in", sagaID, n),
				InventoryItemID: it.InventoryItemID.String(),
				Type:            model.TxIn,
				Reason:          model.ReasonExchange,
				QuantityChange:  it.Quantity,
			},
		)
	}
	saga, err := s.sagas.start(ctx, sagaID, model.SagaExchange, req.ID.String(), model.RefReturnRequest, actor, steps)
	if err != nil {
		return nil, err
	}

	// no stock moves until this saga owns the request
	done, err := s.claimExchange(ctx, req.ID, sagaID, actor)
	if err != nil || done {
		s.sagas.abort(ctx, saga, actor, nil)
	}
	if err != nil {
		return nil, err
	}
	if done {
		// the stock moved on an earlier run which stopped before completing the request
		return s.complete(ctx, req.ID, actor, 0)
	}

	if err := s.sagas.execute(ctx, saga, actor); err != nil {
		return nil, err
	}
	s.sagas.complete(ctx, saga)
	return s.complete(ctx, req.ID, actor, 0)
}

// claimExchange hands the request to sagaID unless another saga holds it. It reports done when the
// holding saga already completed.
func (s *returnService) claimExchange(ctx context.Context, requestID, sagaID uuid.UUID, actor string) (bool, error) {
	done := false
	err := s.retry.run(ctx, func() error {
		done = false
		current, err := s.requests.FindByID(ctx, requestID)
		if err != nil {
			return notFound(err, "return request")
		}
		if current.Status != model.ReturnProcessing {
			return newError(KindIllegalTransition, "return request is %s and cannot be exchanged", current.Status)
		}
		if holder := current.ExchangeSagaID; holder != nil && *holder != sagaID {
			held, err := s.sagas.sagas.FindByID(ctx, *holder)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			switch {
			case held == nil:
			case held.Status == model.SagaCompleted:
				done = true
				return nil
			case held.Status != model.SagaCompensated:
				return newError(KindConflict, "an exchange for this request is already running")
			}
		}
		current.ExchangeSagaID = &sagaID
		current.UpdatedBy = actor
		return s.requests.Update(ctx, current, current.Version)
	})
	return done, err
}

func (s *returnService) Get(ctx context.Context, id uuid.UUID) (*model.ReturnRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "return request")
	}
	return req, nil
}

func (s *returnService) List(ctx context.Context, filter repository.ReturnRequestFilter) ([]model.ReturnRequest, error) {
	return s.requests.List(ctx, filter)
}
