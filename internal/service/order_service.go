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
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// orderTransitions is the forward graph. cancelled is reachable only before shipping.
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed: {model.OrderShipping, model.OrderCancelled},
	model.OrderShipping:  {model.OrderDelivered},
}

func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CheckoutCommand struct {
	UserID        uuid.UUID           `json:"-" validate:"uuid_required"`
	AddressID     uuid.UUID           `json:"address_id" validate:"uuid_required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=COD VNPAY"`
	CouponCode    string              `json:"coupon_code"`
	Note          string              `json:"note" validate:"max=500"`
	// Lines overrides the stored cart when set.
	Lines    []CartLine `json:"items" validate:"omitempty,dive"`
	ClientIP string     `json:"-"`
}

type PreviewCommand struct {
	UserID     uuid.UUID  `json:"-" validate:"uuid_required"`
	AddressID  uuid.UUID  `json:"address_id"`
	CouponCode string     `json:"coupon_code"`
	Lines      []CartLine `json:"items" validate:"omitempty,dive"`
}

type CheckoutResult struct {
	Order      *model.Order `json:"order"`
	PaymentURL string       `json:"payment_url,omitempty"`
	// PaymentError is set when the order was created but the gateway could not issue a URL.
	PaymentError string `json:"payment_error,omitempty"`
}

type TransitionCommand struct {
	OrderID uuid.UUID         `validate:"uuid_required"`
	Target  model.OrderStatus `validate:"required,oneof=pending confirmed shipping delivered cancelled"`
	ActorID string
	Reason  string
}

type OrderService interface {
	CreateOrder(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error)
	Preview(ctx context.Context, cmd PreviewCommand) (*OrderTotals, error)
	Transition(ctx context.Context, cmd TransitionCommand) (*model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetOrderFor(ctx context.Context, id, userID uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error)
}

type OrderDeps struct {
	Orders    repository.OrderRepository
	Addresses repository.AddressRepository
	Cart      repository.CartRepository
	Coupons   repository.CouponRepository
	Sagas     repository.SagaRepository
	Inventory InventoryService
	Pricing   PricingService
	Loyalty   LoyaltyService
	Payments  PaymentService
	Events    EventPublisher
	Notifier  Notifier
	Logger    *zap.Logger
	Retry     RetryPolicy
	Clock     func() time.Time
}

type orderService struct {
	orders    repository.OrderRepository
	addresses repository.AddressRepository
	cart      repository.CartRepository
	coupons   repository.CouponRepository
	inventory InventoryService
	pricing   PricingService
	loyalty   LoyaltyService
	payments  PaymentService
	sagas     *sagaRunner
	retry     RetryPolicy
	now       func() time.Time
	sideEffects
}

func NewOrderService(deps OrderDeps) OrderService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	fx := newSideEffects(deps.Events, deps.Notifier, deps.Logger)
	return &orderService{
		orders:    deps.Orders,
		addresses: deps.Addresses,
		cart:      deps.Cart,
		coupons:   deps.Coupons,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		loyalty:   deps.Loyalty,
		payments:  deps.Payments,
		sagas: &sagaRunner{
			sagas:     deps.Sagas,
			inventory: deps.Inventory,
			log:       fx.log,
			now:       deps.Clock,
		},
		retry:       deps.Retry,
		now:         deps.Clock,
		sideEffects: fx,
	}
}

func NewOrderCode() string {
	return "ORD-" + ulid.Make().String()
}

// SaleKey and RestockKey identify the ledger rows of one order line.
func SaleKey(orderID uuid.UUID, line int) string {
	return fmt.Sprintf("order:%s:line:%d:sale", orderID, line)
}

func RestockKey(orderID uuid.UUID, line int) string {
	return fmt.Sprintf("order:%s:line:%d:restock", orderID, line)
}

func (s *orderService) resolveLines(ctx context.Context, userID uuid.UUID, lines []CartLine) ([]CartLine, bool, error) {
	if len(lines) > 0 {
		return lines, false, nil
	}
	items, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, newError(KindValidation, "cart is empty")
	}
	out := make([]CartLine, 0, len(items))
	for _, it := range items {
		out = append(out, CartLine{InventoryItemID: it.InventoryItemID, Quantity: it.Quantity})
	}
	return out, true, nil
}

func (s *orderService) ownAddress(ctx context.Context, userID, addressID uuid.UUID) (*model.Address, error) {
	addr, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		return nil, notFound(err, "address")
	}
	if addr.UserID != userID {
		return nil, newError(KindNotFound, "address not found")
	}
	return addr, nil
}

func (s *orderService) Preview(ctx context.Context, cmd PreviewCommand) (*OrderTotals, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	var snapshot model.AddressSnapshot
	if cmd.AddressID != uuid.Nil {
		addr, err := s.ownAddress(ctx, cmd.UserID, cmd.AddressID)
		if err != nil {
			return nil, err
		}
		snapshot = addr.Snapshot()
	}
	lines, _, err := s.resolveLines(ctx, cmd.UserID, cmd.Lines)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricing.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	return s.pricing.ComputeOrderTotals(ctx, cmd.UserID, priced, cmd.CouponCode, snapshot)
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	addr, err := s.ownAddress(ctx, cmd.UserID, cmd.AddressID)
	if err != nil {
		return nil, err
	}
	lines, fromCart, err := s.resolveLines(ctx, cmd.UserID, cmd.Lines)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricing.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	snapshot := addr.Snapshot()
	totals, err := s.pricing.ComputeOrderTotals(ctx, cmd.UserID, priced, cmd.CouponCode, snapshot)
	if err != nil {
		return nil, err
	}

	actor := cmd.UserID.String()
	orderID := uuid.New()
	steps := make([]model.SagaStep, 0, len(priced))
	for n, l := range priced {
		steps = append(steps, model.SagaStep{
			Key:             SaleKey(orderID, n),
			InventoryItemID: l.Item.ID.String(),
			Type:            model.TxOut,
			Reason:          model.ReasonSale,
			QuantityChange:  -l.Quantity,
			Label:           fmt.Sprintf("%s (%s)", l.Item.ProductName, l.Item.Size),
		})
	}
	saga, err := s.sagas.start(ctx, uuid.New(), model.SagaCheckout, orderID.String(), model.RefOrder, actor, steps)
	if err != nil {
		return nil, err
	}
	if err := s.sagas.execute(ctx, saga, actor); err != nil {
		return nil, err
	}

	if totals.Coupon != nil {
		if err := s.coupons.Redeem(ctx, totals.Coupon.ID, cmd.UserID, orderID); err != nil {
			s.sagas.abort(ctx, saga, actor, err)
			switch {
			case errors.Is(err, repository.ErrConflict):
				return nil, newError(KindCouponInvalid, "coupon %s has been fully redeemed", totals.Coupon.Code)
			case errors.Is(err, repository.ErrDuplicateKey):
				return nil, newError(KindCouponInvalid, "you have already used coupon %s", totals.Coupon.Code)
			}
			return nil, err
		}
	}

	order := &model.Order{
		BaseModel:                     model.BaseModel{ID: orderID, CreatedBy: actor, UpdatedBy: actor},
		OrderCode:                     NewOrderCode(),
		UserID:                        cmd.UserID,
		Status:                        model.OrderPending,
		PaymentStatus:                 model.PaymentPending,
		PaymentMethod:                 cmd.PaymentMethod,
		SubTotal:                      totals.SubTotal,
		Discount:                      totals.Discount,
		ShippingFee:                   totals.ShippingFee,
		TotalAfterDiscountAndShipping: totals.Total,
		ShippingAddress:               snapshot,
		Note:                          cmd.Note,
	}
	if totals.Coupon != nil {
		order.CouponID = &totals.Coupon.ID
		order.CouponCode = totals.Coupon.Code
	}
	for _, l := range priced {
		order.OrderItems = append(order.OrderItems, model.OrderItem{
			ID:              uuid.New(),
			OrderID:         orderID,
			InventoryItemID: l.Item.ID,
			ProductID:       l.Item.ProductID,
			VariantID:       l.Item.VariantID,
			Size:            l.Item.Size,
			ProductName:     l.Item.ProductName,
			SKU:             l.Item.SKU,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase,
		})
	}
	if order.ComputeTotal() != order.TotalAfterDiscountAndShipping || order.TotalAfterDiscountAndShipping < 0 {
		s.releaseCoupon(ctx, order)
		s.sagas.abort(ctx, saga, actor, errors.New("totals do not reconcile"))
		return nil, fmt.Errorf("order totals do not reconcile for %s", orderID)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseCoupon(ctx, order)
		s.sagas.abort(ctx, saga, actor, err)
		return nil, err
	}
	s.sagas.complete(ctx, saga)

	if fromCart {
		if err := s.cart.Clear(ctx, cmd.UserID); err != nil {
			s.log.Warn("cart clear failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	data := map[string]any{
		"order_id":   order.ID,
		"order_code": order.OrderCode,
		"user_id":    order.UserID,
		"total":      order.TotalAfterDiscountAndShipping,
		"status":     order.Status,
	}
	s.publish(ctx, EventOrderCreated, order.ID.String(), data)
	s.notify(ctx, order.UserID, TemplateOrderPlaced, data)

	result := &CheckoutResult{Order: order}
	if order.PaymentMethod == model.PaymentVNPay && s.payments != nil {
		url, err := s.payments.IssuePaymentURL(ctx, order, cmd.ClientIP)
		if err != nil {
			s.log.Warn("payment url not issued", zap.String("order_id", order.ID.String()), zap.Error(err))
			result.PaymentError = Message(err)
		} else {
			result.PaymentURL = url
		}
	}
	return result, nil
}

func (s *orderService) releaseCoupon(ctx context.Context, order *model.Order) {
	if order.CouponID == nil {
		return
	}
	if err := s.coupons.Release(ctx, *order.CouponID, order.UserID, order.ID); err != nil {
		s.log.Error("coupon release failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

// Transition moves the order along the graph. Re-entering cancelled or delivered re-drives that
// state's side effects, which are idempotent, so retries and duplicate calls are safe.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (*model.Order, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}

	var (
		order   *model.Order
		from    model.OrderStatus
		changed bool
	)
	err := s.retry.run(ctx, func() error {
		var err error
		order, err = s.orders.FindByID(ctx, cmd.OrderID)
		if err != nil {
			return notFound(err, "order")
		}
		from = order.Status
		changed = false
		if from == cmd.Target {
			if cmd.Target == model.OrderCancelled || cmd.Target == model.OrderDelivered {
				return nil
			}
			return newError(KindIllegalTransition, "order %s is already %s", order.OrderCode, from)
		}
		if !CanTransition(from, cmd.Target) {
			if cmd.Target == model.OrderCancelled {
				return newError(KindNotCancellable, "order %s is %s and can no longer be cancelled", order.OrderCode, from)
			}
			return newError(KindIllegalTransition, "order %s cannot move from %s to %s", order.OrderCode, from, cmd.Target)
		}

		now := s.now()
		order.Status = cmd.Target
		order.UpdatedBy = cmd.ActorID
		switch cmd.Target {
		case model.OrderConfirmed:
			order.ConfirmedAt = &now
		case model.OrderShipping:
			order.ShippedAt = &now
		case model.OrderDelivered:
			order.DeliveredAt = &now
			if order.PaymentMethod == model.PaymentCOD {
				order.PaymentStatus = model.PaymentPaid
			}
		case model.OrderCancelled:
			order.CancelledAt = &now
			order.CancelReason = cmd.Reason
			order.CancelledBy = cmd.ActorID
		}
		changed = true
		return s.orders.Update(ctx, order, order.Version)
	})
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderCancelled:
		if err := s.restock(ctx, order, cmd.ActorID); err != nil {
			return order, err
		}
	case model.OrderDelivered:
		if _, err := s.loyalty.EarnForOrder(ctx, order); err != nil {
			return order, err
		}
	}

	if changed {
		data := map[string]any{
			"order_id":   order.ID,
			"order_code": order.OrderCode,
			"user_id":    order.UserID,
			"from":       from,
			"to":         order.Status,
			"actor":      cmd.ActorID,
		}
		s.publish(ctx, EventOrderStatusChanged, order.ID.String(), data)
		s.notify(ctx, order.UserID, TemplateOrderStatus, data)
	}
	return order, nil
}

// restock returns every line of a cancelled order to stock once, then flags the order.
func (s *orderService) restock(ctx context.Context, order *model.Order, actor string) error {
	if order.InventoryRestored {
		return nil
	}
	for n, it := range order.OrderItems {
		_, _, err := s.inventory.ApplyTransaction(ctx, ApplyCommand{
			ItemID:         it.InventoryItemID,
			Type:           model.TxIn,
			Reason:         model.ReasonReturn,
			QuantityChange: it.Quantity,
			Reference:      order.ID.String(),
			ReferenceType:  model.RefOrder,
			PerformedBy:    actor,
			Note:           "order cancelled",
			IdempotencyKey: RestockKey(order.ID, n),
		})
		if err != nil {
			s.log.Error("cancelled order restock failed",
				zap.String("order_id", order.ID.String()),
				zap.Int("line", n),
				zap.Error(err))
			return err
		}
	}
	s.releaseCoupon(ctx, order)

	return s.retry.run(ctx, func() error {
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.InventoryRestored {
			*order = *current
			return nil
		}
		current.InventoryRestored = true
		if err := s.orders.Update(ctx, current, current.Version); err != nil {
			return err
		}
		*order = *current
		return nil
	})
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return order, nil
}

func (s *orderService) GetOrderFor(ctx context.Context, id, userID uuid.UUID) (*model.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, newError(KindNotFound, "order not found")
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	return s.orders.List(ctx, filter)
}
