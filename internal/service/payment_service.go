package service

import (
	"context"
	"errors"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentRequest struct {
	OrderCode string
	Amount    int64
	ClientIP  string
}

// PaymentCallback is a verified gateway notification.
type PaymentCallback struct {
	Success       bool
	OrderCode     string
	TransactionID string
	Amount        int64
	ResponseCode  string
	Params        map[string]string
}

// PaymentGateway is the external payment provider. Only URL creation and callback verification are used.
type PaymentGateway interface {
	CreatePaymentURL(ctx context.Context, req PaymentRequest) (string, error)
	VerifyCallback(ctx context.Context, params map[string]string) (*PaymentCallback, error)
}

type CallbackOutcome struct {
	Order     *model.Order
	Duplicate bool
	// Applied is false when the notification was recorded but did not change the order.
	Applied bool
}

type PaymentService interface {
	IssuePaymentURL(ctx context.Context, order *model.Order, clientIP string) (string, error)
	RetryPayment(ctx context.Context, orderID, userID uuid.UUID, clientIP string) (string, error)
	HandleCallback(ctx context.Context, params map[string]string) (*CallbackOutcome, error)
}

type PaymentDeps struct {
	Orders   repository.OrderRepository
	Payments repository.PaymentRepository
	Gateway  PaymentGateway
	Events   EventPublisher
	Notifier Notifier
	Logger   *zap.Logger
	Retry    RetryPolicy
}

type paymentService struct {
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	gateway  PaymentGateway
	retry    RetryPolicy
	sideEffects
}

func NewPaymentService(deps PaymentDeps) PaymentService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	return &paymentService{
		orders:      deps.Orders,
		payments:    deps.Payments,
		gateway:     deps.Gateway,
		retry:       deps.Retry,
		sideEffects: newSideEffects(deps.Events, deps.Notifier, deps.Logger),
	}
}

func (s *paymentService) IssuePaymentURL(ctx context.Context, order *model.Order, clientIP string) (string, error) {
	if s.gateway == nil {
		return "", newError(KindPaymentGateway, "online payment is not configured")
	}
	url, err := s.gateway.CreatePaymentURL(ctx, PaymentRequest{
		OrderCode: order.OrderCode,
		Amount:    order.TotalAfterDiscountAndShipping,
		ClientIP:  clientIP,
	})
	if err != nil {
		return "", wrapError(KindPaymentGateway, err, "could not reach the payment gateway, please retry")
	}
	return url, nil
}

func (s *paymentService) RetryPayment(ctx context.Context, orderID, userID uuid.UUID, clientIP string) (string, error) {
	var order *model.Order
	err := s.retry.run(ctx, func() error {
		var err error
		order, err = s.orders.FindByID(ctx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		if order.UserID != userID {
			return newError(KindForbidden, "order does not belong to you")
		}
		if order.PaymentMethod != model.PaymentVNPay {
			return newError(KindValidation, "order %s is not paid online", order.OrderCode)
		}
		if order.PaymentStatus == model.PaymentPaid {
			return newError(KindValidation, "order %s is already paid", order.OrderCode)
		}
		if order.Status != model.OrderPending {
			return newError(KindIllegalTransition, "order %s is %s and can no longer be paid", order.OrderCode, order.Status)
		}
		if order.PaymentStatus == model.PaymentPending {
			return nil
		}
		order.PaymentStatus = model.PaymentPending
		return s.orders.Update(ctx, order, order.Version)
	})
	if err != nil {
		return "", err
	}
	return s.IssuePaymentURL(ctx, order, clientIP)
}

// notificationKey identifies a replayed callback. Attempts the gateway never numbered (transaction
// "0" on declined or abandoned payments) are all recorded.
func notificationKey(cb *PaymentCallback) string {
	if cb.TransactionID == "" || cb.TransactionID == "0" {
		return "unnumbered:" + uuid.NewString()
	}
	return cb.OrderCode + ":" + cb.TransactionID + ":" + cb.ResponseCode
}

func (s *paymentService) HandleCallback(ctx context.Context, params map[string]string) (*CallbackOutcome, error) {
	if s.gateway == nil {
		return nil, newError(KindPaymentGateway, "online payment is not configured")
	}
	cb, err := s.gateway.VerifyCallback(ctx, params)
	if err != nil {
		return nil, wrapError(KindValidation, err, "payment callback could not be verified")
	}

	order, err := s.orders.FindByCode(ctx, cb.OrderCode)
	if err != nil {
		return nil, notFound(err, "order")
	}

	err = s.payments.RecordNotification(ctx, &model.PaymentNotification{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		DedupeKey:            notificationKey(cb),
		GatewayTransactionID: cb.TransactionID,
		Success:              cb.Success,
		Amount:               cb.Amount,
		ResponseCode:         cb.ResponseCode,
		Params:               cb.Params,
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		s.log.Info("duplicate payment notification ignored",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", cb.TransactionID))
		return &CallbackOutcome{Order: order, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	success := cb.Success
	if success && cb.Amount != order.TotalAfterDiscountAndShipping {
		s.log.Error("payment amount mismatch",
			zap.String("order_id", order.ID.String()),
			zap.Int64("expected", order.TotalAfterDiscountAndShipping),
			zap.Int64("received", cb.Amount))
		success = false
	}

	applied := false
	err = s.retry.run(ctx, func() error {
		applied = false
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		order = current
		// paid is final, a late failure or a replayed attempt never downgrades it
		if order.PaymentStatus == model.PaymentPaid {
			return nil
		}
		if success {
			order.PaymentStatus = model.PaymentPaid
			order.PaymentTransactionID = cb.TransactionID
		} else {
			if order.PaymentStatus == model.PaymentFailed {
				return nil
			}
			order.PaymentStatus = model.PaymentFailed
		}
		applied = true
		return s.orders.Update(ctx, order, order.Version)
	})
	if err != nil {
		return nil, err
	}

	if applied {
		if success && order.Status == model.OrderCancelled {
			s.log.Warn("payment settled on a cancelled order", zap.String("order_id", order.ID.String()))
		}
		data := map[string]any{
			"order_id":       order.ID,
			"order_code":     order.OrderCode,
			"user_id":        order.UserID,
			"payment_status": order.PaymentStatus,
		}
		s.publish(ctx, EventOrderPaymentChanged, order.ID.String(), data)
		s.notify(ctx, order.UserID, TemplateOrderPayment, data)
	}
	return &CallbackOutcome{Order: order, Applied: applied}, nil
}
