package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types pushed to realtime subscribers.
const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderPaymentChanged = "order.payment_changed"
	EventCancelRequested     = "cancel_request.created"
	EventCancelResolved      = "cancel_request.resolved"
	EventReturnStatusChanged = "return.status_changed"
	EventStockChanged        = "inventory.stock_changed"
	EventStockLow            = "inventory.low_stock"
)

// Notification templates handed to the dispatcher.
const (
	TemplateOrderPlaced     = "order_placed"
	TemplateOrderStatus     = "order_status"
	TemplateOrderPayment    = "order_payment"
	TemplateCancelRequested = "cancel_requested"
	TemplateCancelResolved  = "cancel_resolved"
	TemplateReturnStatus    = "return_status"
	TemplatePointsEarned    = "points_earned"
)

type Event struct {
	Type       string         `json:"type"`
	Reference  string         `json:"reference"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher receives committed state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier delivers customer notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, string, map[string]any) error { return nil }

// sideEffects runs post-commit publication. Failures are logged and never returned.
type sideEffects struct {
	events   EventPublisher
	notifier Notifier
	log      *zap.Logger
}

func newSideEffects(events EventPublisher, notifier Notifier, log *zap.Logger) sideEffects {
	if events == nil {
		events = nopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return sideEffects{events: events, notifier: notifier, log: log}
}

func (s sideEffects) publish(ctx context.Context, typ, reference string, data map[string]any) {
	err := s.events.Publish(ctx, Event{Type: typ, Reference: reference, Data: data, OccurredAt: time.Now()})
	if err != nil {
		s.log.Warn("event publish failed", zap.String("event", typ), zap.String("reference", reference), zap.Error(err))
	}
}

func (s sideEffects) notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) {
	if err := s.notifier.Notify(ctx, userID, template, data); err != nil {
		s.log.Warn("notification dispatch failed", zap.String("template", template), zap.String("user_id", userID.String()), zap.Error(err))
	}
}
