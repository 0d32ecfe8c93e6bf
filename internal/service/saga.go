package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sagaRunner applies the planned ledger steps of a saga in order and compensates on failure.
// Every step and every compensation carries an idempotency key, so re-running either is safe.
type sagaRunner struct {
	sagas     repository.SagaRepository
	inventory InventoryService
	log       *zap.Logger
	now       func() time.Time
}

func compensationKey(stepKey string) string {
	return stepKey + ":compensate"
}

func (r *sagaRunner) start(ctx context.Context, id uuid.UUID, kind model.SagaKind, reference, referenceType, actor string, steps []model.SagaStep) (*model.Saga, error) {
	saga := &model.Saga{
		BaseModel:     model.BaseModel{ID: id, CreatedBy: actor, UpdatedBy: actor},
		Kind:          kind,
		Reference:     reference,
		ReferenceType: referenceType,
		Status:        model.SagaStarted,
		Steps:         steps,
		StartedAt:     r.now(),
	}
	if err := r.sagas.Create(ctx, saga); err != nil {
		return nil, err
	}
	return saga, nil
}

// execute applies each step. On the first failure the applied steps are compensated,
// the saga is marked compensated and the step error is returned.
func (r *sagaRunner) execute(ctx context.Context, saga *model.Saga, actor string) error {
	for i, step := range saga.Steps {
		_, _, err := r.inventory.ApplyTransaction(ctx, ApplyCommand{
			ItemID:         uuid.MustParse(step.InventoryItemID),
			Type:           step.Type,
			Reason:         step.Reason,
			QuantityChange: step.QuantityChange,
			Reference:      saga.Reference,
			ReferenceType:  saga.ReferenceType,
			PerformedBy:    actor,
			Note:           step.Label,
			IdempotencyKey: step.Key,
		})
		if err != nil {
			r.log.Warn("saga step failed",
				zap.String("saga_id", saga.ID.String()),
				zap.String("kind", string(saga.Kind)),
				zap.Int("step", i),
				zap.Error(err))
			r.abort(ctx, saga, actor, err)
			if errors.Is(err, ErrInsufficientStock) && step.Label != "" {
				return &Error{Kind: KindInsufficientStock, Message: step.Label + " just sold out", Err: err}
			}
			return err
		}
	}
	return nil
}

// abort compensates every step whose key is in the ledger, newest first, and marks the saga compensated.
func (r *sagaRunner) abort(ctx context.Context, saga *model.Saga, actor string, cause error) {
	var failed []string
	for i := len(saga.Steps) - 1; i >= 0; i-- {
		if err := r.compensate(ctx, saga, saga.Steps[i], actor); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", saga.Steps[i].Key, err))
		}
	}
	saga.Status = model.SagaCompensated
	if cause != nil {
		saga.LastError = cause.Error()
	}
	if len(failed) > 0 {
		// left started so the reconciler picks it up again
		saga.Status = model.SagaStarted
		saga.LastError = fmt.Sprintf("compensation incomplete: %v", failed)
		r.log.Error("saga compensation incomplete", zap.String("saga_id", saga.ID.String()), zap.Strings("steps", failed))
	}
	saga.UpdatedBy = actor
	if err := r.sagas.Update(ctx, saga); err != nil {
		r.log.Error("saga status update failed", zap.String("saga_id", saga.ID.String()), zap.Error(err))
	}
}

func (r *sagaRunner) compensate(ctx context.Context, saga *model.Saga, step model.SagaStep, actor string) error {
	if _, err := r.inventory.FindTransactionByKey(ctx, step.Key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	inverse, reason := model.TxIn, step.Reason
	if step.Type == model.TxIn {
		inverse = model.TxOut
	}
	if reason == model.ReasonSale {
		// an unwound sale comes back as returned stock
		reason = model.ReasonReturn
	}
	_, _, err := r.inventory.ApplyTransaction(ctx, ApplyCommand{
		ItemID:         uuid.MustParse(step.InventoryItemID),
		Type:           inverse,
		Reason:         reason,
		QuantityChange: -step.QuantityChange,
		Reference:      saga.Reference,
		ReferenceType:  saga.ReferenceType,
		PerformedBy:    actor,
		Note:           "compensation",
		IdempotencyKey: compensationKey(step.Key),
	})
	return err
}

func (r *sagaRunner) complete(ctx context.Context, saga *model.Saga) {
	saga.Status = model.SagaCompleted
	if err := r.sagas.Update(ctx, saga); err != nil {
		// the reconciler finds the order and completes it later
		r.log.Error("saga completion update failed", zap.String("saga_id", saga.ID.String()), zap.Error(err))
	}
}

type ReconcileReport struct {
	Completed   int `json:"completed"`
	Compensated int `json:"compensated"`
	Restocked   int `json:"restocked"`
}

// SagaReconciler repairs work a crashed or timed out request left half done.
type SagaReconciler interface {
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

type ReconcilerDeps struct {
	Sagas      repository.SagaRepository
	Orders     repository.OrderRepository
	Coupons    repository.CouponRepository
	Inventory  InventoryService
	OrderSvc   OrderService
	Logger     *zap.Logger
	StaleAfter time.Duration
	Clock      func() time.Time
}

type sagaReconciler struct {
	runner     *sagaRunner
	orders     repository.OrderRepository
	coupons    repository.CouponRepository
	orderSvc   OrderService
	staleAfter time.Duration
	log        *zap.Logger
}

const (
	reconcileBatchSize = 50
	reconcilerActor    = "system:reconciler"
)

func NewSagaReconciler(deps ReconcilerDeps) SagaReconciler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.StaleAfter <= 0 {
		deps.StaleAfter = 2 * time.Minute
	}
	return &sagaReconciler{
		runner: &sagaRunner{
			sagas:     deps.Sagas,
			inventory: deps.Inventory,
			log:       deps.Logger,
			now:       deps.Clock,
		},
		orders:     deps.Orders,
		coupons:    deps.Coupons,
		orderSvc:   deps.OrderSvc,
		staleAfter: deps.StaleAfter,
		log:        deps.Logger,
	}
}

func (r *sagaReconciler) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	stale, err := r.runner.sagas.FindStale(ctx, r.runner.now().Add(-r.staleAfter), reconcileBatchSize)
	if err != nil {
		return nil, err
	}
	for i := range stale {
		saga := &stale[i]
		if saga.Kind == model.SagaCheckout {
			orderID, err := uuid.Parse(saga.Reference)
			if err == nil {
				if _, err := r.orders.FindByID(ctx, orderID); err == nil {
					r.runner.complete(ctx, saga)
					report.Completed++
					continue
				}
				r.releaseCoupon(ctx, orderID)
			}
		}
		r.runner.abort(ctx, saga, reconcilerActor, errors.New("abandoned before completion"))
		if saga.Status == model.SagaCompensated {
			report.Compensated++
		}
		r.log.Info("saga reconciled",
			zap.String("saga_id", saga.ID.String()),
			zap.String("kind", string(saga.Kind)),
			zap.String("status", string(saga.Status)))
	}

	if r.orderSvc != nil {
		pending, err := r.orders.List(ctx, repository.OrderFilter{RestockPending: true, Limit: reconcileBatchSize})
		if err != nil {
			return report, err
		}
		for _, o := range pending {
			_, err := r.orderSvc.Transition(ctx, TransitionCommand{
				OrderID: o.ID,
				Target:  model.OrderCancelled,
				ActorID: reconcilerActor,
			})
			if err != nil {
				r.log.Error("cancelled order restock retry failed", zap.String("order_id", o.ID.String()), zap.Error(err))
				continue
			}
			report.Restocked++
		}
	}
	return report, nil
}

func (r *sagaReconciler) releaseCoupon(ctx context.Context, orderID uuid.UUID) {
	usage, err := r.coupons.FindUsageByOrder(ctx, orderID)
	if err != nil {
		return
	}
	if err := r.coupons.Release(ctx, usage.CouponID, usage.UserID, orderID); err != nil {
		r.log.Error("coupon release failed", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}
