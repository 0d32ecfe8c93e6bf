package service

import (
	"context"

	"go.uber.org/zap"
)

// LogDisburser records refunds in the log for manual settlement. It stands in until a payout
// integration exists.
type LogDisburser struct {
	log *zap.Logger
}

func NewLogDisburser(log *zap.Logger) *LogDisburser {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDisburser{log: log}
}

func (d *LogDisburser) Disburse(_ context.Context, r RefundDisbursement) error {
	d.log.Info("refund queued for settlement",
		zap.String("request_id", r.RequestID.String()),
		zap.String("order_id", r.OrderID.String()),
		zap.String("customer_id", r.CustomerID.String()),
		zap.Int64("amount", r.Amount),
		zap.String("method", string(r.Method)),
		zap.String("idempotency_key", r.IdempotencyKey))
	return nil
}
