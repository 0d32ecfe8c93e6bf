package handler

import (
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments service.PaymentService
	log      *zap.Logger
}

func NewPaymentHandler(payments service.PaymentService, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{payments: payments, log: log}
}

// VNPay answers the gateway's server to server notification. The gateway only reads
// RspCode, so the outcome is always 200.
// GET /api/v1/payments/vnpay/callback
func (h *PaymentHandler) VNPay(c *fiber.Ctx) error {
	params := map[string]string{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})

	outcome, err := h.payments.HandleCallback(c.UserContext(), params)
	switch {
	case err == nil && outcome.Duplicate:
		return c.JSON(fiber.Map{"RspCode": "02", "Message": "Order already confirmed"})
	case err == nil:
		return c.JSON(fiber.Map{"RspCode": "00", "Message": "Confirm Success"})
	}

	switch service.KindOf(err) {
	case service.KindValidation:
		return c.JSON(fiber.Map{"RspCode": "97", "Message": "Invalid signature"})
	case service.KindNotFound:
		return c.JSON(fiber.Map{"RspCode": "01", "Message": "Order not found"})
	}
	// the gateway retries on 99
	h.log.Error("payment callback failed", zap.String("txn_ref", params["vnp_TxnRef"]), zap.Error(err))
	return c.JSON(fiber.Map{"RspCode": "99", "Message": "Unknown error"})
}
