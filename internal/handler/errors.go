package handler

import (
	"errors"

	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var statusByKind = map[service.Kind]int{
	service.KindValidation:             fiber.StatusBadRequest,
	service.KindIllegalTransition:      fiber.StatusConflict,
	service.KindInsufficientStock:      fiber.StatusConflict,
	service.KindCouponInvalid:          fiber.StatusUnprocessableEntity,
	service.KindDuplicateReturnRequest: fiber.StatusConflict,
	service.KindOrderNotDelivered:      fiber.StatusUnprocessableEntity,
	service.KindNotCancellable:         fiber.StatusUnprocessableEntity,
	service.KindNotFound:               fiber.StatusNotFound,
	service.KindInsufficientPoints:     fiber.StatusUnprocessableEntity,
	service.KindPaymentGateway:         fiber.StatusBadGateway,
	service.KindConflict:               fiber.StatusConflict,
	service.KindForbidden:              fiber.StatusForbidden,
}

// StatusFor maps a service error kind onto an HTTP status.
func StatusFor(kind service.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

// respondError writes business failures as {"error", "code"}. Anything else goes to the app
// error handler, which logs it and hides the detail.
func respondError(c *fiber.Ctx, err error) error {
	kind := service.KindOf(err)
	if kind == "" {
		return err
	}
	return c.Status(StatusFor(kind)).JSON(fiber.Map{"error": service.Message(err), "code": kind})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": service.KindValidation})
}

// ErrorHandler is installed as fiber.Config.ErrorHandler.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}
}
