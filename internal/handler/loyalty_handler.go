package handler

import (
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type LoyaltyHandler struct {
	loyalty service.LoyaltyService
}

func NewLoyaltyHandler(loyalty service.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyalty}
}

// GET /api/v1/loyalty
func (h *LoyaltyHandler) Mine(c *fiber.Ctx) error {
	summary, err := h.loyalty.Summary(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": summary})
}

// POST /api/v1/admin/loyalty/adjust
func (h *LoyaltyHandler) Adjust(c *fiber.Ctx) error {
	var cmd service.AdjustPointsCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.PerformedBy = actor(c)

	entry, err := h.loyalty.Adjust(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Points adjusted", "data": entry})
}
