package handler

import (
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type CouponHandler struct {
	coupons service.CouponService
}

func NewCouponHandler(coupons service.CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// POST /api/v1/admin/coupons
func (h *CouponHandler) Create(c *fiber.Ctx) error {
	var cmd service.CreateCouponCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.PerformedBy = actor(c)

	coupon, err := h.coupons.Create(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Coupon created", "data": coupon})
}

// GET /api/v1/admin/coupons?include_deleted=true
func (h *CouponHandler) List(c *fiber.Ctx) error {
	coupons, err := h.coupons.List(c.UserContext(), c.QueryBool("include_deleted", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": coupons})
}

// DELETE /api/v1/admin/coupons/:id
func (h *CouponHandler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid coupon ID")
	}
	if err := h.coupons.Delete(c.UserContext(), id, actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Coupon deleted"})
}

// PATCH /api/v1/admin/coupons/:id/restore
func (h *CouponHandler) Restore(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid coupon ID")
	}
	coupon, err := h.coupons.Restore(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Coupon restored", "data": coupon})
}
