package handler

import (
	"storefront-engine/internal/model"
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type CartHandler struct {
	cart      service.CartService
	addresses service.AddressService
}

func NewCartHandler(cart service.CartService, addresses service.AddressService) *CartHandler {
	return &CartHandler{cart: cart, addresses: addresses}
}

// GET /api/v1/cart
func (h *CartHandler) Get(c *fiber.Ctx) error {
	view, err := h.cart.Get(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": view})
}

// PUT /api/v1/cart/items
func (h *CartHandler) SetItem(c *fiber.Ctx) error {
	var cmd service.CartItemCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.UserID = userID(c)

	item, err := h.cart.SetItem(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Cart updated", "data": item})
}

// DELETE /api/v1/cart/items/:id
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	if err := h.cart.RemoveItem(c.UserContext(), userID(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item removed"})
}

// GET /api/v1/addresses
func (h *CartHandler) Addresses(c *fiber.Ctx) error {
	addrs, err := h.addresses.List(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": addrs})
}

// POST /api/v1/addresses
func (h *CartHandler) CreateAddress(c *fiber.Ctx) error {
	var addr model.Address
	if err := c.BodyParser(&addr); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	created, err := h.addresses.Create(c.UserContext(), userID(c), &addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Address saved", "data": created})
}

// DELETE /api/v1/addresses/:id
func (h *CartHandler) DeleteAddress(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid address ID")
	}
	if err := h.addresses.Delete(c.UserContext(), userID(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Address deleted"})
}
