package handler

import (
	"context"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type InventoryHandler struct {
	service service.InventoryService
}

func NewInventoryHandler(s service.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: s}
}

type movementFunc func(context.Context, service.MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)

func (h *InventoryHandler) movements() map[string]movementFunc {
	return map[string]movementFunc{
		"restock":      h.service.Restock,
		"return":       h.service.Return,
		"exchange_in":  h.service.ExchangeIn,
		"exchange_out": h.service.ExchangeOut,
		"damage":       h.service.Damage,
		"lost":         h.service.Lost,
	}
}

// POST /api/v1/admin/inventory
func (h *InventoryHandler) CreateItem(c *fiber.Ctx) error {
	var cmd service.CreateItemCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.PerformedBy = actor(c)

	item, err := h.service.CreateItem(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Inventory item created", "data": item})
}

// GET /api/v1/admin/inventory
func (h *InventoryHandler) ListItems(c *fiber.Ctx) error {
	limit, offset := page(c)
	items, err := h.service.ListItems(c.UserContext(), repository.InventoryFilter{
		ProductID:    queryID(c, "product_id"),
		LowStockOnly: c.QueryBool("low_stock", false),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": items})
}

// GET /api/v1/admin/inventory/:id
func (h *InventoryHandler) GetItem(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	item, err := h.service.GetItem(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": item})
}

// PUT /api/v1/admin/inventory/:id/pricing
func (h *InventoryHandler) SetPricing(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	var cmd service.PricingCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.ItemID = id
	cmd.PerformedBy = actor(c)

	item, err := h.service.SetPricing(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Pricing updated", "data": item})
}

// Move records a stock movement of the kind named in the path.
// POST /api/v1/admin/inventory/:id/movements/:kind
func (h *InventoryHandler) Move(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	move, ok := h.movements()[c.Params("kind")]
	if !ok {
		return badRequest(c, "Unknown movement kind")
	}
	var cmd service.MovementCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.ItemID = id
	cmd.PerformedBy = actor(c)
	if cmd.ReferenceType == "" {
		cmd.ReferenceType = model.RefManual
	}

	item, entry, err := move(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Transaction recorded",
		"data":    fiber.Map{"item": item, "transaction": entry},
	})
}

// POST /api/v1/admin/inventory/:id/adjust
func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	var cmd service.AdjustCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.ItemID = id
	cmd.PerformedBy = actor(c)

	item, entry, err := h.service.Adjust(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Stock adjusted",
		"data":    fiber.Map{"item": item, "transaction": entry},
	})
}

// GET /api/v1/admin/inventory/:id/transactions
func (h *InventoryHandler) Transactions(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	entries, err := h.service.ListTransactions(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": entries})
}

// Audit replays the ledger of one item against its stored quantity.
// GET /api/v1/admin/inventory/:id/audit
func (h *InventoryHandler) Audit(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	report, err := h.service.VerifyLedger(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if !report.Consistent {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"data": report})
}

// GET /api/v1/inventory/:id
func (h *InventoryHandler) Availability(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid inventory item ID")
	}
	item, err := h.service.GetItem(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"inventory_item_id": item.ID,
		"product_name":      item.ProductName,
		"size":              item.Size,
		"final_price":       item.FinalPrice,
		"in_stock":          item.Quantity > 0,
		"quantity":          item.Quantity,
	}})
}
