package handler

import (
	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ReturnHandler struct {
	returns service.ReturnService
}

func NewReturnHandler(returns service.ReturnService) *ReturnHandler {
	return &ReturnHandler{returns: returns}
}

// POST /api/v1/returns
func (h *ReturnHandler) Create(c *fiber.Ctx) error {
	var cmd service.CreateReturnCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.CustomerID = userID(c)

	req, err := h.returns.CreateReturnRequest(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Return request created",
		"data":    req,
	})
}

// GET /api/v1/returns
func (h *ReturnHandler) Mine(c *fiber.Ctx) error {
	uid := userID(c)
	reqs, err := h.returns.List(c.UserContext(), repository.ReturnRequestFilter{
		CustomerID: &uid,
		OrderID:    queryID(c, "order_id"),
		Status:     model.ReturnStatus(c.Query("status")),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": reqs})
}

// PATCH /api/v1/returns/:id/cancel
func (h *ReturnHandler) CancelMine(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid return request ID")
	}
	req, err := h.returns.CancelByCustomer(c.UserContext(), id, userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Return request canceled", "data": req})
}

// GET /api/v1/admin/returns
func (h *ReturnHandler) List(c *fiber.Ctx) error {
	reqs, err := h.returns.List(c.UserContext(), repository.ReturnRequestFilter{
		CustomerID: queryID(c, "customer_id"),
		OrderID:    queryID(c, "order_id"),
		Status:     model.ReturnStatus(c.Query("status")),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": reqs})
}

// GET /api/v1/admin/returns/:id
func (h *ReturnHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid return request ID")
	}
	req, err := h.returns.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": req})
}

func (h *ReturnHandler) review(c *fiber.Ctx, do func(service.ReviewReturnCommand) (*model.ReturnRequest, error), message string) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid return request ID")
	}
	var cmd service.ReviewReturnCommand
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&cmd); err != nil {
			return badRequest(c, "Invalid JSON")
		}
	}
	cmd.RequestID = id
	cmd.ActorID = actor(c)

	req, err := do(cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": message, "data": req})
}

// PATCH /api/v1/admin/returns/:id/approve
func (h *ReturnHandler) Approve(c *fiber.Ctx) error {
	return h.review(c, func(cmd service.ReviewReturnCommand) (*model.ReturnRequest, error) {
		return h.returns.Approve(c.UserContext(), cmd)
	}, "Return request approved")
}

// PATCH /api/v1/admin/returns/:id/reject
func (h *ReturnHandler) Reject(c *fiber.Ctx) error {
	return h.review(c, func(cmd service.ReviewReturnCommand) (*model.ReturnRequest, error) {
		return h.returns.Reject(c.UserContext(), cmd)
	}, "Return request rejected")
}

// POST /api/v1/admin/returns/:id/process-return
func (h *ReturnHandler) ProcessReturn(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid return request ID")
	}
	req, err := h.returns.ProcessReturn(c.UserContext(), id, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Return processed", "data": req})
}

// POST /api/v1/admin/returns/:id/process-exchange
func (h *ReturnHandler) ProcessExchange(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid return request ID")
	}
	req, err := h.returns.ProcessExchange(c.UserContext(), id, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Exchange processed", "data": req})
}
