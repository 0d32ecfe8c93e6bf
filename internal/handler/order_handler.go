package handler

import (
	"storefront-engine/internal/middleware"
	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	orders   service.OrderService
	cancels  service.CancellationService
	payments service.PaymentService
}

func NewOrderHandler(orders service.OrderService, cancels service.CancellationService, payments service.PaymentService) *OrderHandler {
	return &OrderHandler{orders: orders, cancels: cancels, payments: payments}
}

// Checkout places an order from the cart, or from the items in the body when given.
// POST /api/v1/orders
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	var cmd service.CheckoutCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.UserID = userID(c)
	cmd.ClientIP = c.IP()

	result, err := h.orders.CreateOrder(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order placed",
		"data":    result,
	})
}

// POST /api/v1/orders/preview
func (h *OrderHandler) Preview(c *fiber.Ctx) error {
	var cmd service.PreviewCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.UserID = userID(c)

	totals, err := h.orders.Preview(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": totals})
}

// GET /api/v1/orders
func (h *OrderHandler) MyOrders(c *fiber.Ctx) error {
	uid := userID(c)
	limit, offset := page(c)
	orders, err := h.orders.ListOrders(c.UserContext(), repository.OrderFilter{
		UserID: &uid,
		Status: model.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": orders})
}

// GET /api/v1/orders/:id
func (h *OrderHandler) MyOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	var (
		order *model.Order
		err   error
	)
	if canSeeAll(c) {
		order, err = h.orders.GetOrder(c.UserContext(), id)
	} else {
		order, err = h.orders.GetOrderFor(c.UserContext(), id, userID(c))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": order})
}

// RequestCancel files a cancellation request for admin review.
// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) RequestCancel(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	var cmd service.CancelRequestCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.OrderID = id
	cmd.UserID = userID(c)

	req, err := h.cancels.RequestCancellation(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Cancellation requested",
		"data":    req,
	})
}

// POST /api/v1/orders/:id/payment-url
func (h *OrderHandler) PaymentURL(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	url, err := h.payments.RetryPayment(c.UserContext(), id, userID(c), c.IP())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"payment_url": url}})
}

// GET /api/v1/admin/orders
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	limit, offset := page(c)
	orders, err := h.orders.ListOrders(c.UserContext(), repository.OrderFilter{
		UserID: queryID(c, "user_id"),
		Status: model.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": orders})
}

// GET /api/v1/admin/orders/:id
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	order, err := h.orders.GetOrder(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": order})
}

// UpdateStatus moves the order along confirmed, shipping and delivered. Cancelling goes through AdminCancel.
// PATCH /api/v1/admin/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	var req struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	if req.Status == model.OrderCancelled {
		return badRequest(c, "Use PATCH /admin/orders/:id/cancel to cancel an order")
	}

	order, err := h.orders.Transition(c.UserContext(), service.TransitionCommand{
		OrderID: id,
		Target:  req.Status,
		ActorID: actor(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Order status updated", "data": order})
}

// PATCH /api/v1/admin/orders/:id/cancel
func (h *OrderHandler) AdminCancel(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid order ID")
	}
	var cmd service.AdminCancelCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.OrderID = id
	cmd.ActorID = actor(c)

	order, err := h.cancels.AdminCancelOrder(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Order cancelled", "data": order})
}

// GET /api/v1/admin/cancel-requests
func (h *OrderHandler) ListCancelRequests(c *fiber.Ctx) error {
	reqs, err := h.cancels.List(c.UserContext(), repository.CancelRequestFilter{
		OrderID: queryID(c, "order_id"),
		Status:  model.CancelRequestStatus(c.Query("status")),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": reqs})
}

// PATCH /api/v1/admin/cancel-requests/:id
func (h *OrderHandler) ResolveCancelRequest(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid cancel request ID")
	}
	var cmd service.ResolveCancelCommand
	if err := c.BodyParser(&cmd); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	cmd.RequestID = id
	cmd.ActorID = actor(c)

	req, err := h.cancels.ResolveCancellation(c.UserContext(), cmd)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Cancel request " + string(req.Status), "data": req})
}

// canSeeAll lets staff open any order from the customer routes.
func canSeeAll(c *fiber.Ctx) bool {
	return middleware.HasPrivilege(c, model.PrivOrderView)
}
