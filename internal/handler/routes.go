package handler

import (
	"storefront-engine/internal/app"
	"storefront-engine/internal/middleware"
	"storefront-engine/internal/model"
	"storefront-engine/internal/ws"
	"storefront-engine/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Register mounts every route on the app.
func Register(a *fiber.App, svc *app.Services, tokens *jwt.Manager, hub *ws.Hub, log *zap.Logger) {
	orderHandler := NewOrderHandler(svc.Orders, svc.Cancellations, svc.Payments)
	returnHandler := NewReturnHandler(svc.Returns)
	invHandler := NewInventoryHandler(svc.Inventory)
	couponHandler := NewCouponHandler(svc.Coupons)
	loyaltyHandler := NewLoyaltyHandler(svc.Loyalty)
	cartHandler := NewCartHandler(svc.Cart, svc.Addresses)
	paymentHandler := NewPaymentHandler(svc.Payments, log)

	api := a.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	api.Get("/payments/vnpay/callback", paymentHandler.VNPay)
	api.Get("/inventory/:id", invHandler.Availability)

	// ============ CUSTOMER ROUTES ============
	protected := api.Group("", middleware.RequireAuth(tokens))

	protected.Get("/cart", cartHandler.Get)
	protected.Put("/cart/items", cartHandler.SetItem)
	protected.Delete("/cart/items/:id", cartHandler.RemoveItem)

	protected.Get("/addresses", cartHandler.Addresses)
	protected.Post("/addresses", cartHandler.CreateAddress)
	protected.Delete("/addresses/:id", cartHandler.DeleteAddress)

	protected.Post("/orders", orderHandler.Checkout)
	protected.Post("/orders/preview", orderHandler.Preview)
	protected.Get("/orders", orderHandler.MyOrders)
	protected.Get("/orders/:id", orderHandler.MyOrder)
	protected.Post("/orders/:id/cancel", orderHandler.RequestCancel)
	protected.Post("/orders/:id/payment-url", orderHandler.PaymentURL)

	protected.Post("/returns", returnHandler.Create)
	protected.Get("/returns", returnHandler.Mine)
	protected.Patch("/returns/:id/cancel", returnHandler.CancelMine)

	protected.Get("/loyalty", loyaltyHandler.Mine)

	// ============ ADMIN ROUTES ============
	admin := protected.Group("/admin")

	admin.Get("/orders", middleware.RequirePrivilege(model.PrivOrderView), orderHandler.ListOrders)
	admin.Get("/orders/:id", middleware.RequirePrivilege(model.PrivOrderView), orderHandler.GetOrder)
	admin.Patch("/orders/:id/status", middleware.RequirePrivilege(model.PrivOrderManage), orderHandler.UpdateStatus)
	admin.Patch("/orders/:id/cancel", middleware.RequirePrivilege(model.PrivOrderManage), orderHandler.AdminCancel)

	admin.Get("/cancel-requests", middleware.RequireAnyPrivilege(model.PrivCancelResolve, model.PrivOrderView), orderHandler.ListCancelRequests)
	admin.Patch("/cancel-requests/:id", middleware.RequirePrivilege(model.PrivCancelResolve), orderHandler.ResolveCancelRequest)

	returns := admin.Group("/returns", middleware.RequirePrivilege(model.PrivReturnManage))
	returns.Get("", returnHandler.List)
	returns.Get("/:id", returnHandler.Get)
	returns.Patch("/:id/approve", returnHandler.Approve)
	returns.Patch("/:id/reject", returnHandler.Reject)
	returns.Post("/:id/process-return", returnHandler.ProcessReturn)
	returns.Post("/:id/process-exchange", returnHandler.ProcessExchange)

	inventory := admin.Group("/inventory")
	inventory.Get("", middleware.RequirePrivilege(model.PrivInventoryView), invHandler.ListItems)
	inventory.Get("/:id", middleware.RequirePrivilege(model.PrivInventoryView), invHandler.GetItem)
	inventory.Get("/:id/transactions", middleware.RequirePrivilege(model.PrivInventoryView), invHandler.Transactions)
	inventory.Get("/:id/audit", middleware.RequirePrivilege(model.PrivInventoryView), invHandler.Audit)
	inventory.Post("", middleware.RequirePrivilege(model.PrivInventoryWrite), invHandler.CreateItem)
	inventory.Put("/:id/pricing", middleware.RequirePrivilege(model.PrivInventoryWrite), invHandler.SetPricing)
	inventory.Post("/:id/movements/:kind", middleware.RequirePrivilege(model.PrivInventoryWrite), invHandler.Move)
	inventory.Post("/:id/adjust", middleware.RequirePrivilege(model.PrivInventoryWrite), invHandler.Adjust)

	coupons := admin.Group("/coupons", middleware.RequirePrivilege(model.PrivCouponManage))
	coupons.Post("", couponHandler.Create)
	coupons.Get("", couponHandler.List)
	coupons.Delete("/:id", couponHandler.Delete)
	coupons.Patch("/:id/restore", couponHandler.Restore)

	admin.Post("/loyalty/adjust", middleware.RequirePrivilege(model.PrivLoyaltyAdjust), loyaltyHandler.Adjust)

	// WebSocket Route
	if hub != nil {
		a.Use("/ws", middleware.RequireAuth(tokens), Upgrade)
		a.Get("/ws", Stream(hub))
	}
}
