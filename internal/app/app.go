// Package app wires repositories into services the same way for the server and for tests.
package app

import (
	"storefront-engine/internal/notify"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/service"
	"storefront-engine/pkg/config"
	"storefront-engine/pkg/vnpay"

	"go.uber.org/zap"
)

type Services struct {
	Inventory     service.InventoryService
	Pricing       service.PricingService
	Coupons       service.CouponService
	Loyalty       service.LoyaltyService
	Payments      service.PaymentService
	Orders        service.OrderService
	Cancellations service.CancellationService
	Returns       service.ReturnService
	Cart          service.CartService
	Addresses     service.AddressService
	Reconciler    service.SagaReconciler
}

// Options overrides the collaborators main would otherwise derive from config.
type Options struct {
	Events    service.EventPublisher
	Notifier  service.Notifier
	Gateway   service.PaymentGateway
	Disburser service.RefundDisburser
}

// NewServices builds the service graph over repos.
func NewServices(cfg *config.Config, repos repository.Repositories, log *zap.Logger, opts Options) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogDispatcher(log)
	}
	if opts.Gateway == nil && cfg.VNPay.TmnCode != "" && cfg.VNPay.HashSecret != "" {
		client := vnpay.New(vnpay.Config{
			TmnCode:    cfg.VNPay.TmnCode,
			HashSecret: cfg.VNPay.HashSecret,
			PayURL:     cfg.VNPay.PayURL,
		})
		opts.Gateway = service.NewVNPayGateway(client, cfg.VNPay.ReturnURL)
	}
	if opts.Disburser == nil {
		opts.Disburser = service.NewLogDisburser(log.Named("refund"))
	}
	retry := service.RetryPolicy{MaxRetries: cfg.Ledger.MaxRetries, Backoff: cfg.Ledger.RetryBackoff}

	s := &Services{}
	s.Inventory = service.NewInventoryService(service.InventoryDeps{
		Repo:   repos.Inventory,
		Events: opts.Events,
		Logger: log.Named("inventory"),
		Retry:  retry,
	})
	s.Pricing = service.NewPricingService(service.PricingDeps{
		Inventory: repos.Inventory,
		Coupons:   repos.Coupons,
		Shipping:  service.FlatRate{Fee: cfg.Shipping.FlatFee, FreeThreshold: cfg.Shipping.FreeThreshold},
	})
	s.Coupons = service.NewCouponService(repos.Coupons)
	s.Loyalty = service.NewLoyaltyService(service.LoyaltyDeps{
		Repo:        repos.Loyalty,
		Notifier:    opts.Notifier,
		Logger:      log.Named("loyalty"),
		Retry:       retry,
		VNDPerPoint: cfg.Loyalty.VNDPerPoint,
		ExpiryDays:  cfg.Loyalty.ExpiryDays,
	})
	s.Payments = service.NewPaymentService(service.PaymentDeps{
		Orders:   repos.Orders,
		Payments: repos.Payments,
		Gateway:  opts.Gateway,
		Events:   opts.Events,
		Notifier: opts.Notifier,
		Logger:   log.Named("payment"),
		Retry:    retry,
	})
	s.Orders = service.NewOrderService(service.OrderDeps{
		Orders:    repos.Orders,
		Addresses: repos.Addresses,
		Cart:      repos.Cart,
		Coupons:   repos.Coupons,
		Sagas:     repos.Sagas,
		Inventory: s.Inventory,
		Pricing:   s.Pricing,
		Loyalty:   s.Loyalty,
		Payments:  s.Payments,
		Events:    opts.Events,
		Notifier:  opts.Notifier,
		Logger:    log.Named("order"),
		Retry:     retry,
	})
	s.Cancellations = service.NewCancellationService(service.CancellationDeps{
		Requests: repos.Cancels,
		Orders:   repos.Orders,
		OrderSvc: s.Orders,
		Events:   opts.Events,
		Notifier: opts.Notifier,
		Logger:   log.Named("cancellation"),
		Retry:    retry,
	})
	s.Returns = service.NewReturnService(service.ReturnDeps{
		Requests:   repos.Returns,
		Orders:     repos.Orders,
		Sagas:      repos.Sagas,
		Inventory:  s.Inventory,
		Loyalty:    s.Loyalty,
		Disburser:  opts.Disburser,
		Events:     opts.Events,
		Notifier:   opts.Notifier,
		Logger:     log.Named("return"),
		Retry:      retry,
		WindowDays: cfg.Returns.WindowDays,
	})
	s.Cart = service.NewCartService(repos.Cart, repos.Inventory, s.Pricing)
	s.Addresses = service.NewAddressService(repos.Addresses)
	s.Reconciler = service.NewSagaReconciler(service.ReconcilerDeps{
		Sagas:      repos.Sagas,
		Orders:     repos.Orders,
		Coupons:    repos.Coupons,
		Inventory:  s.Inventory,
		OrderSvc:   s.Orders,
		Logger:     log.Named("reconciler"),
		StaleAfter: cfg.Saga.StaleAfter,
	})
	return s
}
