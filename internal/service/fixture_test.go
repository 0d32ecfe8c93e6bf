package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/repository/memory"
	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures published events and notifications.
type recorder struct {
	mu            sync.Mutex
	events        []service.Event
	notifications []string
}

func (r *recorder) Publish(_ context.Context, e service.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Notify(_ context.Context, _ uuid.UUID, template string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, template)
	return nil
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// fakeGateway trusts callbacks whose "sig" parameter is "ok".
type fakeGateway struct {
	mu   sync.Mutex
	fail bool
	urls int
}

func (g *fakeGateway) CreatePaymentURL(_ context.Context, req service.PaymentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errors.New("gateway timeout")
	}
	g.urls++
	return "https://pay.test/" + req.OrderCode + "?amount=" + strconv.FormatInt(req.Amount, 10), nil
}

func (g *fakeGateway) VerifyCallback(_ context.Context, params map[string]string) (*service.PaymentCallback, error) {
	if params["sig"] != "ok" {
		return nil, errors.New("bad signature")
	}
	amount, _ := strconv.ParseInt(params["amount"], 10, 64)
	return &service.PaymentCallback{
		Success:       params["code"] == "00",
		OrderCode:     params["ref"],
		TransactionID: params["txn"],
		Amount:        amount,
		ResponseCode:  params["code"],
		Params:        params,
	}, nil
}

type fakeDisburser struct {
	mu    sync.Mutex
	fail  bool
	calls []service.RefundDisbursement
}

func (d *fakeDisburser) Disburse(_ context.Context, r service.RefundDisbursement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("bank unavailable")
	}
	d.calls = append(d.calls, r)
	return nil
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	repos     repository.Repositories
	clock     *testClock
	rec       *recorder
	gateway   *fakeGateway
	disburser *fakeDisburser

	inventory  service.InventoryService
	pricing    service.PricingService
	coupons    service.CouponService
	loyalty    service.LoyaltyService
	payments   service.PaymentService
	orders     service.OrderService
	cancels    service.CancellationService
	returns    service.ReturnService
	cart       service.CartService
	addresses  service.AddressService
	reconciler service.SagaReconciler
}

var testRetry = service.RetryPolicy{MaxRetries: 200, Backoff: 0}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		repos:     memory.NewStore().Repositories(),
		clock:     &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		rec:       &recorder{},
		gateway:   &fakeGateway{},
		disburser: &fakeDisburser{},
	}
	f.inventory = service.NewInventoryService(service.InventoryDeps{Repo: f.repos.Inventory, Events: f.rec, Retry: testRetry})
	f.pricing = service.NewPricingService(service.PricingDeps{
		Inventory: f.repos.Inventory,
		Coupons:   f.repos.Coupons,
		Shipping:  service.FlatRate{Fee: 30000, FreeThreshold: 500000},
		Clock:     f.clock.Now,
	})
	f.coupons = service.NewCouponService(f.repos.Coupons)
	f.loyalty = service.NewLoyaltyService(service.LoyaltyDeps{
		Repo:        f.repos.Loyalty,
		Notifier:    f.rec,
		Retry:       testRetry,
		VNDPerPoint: 10000,
		ExpiryDays:  365,
		Clock:       f.clock.Now,
	})
	f.payments = service.NewPaymentService(service.PaymentDeps{
		Orders:   f.repos.Orders,
		Payments: f.repos.Payments,
		Gateway:  f.gateway,
		Events:   f.rec,
		Notifier: f.rec,
		Retry:    testRetry,
	})
	f.orders = service.NewOrderService(service.OrderDeps{
		Orders:    f.repos.Orders,
		Addresses: f.repos.Addresses,
		Cart:      f.repos.Cart,
		Coupons:   f.repos.Coupons,
		Sagas:     f.repos.Sagas,
		Inventory: f.inventory,
		Pricing:   f.pricing,
		Loyalty:   f.loyalty,
		Payments:  f.payments,
		Events:    f.rec,
		Notifier:  f.rec,
		Retry:     testRetry,
		Clock:     f.clock.Now,
	})
	f.cancels = service.NewCancellationService(service.CancellationDeps{
		Requests: f.repos.Cancels,
		Orders:   f.repos.Orders,
		OrderSvc: f.orders,
		Events:   f.rec,
		Notifier: f.rec,
		Retry:    testRetry,
		Clock:    f.clock.Now,
	})
	f.returns = f.returnService(f.inventory)
	f.cart = service.NewCartService(f.repos.Cart, f.repos.Inventory, f.pricing)
	f.addresses = service.NewAddressService(f.repos.Addresses)
	f.reconciler = service.NewSagaReconciler(service.ReconcilerDeps{
		Sagas:      f.repos.Sagas,
		Orders:     f.repos.Orders,
		Coupons:    f.repos.Coupons,
		Inventory:  f.inventory,
		OrderSvc:   f.orders,
		StaleAfter: 2 * time.Minute,
		Clock:      f.clock.Now,
	})
	return f
}

// returnService builds a return service over the fixture's stores with inventory as its ledger.
func (f *fixture) returnService(inventory service.InventoryService) service.ReturnService {
	return service.NewReturnService(service.ReturnDeps{
		Requests:   f.repos.Returns,
		Orders:     f.repos.Orders,
		Sagas:      f.repos.Sagas,
		Inventory:  inventory,
		Loyalty:    f.loyalty,
		Disburser:  f.disburser,
		Events:     f.rec,
		Notifier:   f.rec,
		Retry:      testRetry,
		WindowDays: 7,
		Clock:      f.clock.Now,
	})
}

func (f *fixture) stock(name, size string, qty int, price int64) *model.InventoryItem {
	f.t.Helper()
	item, err := f.inventory.CreateItem(f.ctx, service.CreateItemCommand{
		ProductID:       uuid.New(),
		VariantID:       uuid.New(),
		Size:            size,
		ProductName:     name,
		SellingPrice:    price,
		CostPrice:       price / 2,
		InitialQuantity: qty,
		PerformedBy:     "test",
	})
	require.NoError(f.t, err)
	return item
}

// sibling stocks another size of the same product and variant.
func (f *fixture) sibling(of *model.InventoryItem, size string, qty int) *model.InventoryItem {
	f.t.Helper()
	item, err := f.inventory.CreateItem(f.ctx, service.CreateItemCommand{
		ProductID:       of.ProductID,
		VariantID:       of.VariantID,
		Size:            size,
		ProductName:     of.ProductName,
		SellingPrice:    of.SellingPrice,
		InitialQuantity: qty,
		PerformedBy:     "test",
	})
	require.NoError(f.t, err)
	return item
}

func (f *fixture) quantity(id uuid.UUID) int {
	f.t.Helper()
	item, err := f.inventory.GetItem(f.ctx, id)
	require.NoError(f.t, err)
	return item.Quantity
}

func (f *fixture) requireLedgerConsistent(id uuid.UUID) {
	f.t.Helper()
	report, err := f.inventory.VerifyLedger(f.ctx, id)
	require.NoError(f.t, err)
	require.True(f.t, report.Consistent, "ledger problems: %v", report.Problems)
}

func (f *fixture) customer() (uuid.UUID, *model.Address) {
	f.t.Helper()
	userID := uuid.New()
	addr, err := f.addresses.Create(f.ctx, userID, &model.Address{
		RecipientName: "Nguyen Van A",
		Phone:         "0901234567",
		Line1:         "12 Le Loi",
		District:      "District 1",
		City:          "Ho Chi Minh City",
		IsDefault:     true,
	})
	require.NoError(f.t, err)
	return userID, addr
}

func (f *fixture) checkout(userID uuid.UUID, addr *model.Address, method model.PaymentMethod, coupon string, lines ...service.CartLine) (*service.CheckoutResult, error) {
	return f.orders.CreateOrder(f.ctx, service.CheckoutCommand{
		UserID:        userID,
		AddressID:     addr.ID,
		PaymentMethod: method,
		CouponCode:    coupon,
		Lines:         lines,
	})
}

func (f *fixture) mustCheckout(userID uuid.UUID, addr *model.Address, lines ...service.CartLine) *model.Order {
	f.t.Helper()
	res, err := f.checkout(userID, addr, model.PaymentCOD, "", lines...)
	require.NoError(f.t, err)
	return res.Order
}

func (f *fixture) transition(orderID uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	return f.orders.Transition(f.ctx, service.TransitionCommand{OrderID: orderID, Target: to, ActorID: "admin@test"})
}

func (f *fixture) deliver(orderID uuid.UUID) *model.Order {
	f.t.Helper()
	var order *model.Order
	for _, to := range []model.OrderStatus{model.OrderConfirmed, model.OrderShipping, model.OrderDelivered} {
		var err error
		order, err = f.transition(orderID, to)
		require.NoError(f.t, err)
	}
	return order
}

func line(item *model.InventoryItem, qty int) service.CartLine {
	return service.CartLine{InventoryItemID: item.ID, Quantity: qty}
}

func requireKind(t *testing.T, err error, kind service.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, service.KindOf(err), "error: %v", err)
}

func uuidFor(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	id[6] = 0x40
	id[8] = 0x80
	return id
}
