package service

import (
	"context"
	"errors"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartLine struct {
	InventoryItemID uuid.UUID `json:"inventory_item_id" validate:"uuid_required"`
	Quantity        int       `json:"quantity" validate:"required,gt=0"`
}

// PricedLine is a cart line with the price snapshot taken at computation time.
type PricedLine struct {
	Item            *model.InventoryItem `json:"item"`
	Quantity        int                  `json:"quantity"`
	PriceAtPurchase int64                `json:"price_at_purchase"`
}

func (l PricedLine) Total() int64 {
	return l.PriceAtPurchase * int64(l.Quantity)
}

type OrderTotals struct {
	Lines       []PricedLine  `json:"lines"`
	SubTotal    int64         `json:"sub_total"`
	Discount    int64         `json:"discount"`
	ShippingFee int64         `json:"shipping_fee"`
	Total       int64         `json:"total"`
	Coupon      *model.Coupon `json:"coupon,omitempty"`
}

// ShippingRater prices delivery. It is treated as a pure input to the totals.
type ShippingRater interface {
	Rate(ctx context.Context, address model.AddressSnapshot, subTotal int64) (int64, error)
}

// FlatRate charges Fee, or nothing once the subtotal reaches FreeThreshold (0 disables free shipping).
type FlatRate struct {
	Fee           int64
	FreeThreshold int64
}

func (r FlatRate) Rate(_ context.Context, _ model.AddressSnapshot, subTotal int64) (int64, error) {
	if r.FreeThreshold > 0 && subTotal >= r.FreeThreshold {
		return 0, nil
	}
	return r.Fee, nil
}

type PricingService interface {
	// PriceLines snapshots FinalPrice for every line, merging repeated items in first-seen order.
	PriceLines(ctx context.Context, lines []CartLine) ([]PricedLine, error)
	ComputeOrderTotals(ctx context.Context, userID uuid.UUID, lines []PricedLine, couponCode string, address model.AddressSnapshot) (*OrderTotals, error)
}

type PricingDeps struct {
	Inventory repository.InventoryRepository
	Coupons   repository.CouponRepository
	Shipping  ShippingRater
	Clock     func() time.Time
}

type pricingService struct {
	inventory repository.InventoryRepository
	coupons   repository.CouponRepository
	shipping  ShippingRater
	now       func() time.Time
}

func NewPricingService(deps PricingDeps) PricingService {
	if deps.Shipping == nil {
		deps.Shipping = FlatRate{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &pricingService{
		inventory: deps.Inventory,
		coupons:   deps.Coupons,
		shipping:  deps.Shipping,
		now:       deps.Clock,
	}
}

func (s *pricingService) PriceLines(ctx context.Context, lines []CartLine) ([]PricedLine, error) {
	if len(lines) == 0 {
		return nil, newError(KindValidation, "cart is empty")
	}
	index := map[uuid.UUID]int{}
	var priced []PricedLine
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, newError(KindValidation, "quantity must be positive")
		}
		if i, ok := index[l.InventoryItemID]; ok {
			priced[i].Quantity += l.Quantity
			continue
		}
		item, err := s.inventory.FindByID(ctx, l.InventoryItemID)
		if err != nil {
			return nil, notFound(err, "inventory item")
		}
		index[l.InventoryItemID] = len(priced)
		priced = append(priced, PricedLine{Item: item, Quantity: l.Quantity, PriceAtPurchase: item.FinalPrice})
	}
	return priced, nil
}

func (s *pricingService) ComputeOrderTotals(ctx context.Context, userID uuid.UUID, lines []PricedLine, couponCode string, address model.AddressSnapshot) (*OrderTotals, error) {
	totals := &OrderTotals{Lines: lines}
	for _, l := range lines {
		totals.SubTotal += l.Total()
	}

	if couponCode != "" {
		coupon, err := s.coupons.FindByCode(ctx, couponCode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindCouponInvalid, "coupon %s does not exist", couponCode)
		}
		if err != nil {
			return nil, err
		}
		if err := CheckCoupon(coupon, totals.SubTotal, s.now()); err != nil {
			return nil, err
		}
		used, err := s.coupons.HasUsage(ctx, coupon.ID, userID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, newError(KindCouponInvalid, "you have already used coupon %s", coupon.Code)
		}
		totals.Coupon = coupon
		totals.Discount = CouponDiscount(coupon, totals.SubTotal)
	}

	fee, err := s.shipping.Rate(ctx, address, totals.SubTotal)
	if err != nil {
		return nil, err
	}
	totals.ShippingFee = fee
	totals.Total = totals.SubTotal - totals.Discount + totals.ShippingFee
	return totals, nil
}

// CheckCoupon applies the eligibility rules that do not depend on the user.
func CheckCoupon(c *model.Coupon, subTotal int64, now time.Time) error {
	switch {
	case !c.IsActive:
		return newError(KindCouponInvalid, "coupon %s is not active", c.Code)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return newError(KindCouponInvalid, "coupon %s is not valid yet", c.Code)
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return newError(KindCouponInvalid, "coupon %s has expired", c.Code)
	case subTotal < c.MinOrderValue:
		return newError(KindCouponInvalid, "coupon %s needs an order of at least %d", c.Code, c.MinOrderValue)
	case c.Exhausted():
		return newError(KindCouponInvalid, "coupon %s has been fully redeemed", c.Code)
	}
	return nil
}

// CouponDiscount never exceeds subTotal. Percent coupons are also capped by MaxDiscountAmount when set.
func CouponDiscount(c *model.Coupon, subTotal int64) int64 {
	var discount int64
	switch c.Type {
	case model.CouponPercent:
		discount = decimal.NewFromInt(subTotal).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(100)).
			Floor().IntPart()
		if c.MaxDiscountAmount > 0 && discount > c.MaxDiscountAmount {
			discount = c.MaxDiscountAmount
		}
	case model.CouponFixed:
		discount = c.Value
	}
	if discount > subTotal {
		discount = subTotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
