package service

import (
	"context"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
)

type CartItemCommand struct {
	UserID          uuid.UUID `json:"-" validate:"uuid_required"`
	InventoryItemID uuid.UUID `json:"inventory_item_id" validate:"uuid_required"`
	Quantity        int       `json:"quantity" validate:"required,gt=0,lte=99"`
}

// CartView is the priced cart as the customer sees it before checkout.
type CartView struct {
	Items    []model.CartItem `json:"items"`
	Lines    []PricedLine     `json:"lines"`
	SubTotal int64            `json:"sub_total"`
}

type CartService interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartView, error)
	SetItem(ctx context.Context, cmd CartItemCommand) (*model.CartItem, error)
	RemoveItem(ctx context.Context, userID, inventoryItemID uuid.UUID) error
}

type cartService struct {
	cart      repository.CartRepository
	inventory repository.InventoryRepository
	pricing   PricingService
}

func NewCartService(cart repository.CartRepository, inventory repository.InventoryRepository, pricing PricingService) CartService {
	return &cartService{cart: cart, inventory: inventory, pricing: pricing}
}

func (s *cartService) Get(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	items, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &CartView{Items: items}
	if len(items) == 0 {
		return view, nil
	}
	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, CartLine{InventoryItemID: it.InventoryItemID, Quantity: it.Quantity})
	}
	view.Lines, err = s.pricing.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	for _, l := range view.Lines {
		view.SubTotal += l.Total()
	}
	return view, nil
}

// SetItem sets the quantity of one item. Stock is only checked, never reserved.
func (s *cartService) SetItem(ctx context.Context, cmd CartItemCommand) (*model.CartItem, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	item, err := s.inventory.FindByID(ctx, cmd.InventoryItemID)
	if err != nil {
		return nil, notFound(err, "inventory item")
	}
	if item.Quantity < cmd.Quantity {
		return nil, newError(KindInsufficientStock, "only %d of %s (%s) left", item.Quantity, item.ProductName, item.Size)
	}
	entry := &model.CartItem{
		ID:              uuid.New(),
		UserID:          cmd.UserID,
		InventoryItemID: cmd.InventoryItemID,
		Quantity:        cmd.Quantity,
		UpdatedAt:       time.Now(),
	}
	if err := s.cart.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, inventoryItemID uuid.UUID) error {
	return notFound(s.cart.Delete(ctx, userID, inventoryItemID), "cart item")
}
