package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyCommand is one stock mutation. QuantityChange is signed. SetQuantity, only valid with ADJUST,
// sets an absolute quantity instead and the change is derived from it.
type ApplyCommand struct {
	ItemID         uuid.UUID               `validate:"uuid_required"`
	Type           model.TransactionType   `validate:"required,oneof=IN OUT ADJUST"`
	Reason         model.TransactionReason `validate:"required"`
	QuantityChange int
	SetQuantity    *int `validate:"omitempty,gte=0"`
	Reference      string
	ReferenceType  string
	PerformedBy    string
	Note           string
	UnitCost       int64 `validate:"gte=0"`
	IdempotencyKey string
}

// MovementCommand feeds the fixed type/reason callers. Quantity is the unsigned amount moved.
type MovementCommand struct {
	ItemID         uuid.UUID `json:"inventory_item_id" validate:"uuid_required"`
	Quantity       int       `json:"quantity" validate:"required,gt=0"`
	Reference      string    `json:"reference"`
	ReferenceType  string    `json:"reference_type"`
	PerformedBy    string    `json:"-"`
	Note           string    `json:"note"`
	UnitCost       int64     `json:"unit_cost"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type AdjustCommand struct {
	ItemID         uuid.UUID `json:"inventory_item_id" validate:"uuid_required"`
	Change         int       `json:"change"`
	SetQuantity    *int      `json:"set_quantity" validate:"omitempty,gte=0"`
	PerformedBy    string    `json:"-"`
	Note           string    `json:"note"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type CreateItemCommand struct {
	ProductID         uuid.UUID `json:"product_id" validate:"uuid_required"`
	VariantID         uuid.UUID `json:"variant_id" validate:"uuid_required"`
	Size              string    `json:"size" validate:"required,max=20"`
	SKU               string    `json:"sku" validate:"max=64"`
	ProductName       string    `json:"product_name" validate:"required"`
	CostPrice         int64     `json:"cost_price" validate:"gte=0"`
	SellingPrice      int64     `json:"selling_price" validate:"gte=0"`
	DiscountPercent   float64   `json:"discount_percent" validate:"gte=0,lte=100"`
	LowStockThreshold *int      `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	InitialQuantity   int       `json:"initial_quantity" validate:"gte=0"`
	PerformedBy       string    `json:"-"`
}

type PricingCommand struct {
	ItemID            uuid.UUID `json:"-" validate:"uuid_required"`
	CostPrice         int64     `json:"cost_price" validate:"gte=0"`
	SellingPrice      int64     `json:"selling_price" validate:"gte=0"`
	DiscountPercent   float64   `json:"discount_percent" validate:"gte=0,lte=100"`
	LowStockThreshold *int      `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	PerformedBy       string    `json:"-"`
}

// LedgerReport is the result of replaying an item's transaction history.
type LedgerReport struct {
	ItemID     uuid.UUID `json:"inventory_item_id"`
	Quantity   int       `json:"quantity"`
	Replayed   int       `json:"replayed_quantity"`
	Entries    int       `json:"entries"`
	Consistent bool      `json:"consistent"`
	Problems   []string  `json:"problems,omitempty"`
}

type InventoryService interface {
	ApplyTransaction(ctx context.Context, cmd ApplyCommand) (*model.InventoryItem, *model.InventoryTransaction, error)

	Restock(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	Sale(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	Return(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	ExchangeIn(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	ExchangeOut(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	Damage(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	Lost(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error)
	Adjust(ctx context.Context, cmd AdjustCommand) (*model.InventoryItem, *model.InventoryTransaction, error)

	CreateItem(ctx context.Context, cmd CreateItemCommand) (*model.InventoryItem, error)
	SetPricing(ctx context.Context, cmd PricingCommand) (*model.InventoryItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error)
	FindByUnit(ctx context.Context, productID, variantID uuid.UUID, size string) (*model.InventoryItem, error)
	ListItems(ctx context.Context, filter repository.InventoryFilter) ([]model.InventoryItem, error)
	ListTransactions(ctx context.Context, itemID uuid.UUID) ([]model.InventoryTransaction, error)
	FindTransactionByKey(ctx context.Context, key string) (*model.InventoryTransaction, error)
	VerifyLedger(ctx context.Context, itemID uuid.UUID) (*LedgerReport, error)
}

type InventoryDeps struct {
	Repo   repository.InventoryRepository
	Events EventPublisher
	Logger *zap.Logger
	Retry  RetryPolicy
}

type inventoryService struct {
	repo  repository.InventoryRepository
	retry RetryPolicy
	sideEffects
}

func NewInventoryService(deps InventoryDeps) InventoryService {
	if deps.Retry == (RetryPolicy{}) {
		deps.Retry = DefaultRetryPolicy
	}
	return &inventoryService{
		repo:        deps.Repo,
		retry:       deps.Retry,
		sideEffects: newSideEffects(deps.Events, nil, deps.Logger),
	}
}

// reasonsByType lists the reasons each movement type may carry.
var reasonsByType = map[model.TransactionType][]model.TransactionReason{
	model.TxIn:     {model.ReasonRestock, model.ReasonReturn, model.ReasonExchange, model.ReasonManual, model.ReasonOther},
	model.TxOut:    {model.ReasonSale, model.ReasonExchange, model.ReasonDamage, model.ReasonLost, model.ReasonManual, model.ReasonOther},
	model.TxAdjust: {model.ReasonAdjustment, model.ReasonManual, model.ReasonOther},
}

func checkMovement(cmd ApplyCommand) error {
	if msg := validator.FirstError(&cmd); msg != "" {
		return newError(KindValidation, "validation failed: %s", msg)
	}
	allowed := false
	for _, r := range reasonsByType[cmd.Type] {
		if r == cmd.Reason {
			allowed = true
			break
		}
	}
	if !allowed {
		return newError(KindValidation, "reason %q is not allowed for %s movements", cmd.Reason, cmd.Type)
	}
	switch cmd.Type {
	case model.TxIn:
		if cmd.QuantityChange <= 0 {
			return newError(KindValidation, "IN movements need a positive quantity change")
		}
	case model.TxOut:
		if cmd.QuantityChange >= 0 {
			return newError(KindValidation, "OUT movements need a negative quantity change")
		}
	case model.TxAdjust:
		if cmd.SetQuantity == nil && cmd.QuantityChange == 0 {
			return newError(KindValidation, "ADJUST needs a non-zero change or an absolute quantity")
		}
	}
	if cmd.SetQuantity != nil && cmd.Type != model.TxAdjust {
		return newError(KindValidation, "absolute quantity is only allowed for ADJUST")
	}
	return nil
}

func (s *inventoryService) ApplyTransaction(ctx context.Context, cmd ApplyCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	if err := checkMovement(cmd); err != nil {
		return nil, nil, err
	}
	if cmd.IdempotencyKey != "" {
		if item, entry, ok, err := s.replay(ctx, cmd.IdempotencyKey); err != nil || ok {
			return item, entry, err
		}
	}

	var (
		item  *model.InventoryItem
		entry *model.InventoryTransaction
	)
	err := s.retry.run(ctx, func() error {
		var err error
		item, err = s.repo.FindByID(ctx, cmd.ItemID)
		if err != nil {
			return notFound(err, "inventory item")
		}

		before := item.Quantity
		change := cmd.QuantityChange
		if cmd.SetQuantity != nil {
			change = *cmd.SetQuantity - before
		}
		after := before + change
		if after < 0 {
			return &Error{
				Kind:    KindInsufficientStock,
				Message: fmt.Sprintf("%s (%s) just sold out", item.ProductName, item.Size),
			}
		}

		if cmd.Type == model.TxIn && cmd.Reason == model.ReasonRestock && cmd.UnitCost > 0 {
			item.AverageCostPrice = weightedCost(item.AverageCostPrice, before, cmd.UnitCost, change)
		}
		item.Quantity = after
		item.UpdatedBy = cmd.PerformedBy

		entry = &model.InventoryTransaction{
			ID:              uuid.New(),
			InventoryItemID: item.ID,
			Type:            cmd.Type,
			QuantityBefore:  before,
			QuantityChange:  change,
			QuantityAfter:   after,
			Reason:          cmd.Reason,
			Reference:       cmd.Reference,
			ReferenceType:   cmd.ReferenceType,
			UnitCost:        cmd.UnitCost,
			Note:            cmd.Note,
			PerformedBy:     cmd.PerformedBy,
		}
		if cmd.IdempotencyKey != "" {
			key := cmd.IdempotencyKey
			entry.IdempotencyKey = &key
		}
		return s.repo.ApplyMovement(ctx, item, item.Version, entry)
	})
	if errors.Is(err, repository.ErrDuplicateKey) && cmd.IdempotencyKey != "" {
		// a concurrent caller committed the same key first
		item, entry, _, err = s.replay(ctx, cmd.IdempotencyKey)
		return item, entry, err
	}
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, EventStockChanged, item.ID.String(), map[string]any{
		"inventory_item_id": item.ID,
		"product_name":      item.ProductName,
		"size":              item.Size,
		"type":              entry.Type,
		"reason":            entry.Reason,
		"quantity_change":   entry.QuantityChange,
		"quantity":          item.Quantity,
	})
	if entry.QuantityChange < 0 && item.IsLowStock() {
		s.publish(ctx, EventStockLow, item.ID.String(), map[string]any{
			"inventory_item_id": item.ID,
			"product_name":      item.ProductName,
			"size":              item.Size,
			"quantity":          item.Quantity,
			"threshold":         item.LowStockThreshold,
		})
	}
	return item, entry, nil
}

// replay returns the recorded transaction for key and the current item, without mutating anything.
func (s *inventoryService) replay(ctx context.Context, key string) (*model.InventoryItem, *model.InventoryTransaction, bool, error) {
	entry, err := s.repo.FindTransactionByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	item, err := s.repo.FindByID(ctx, entry.InventoryItemID)
	if err != nil {
		return nil, nil, false, notFound(err, "inventory item")
	}
	return item, entry, true, nil
}

// weightedCost blends the current average with a restock at unitCost.
func weightedCost(avg int64, onHand int, unitCost int64, added int) int64 {
	if onHand <= 0 || avg == 0 {
		return unitCost
	}
	total := decimal.NewFromInt(avg).Mul(decimal.NewFromInt(int64(onHand))).
		Add(decimal.NewFromInt(unitCost).Mul(decimal.NewFromInt(int64(added))))
	return total.Div(decimal.NewFromInt(int64(onHand + added))).Round(0).IntPart()
}

func (s *inventoryService) move(ctx context.Context, typ model.TransactionType, reason model.TransactionReason, sign int, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, nil, newError(KindValidation, "validation failed: %s", msg)
	}
	return s.ApplyTransaction(ctx, ApplyCommand{
		ItemID:         cmd.ItemID,
		Type:           typ,
		Reason:         reason,
		QuantityChange: sign * cmd.Quantity,
		Reference:      cmd.Reference,
		ReferenceType:  cmd.ReferenceType,
		PerformedBy:    cmd.PerformedBy,
		Note:           cmd.Note,
		UnitCost:       cmd.UnitCost,
		IdempotencyKey: cmd.IdempotencyKey,
	})
}

func (s *inventoryService) Restock(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxIn, model.ReasonRestock, 1, cmd)
}

func (s *inventoryService) Sale(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxOut, model.ReasonSale, -1, cmd)
}

func (s *inventoryService) Return(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxIn, model.ReasonReturn, 1, cmd)
}

func (s *inventoryService) ExchangeIn(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxIn, model.ReasonExchange, 1, cmd)
}

func (s *inventoryService) ExchangeOut(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxOut, model.ReasonExchange, -1, cmd)
}

func (s *inventoryService) Damage(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxOut, model.ReasonDamage, -1, cmd)
}

func (s *inventoryService) Lost(ctx context.Context, cmd MovementCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	return s.move(ctx, model.TxOut, model.ReasonLost, -1, cmd)
}

func (s *inventoryService) Adjust(ctx context.Context, cmd AdjustCommand) (*model.InventoryItem, *model.InventoryTransaction, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, nil, newError(KindValidation, "validation failed: %s", msg)
	}
	return s.ApplyTransaction(ctx, ApplyCommand{
		ItemID:         cmd.ItemID,
		Type:           model.TxAdjust,
		Reason:         model.ReasonAdjustment,
		QuantityChange: cmd.Change,
		SetQuantity:    cmd.SetQuantity,
		ReferenceType:  model.RefManual,
		PerformedBy:    cmd.PerformedBy,
		Note:           cmd.Note,
		IdempotencyKey: cmd.IdempotencyKey,
	})
}

func (s *inventoryService) CreateItem(ctx context.Context, cmd CreateItemCommand) (*model.InventoryItem, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	item := &model.InventoryItem{
		BaseModel:         model.BaseModel{ID: uuid.New(), CreatedBy: cmd.PerformedBy, UpdatedBy: cmd.PerformedBy},
		ProductID:         cmd.ProductID,
		VariantID:         cmd.VariantID,
		Size:              cmd.Size,
		SKU:               cmd.SKU,
		ProductName:       cmd.ProductName,
		CostPrice:         cmd.CostPrice,
		AverageCostPrice:  cmd.CostPrice,
		SellingPrice:      cmd.SellingPrice,
		DiscountPercent:   cmd.DiscountPercent,
		LowStockThreshold: 5,
	}
	if cmd.LowStockThreshold != nil {
		item.LowStockThreshold = *cmd.LowStockThreshold
	}
	item.RecalculatePrice()

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, newError(KindValidation, "%s (%s) is already stocked", cmd.ProductName, cmd.Size)
		}
		return nil, err
	}

	if cmd.InitialQuantity > 0 {
		updated, _, err := s.Restock(ctx, MovementCommand{
			ItemID:         item.ID,
			Quantity:       cmd.InitialQuantity,
			ReferenceType:  model.RefManual,
			PerformedBy:    cmd.PerformedBy,
			Note:           "initial stock",
			UnitCost:       cmd.CostPrice,
			IdempotencyKey: fmt.Sprintf("item:%s:initial", item.ID),
		})
		if err != nil {
			return nil, err
		}
		item = updated
	}
	return item, nil
}

func (s *inventoryService) SetPricing(ctx context.Context, cmd PricingCommand) (*model.InventoryItem, error) {
	if msg := validator.FirstError(&cmd); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	var item *model.InventoryItem
	err := s.retry.run(ctx, func() error {
		var err error
		item, err = s.repo.FindByID(ctx, cmd.ItemID)
		if err != nil {
			return notFound(err, "inventory item")
		}
		item.CostPrice = cmd.CostPrice
		item.SellingPrice = cmd.SellingPrice
		item.DiscountPercent = cmd.DiscountPercent
		if cmd.LowStockThreshold != nil {
			item.LowStockThreshold = *cmd.LowStockThreshold
		}
		item.UpdatedBy = cmd.PerformedBy
		item.RecalculatePrice()
		return s.repo.UpdatePricing(ctx, item, item.Version)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *inventoryService) GetItem(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "inventory item")
	}
	return item, nil
}

func (s *inventoryService) FindByUnit(ctx context.Context, productID, variantID uuid.UUID, size string) (*model.InventoryItem, error) {
	item, err := s.repo.FindByUnit(ctx, productID, variantID, size)
	if err != nil {
		return nil, notFound(err, "inventory item")
	}
	return item, nil
}

func (s *inventoryService) ListItems(ctx context.Context, filter repository.InventoryFilter) ([]model.InventoryItem, error) {
	return s.repo.List(ctx, filter)
}

func (s *inventoryService) ListTransactions(ctx context.Context, itemID uuid.UUID) ([]model.InventoryTransaction, error) {
	return s.repo.ListTransactions(ctx, itemID)
}

func (s *inventoryService) FindTransactionByKey(ctx context.Context, key string) (*model.InventoryTransaction, error) {
	entry, err := s.repo.FindTransactionByKey(ctx, key)
	if err != nil {
		return nil, notFound(err, "inventory transaction")
	}
	return entry, nil
}

func (s *inventoryService) VerifyLedger(ctx context.Context, itemID uuid.UUID) (*LedgerReport, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListTransactions(ctx, itemID)
	if err != nil {
		return nil, err
	}

	report := &LedgerReport{ItemID: item.ID, Quantity: item.Quantity, Entries: len(entries)}
	if len(entries) > 0 {
		report.Replayed = entries[0].QuantityBefore
	}
	for i, e := range entries {
		if !e.Reconciles() {
			report.Problems = append(report.Problems, fmt.Sprintf("entry %s: %d%+d != %d", e.ID, e.QuantityBefore, e.QuantityChange, e.QuantityAfter))
		}
		if i > 0 && entries[i-1].QuantityAfter != e.QuantityBefore {
			report.Problems = append(report.Problems, fmt.Sprintf("entry %s starts at %d, previous ended at %d", e.ID, e.QuantityBefore, entries[i-1].QuantityAfter))
		}
		report.Replayed += e.QuantityChange
	}
	if report.Replayed != item.Quantity {
		report.Problems = append(report.Problems, fmt.Sprintf("replayed quantity %d differs from on-hand %d", report.Replayed, item.Quantity))
	}
	report.Consistent = len(report.Problems) == 0
	if !report.Consistent {
		s.log.Error("inventory ledger mismatch", zap.String("inventory_item_id", item.ID.String()), zap.Strings("problems", report.Problems))
	}
	return report, nil
}
