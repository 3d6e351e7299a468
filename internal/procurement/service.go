package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, int, error)
	ListUnappliedCredits(ctx context.Context, orderID int64) ([]PendingCredit, error)
	MarkCreditApplied(ctx context.Context, creditID int64) error
}

// LedgerPort exposes required raw material operations.
type LedgerPort interface {
	GetMaterial(ctx context.Context, id int64) (ledger.Material, error)
	Credit(ctx context.Context, materialID int64, bucket ledger.Bucket, amount float64) (ledger.Material, error)
}

// SequencePort allocates purchase order numbers.
type SequencePort interface {
	Next(ctx context.Context, name string) (uint64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort deduplicates resubmitted receipts.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the purchase order workflow.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	sequences   SequencePort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, led LedgerPort, sequences SequencePort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, ledger: led, sequences: sequences, audit: audit, idempotency: idem}
}

// ItemInput describes one ordered raw material position.
type ItemInput struct {
	MaterialID int64
	Quantity   float64
	UnitPrice  decimal.Decimal
}

// CreateInput describes a new vendor order.
type CreateInput struct {
	VendorName string
	OrderDate  time.Time
	Items      []ItemInput
}

// Create validates items against the ledger, computes totals and
// records the order PENDING with the next purchase number.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.VendorName == "" {
		return Order{}, fmt.Errorf("%w: vendor name required", ErrInvalidInput)
	}
	if len(input.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	if input.OrderDate.IsZero() {
		input.OrderDate = time.Now().UTC()
	}
	order := Order{
		VendorName: input.VendorName,
		OrderDate:  input.OrderDate,
		Status:     StatusPending,
		TotalPrice: decimal.Zero,
	}
	for _, itemInput := range input.Items {
		if itemInput.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}
		if itemInput.UnitPrice.IsNegative() {
			return Order{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
		}
		material, err := s.ledger.GetMaterial(ctx, itemInput.MaterialID)
		if err != nil {
			return Order{}, fmt.Errorf("material %d: %w", itemInput.MaterialID, err)
		}
		itemTotal := itemInput.UnitPrice.Mul(decimal.NewFromFloat(itemInput.Quantity))
		order.Items = append(order.Items, Item{
			MaterialID:    material.ID,
			MaterialName:  material.Name,
			MaterialClass: material.Class,
			OrderedQty:    itemInput.Quantity,
			UnitPrice:     itemInput.UnitPrice,
			ItemTotal:     itemTotal,
			Status:        ItemPending,
		})
		order.TotalPrice = order.TotalPrice.Add(itemTotal)
	}
	number, err := s.sequences.Next(ctx, shared.SeqPurchaseOrder)
	if err != nil {
		return Order{}, fmt.Errorf("allocate purchase number: %w", err)
	}
	order.Number = number
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", created.ID, map[string]any{"number": number, "total": created.TotalPrice.String()})
	return created, nil
}

// ItemView is one receivable line for receiving collaborators.
type ItemView struct {
	Item
	MaxAllowedQty float64
}

// ListItems returns the order's items with their receivable remainder,
// optionally restricted to one material class.
func (s *Service) ListItems(ctx context.Context, orderID int64, classFilter ledger.Class) ([]ItemView, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	views := []ItemView{}
	for _, item := range order.Items {
		if classFilter != "" && item.MaterialClass != classFilter {
			continue
		}
		views = append(views, ItemView{Item: item, MaxAllowedQty: item.MaxAllowed()})
	}
	return views, nil
}

// ReceiptDelta reports newly arrived quantity for one item.
type ReceiptDelta struct {
	ItemID   int64
	Quantity float64
}

// ReceiveInput describes a stock receipt against a purchase order.
type ReceiveInput struct {
	OrderID        int64
	IdempotencyKey string
	Deltas         []ReceiptDelta
}

// ReceiveStock books arrived quantities: each referenced item's
// received quantity grows by its delta capped at the ordered quantity,
// the ledger is credited into the class-appropriate bucket for exactly
// the capped growth, and item/order statuses are recomputed. Item
// updates and the owed credits commit together; the credits are then
// applied through the ledger's own per-material locking and marked.
// A credit the ledger refused stays unapplied and is replayed on the
// next receipt against the order. An optional idempotency key guards
// against resubmitted receipts.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (Order, error) {
	if len(input.Deltas) == 0 {
		return Order{}, fmt.Errorf("%w: no receipt lines", ErrInvalidInput)
	}
	for _, delta := range input.Deltas {
		if delta.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive for item %d", ErrInvalidInput, delta.ItemID)
		}
	}
	// Settle credits a previous receipt left unapplied before booking
	// new ones, so recovery does not depend on the retry carrying a
	// fresh idempotency key.
	if err := s.applyUnappliedCredits(ctx, input.OrderID); err != nil {
		return Order{}, err
	}
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.receive"); err != nil {
			return Order{}, err
		}
		insertedKey = true
	}

	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var credits []PendingCredit
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*Item, len(order.Items))
		for i := range order.Items {
			byID[order.Items[i].ID] = &order.Items[i]
		}
		for _, delta := range input.Deltas {
			item, ok := byID[delta.ItemID]
			if !ok {
				return fmt.Errorf("%w: item %d does not belong to order %d", ErrInvalidInput, delta.ItemID, order.Number)
			}
			newReceived := item.ReceivedQty + delta.Quantity
			if newReceived > item.OrderedQty {
				newReceived = item.OrderedQty
			}
			added := newReceived - item.ReceivedQty
			if added <= 0 {
				continue
			}
			item.ReceivedQty = newReceived
			if item.FullyReceived() {
				item.Status = ItemReceived
			}
			if err := tx.UpdateItemReceived(ctx, item.ID, item.ReceivedQty, item.Status); err != nil {
				return err
			}
			credits = append(credits, PendingCredit{
				OrderID:    order.ID,
				MaterialID: item.MaterialID,
				Bucket:     ledger.ReceiptBucket(item.MaterialClass),
				Amount:     added,
			})
		}
		if len(credits) > 0 {
			if err := tx.InsertCredits(ctx, order.ID, credits); err != nil {
				return err
			}
		}
		if order.AllReceived() && order.Status != StatusComplete {
			if err := tx.SetOrderStatus(ctx, order.ID, StatusComplete); err != nil {
				return err
			}
			order.Status = StatusComplete
		}
		updated = order
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Order{}, err
	}
	if err := s.applyUnappliedCredits(ctx, input.OrderID); err != nil {
		return updated, err
	}
	s.recordAudit(ctx, "PO_RECEIVE", updated.ID, map[string]any{"number": updated.Number, "lines": len(input.Deltas), "status": string(updated.Status)})
	return updated, nil
}

// applyUnappliedCredits pushes the order's recorded credits into the
// ledger and marks each one applied. A refused credit leaves its row
// unapplied for the next run; credits apply at least once, so a crash
// between the ledger call and the mark replays the row.
func (s *Service) applyUnappliedCredits(ctx context.Context, orderID int64) error {
	credits, err := s.repo.ListUnappliedCredits(ctx, orderID)
	if err != nil {
		return err
	}
	for _, c := range credits {
		if _, err := s.ledger.Credit(ctx, c.MaterialID, c.Bucket, c.Amount); err != nil {
			return fmt.Errorf("credit material %d: %w", c.MaterialID, err)
		}
		if err := s.repo.MarkCreditApplied(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Order, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
