package sales

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/production"
	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	GetByNumber(ctx context.Context, number uint64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	UpdateApproval(ctx context.Context, order Order) error
	AddPayment(ctx context.Context, id int64, amount decimal.Decimal) error
	SetLineFulfilled(ctx context.Context, lineID int64) error
	List(ctx context.Context, limit, offset int) ([]Order, int, error)
}

// CatalogPort resolves finished goods from customer specifications.
type CatalogPort interface {
	Resolve(ctx context.Context, spec catalog.Spec) (catalog.FinishedGood, error)
}

// ProductionPort creates production orders on approval.
type ProductionPort interface {
	Create(ctx context.Context, input production.CreateInput) (production.Order, error)
}

// SequencePort allocates sales order numbers.
type SequencePort interface {
	Next(ctx context.Context, name string) (uint64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the sales order workflow.
type Service struct {
	repo       RepositoryPort
	catalog    CatalogPort
	production ProductionPort
	sequences  SequencePort
	audit      AuditPort
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, cat CatalogPort, prod ProductionPort, sequences SequencePort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, production: prod, sequences: sequences, audit: audit}
}

// LineInput describes one requested finished good position.
type LineInput struct {
	Spec        catalog.Spec
	Quantity    float64
	RatePerUnit decimal.Decimal
}

// CreateInput describes a new customer order.
type CreateInput struct {
	CustomerName string
	Description  string
	Lines        []LineInput
}

// RateOverride corrects one line's rate during approval, matched by
// finished good reference.
type RateOverride struct {
	FinishedGoodID int64
	RatePerUnit    decimal.Decimal
}

// Create resolves every line against the catalog, computes totals and
// records the order UN_APPROVED.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.CustomerName == "" {
		return Order{}, fmt.Errorf("%w: customer name required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	order := Order{
		CustomerName: input.CustomerName,
		Description:  input.Description,
		Status:       StatusUnapproved,
		TotalAmount:  decimal.Zero,
	}
	for _, lineInput := range input.Lines {
		if lineInput.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		fg, err := s.catalog.Resolve(ctx, lineInput.Spec)
		if err != nil {
			return Order{}, fmt.Errorf("resolve line %s/%s/%s: %w", lineInput.Spec.Model, lineInput.Spec.Type, lineInput.Spec.Ratio, err)
		}
		rate := lineInput.RatePerUnit
		if rate.IsZero() {
			rate = fg.RatePerUnit
		}
		lineTotal := rate.Mul(decimal.NewFromFloat(lineInput.Quantity))
		order.Lines = append(order.Lines, Line{
			FinishedGoodID: fg.ID,
			Quantity:       lineInput.Quantity,
			RatePerUnit:    rate,
			LineTotal:      lineTotal,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
	}
	number, err := s.sequences.Next(ctx, shared.SeqSalesOrder)
	if err != nil {
		return Order{}, fmt.Errorf("allocate order number: %w", err)
	}
	order.Number = number
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "SALES_CREATE", created.ID, map[string]any{"number": number, "total": created.TotalAmount.String()})
	return created, nil
}

// Approve moves the order to INPROCESS and fans out one production
// order per line. Optional rate overrides are applied before the total
// is recomputed.
func (s *Service) Approve(ctx context.Context, id int64, overrides []RateOverride) (Order, []production.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	if order.Status != StatusUnapproved {
		return Order{}, nil, fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.Number, order.Status)
	}
	rates := make(map[int64]decimal.Decimal, len(overrides))
	for _, ovr := range overrides {
		if ovr.RatePerUnit.IsNegative() {
			return Order{}, nil, fmt.Errorf("%w: rate must not be negative", ErrValidation)
		}
		rates[ovr.FinishedGoodID] = ovr.RatePerUnit
	}
	order.TotalAmount = decimal.Zero
	for i := range order.Lines {
		line := &order.Lines[i]
		if rate, ok := rates[line.FinishedGoodID]; ok {
			line.RatePerUnit = rate
		}
		line.LineTotal = line.RatePerUnit.Mul(decimal.NewFromFloat(line.Quantity))
		order.TotalAmount = order.TotalAmount.Add(line.LineTotal)
	}
	if err := s.repo.UpdateApproval(ctx, order); err != nil {
		return Order{}, nil, err
	}
	order.Status = StatusInProcess

	productions := make([]production.Order, 0, len(order.Lines))
	for _, line := range order.Lines {
		number := order.Number
		po, err := s.production.Create(ctx, production.CreateInput{
			FinishedGoodID:   line.FinishedGoodID,
			Quantity:         line.Quantity,
			SalesOrderNumber: &number,
		})
		if err != nil {
			return Order{}, nil, fmt.Errorf("create production for finished good %d: %w", line.FinishedGoodID, err)
		}
		productions = append(productions, po)
	}
	s.recordAudit(ctx, "SALES_APPROVE", id, map[string]any{"number": order.Number, "productions": len(productions)})
	return order, productions, nil
}

// Reject cancels an unapproved order.
func (s *Service) Reject(ctx context.Context, id int64) (Order, error) {
	if err := s.repo.UpdateStatus(ctx, id, StatusUnapproved, StatusCancelled); err != nil {
		return Order{}, err
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "SALES_REJECT", id, map[string]any{"number": order.Number})
	return order, nil
}

// RecordPayment adds a received payment against the order total.
func (s *Service) RecordPayment(ctx context.Context, id int64, amount decimal.Decimal) (Order, error) {
	if !amount.IsPositive() {
		return Order{}, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if err := s.repo.AddPayment(ctx, id, amount); err != nil {
		return Order{}, err
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "SALES_PAYMENT", id, map[string]any{"amount": amount.String(), "received": order.ReceivedAmount.String()})
	return order, nil
}

// AdvanceStatus is the explicit forward-only status set used by
// delivery and logistics collaborators.
func (s *Service) AdvanceStatus(ctx context.Context, id int64, target Status) (Order, error) {
	if target != StatusProcessed && target != StatusDispatched && target != StatusDelivered {
		return Order{}, fmt.Errorf("%w: cannot set %s directly", ErrInvalidState, target)
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanAdvance(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidState, order.Status, target)
	}
	if err := s.repo.UpdateStatus(ctx, id, order.Status, target); err != nil {
		return Order{}, err
	}
	order.Status = target
	s.recordAudit(ctx, "SALES_ADVANCE", id, map[string]any{"status": string(target)})
	return order, nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Order, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// HandleProductionReady consumes ready events from the production
// workflow: the matching line is marked fulfilled and, once every line
// is, the order becomes PROCESSED. This is the only automatic path to
// PROCESSED.
func (s *Service) HandleProductionReady(ctx context.Context, evt production.ReadyEvent) error {
	order, err := s.repo.GetByNumber(ctx, evt.SalesOrderNumber)
	if err != nil {
		return err
	}
	matched := false
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.FinishedGoodID != evt.FinishedGoodID || line.Fulfilled {
			continue
		}
		if err := s.repo.SetLineFulfilled(ctx, line.ID); err != nil {
			return err
		}
		line.Fulfilled = true
		matched = true
		break
	}
	if !matched {
		return nil
	}
	if order.AllFulfilled() && order.Status == StatusInProcess {
		if err := s.repo.UpdateStatus(ctx, order.ID, StatusInProcess, StatusProcessed); err != nil {
			return err
		}
		s.recordAudit(ctx, "SALES_PROCESSED", order.ID, map[string]any{"number": order.Number})
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "sales_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
