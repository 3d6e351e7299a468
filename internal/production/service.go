package production

import (
	"context"
	"fmt"
	"time"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, order Order) (int64, error)
	Get(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	SetStatus(ctx context.Context, id int64, to Status) error
	ListPending(ctx context.Context, limit, offset int) ([]Order, int, error)
}

// CatalogPort exposes the finished goods catalog.
type CatalogPort interface {
	Get(ctx context.Context, id int64) (catalog.FinishedGood, error)
	Resolve(ctx context.Context, spec catalog.Spec) (catalog.FinishedGood, error)
	IncrementUnits(ctx context.Context, id int64) error
}

// LedgerPort exposes required raw material operations.
type LedgerPort interface {
	GetMaterial(ctx context.Context, id int64) (ledger.Material, error)
	ConsumeBatch(ctx context.Context, reqs []ledger.Requirement) error
}

// SequencePort allocates production numbers.
type SequencePort interface {
	Next(ctx context.Context, name string) (uint64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates production order flows.
type Service struct {
	repo      RepositoryPort
	catalog   CatalogPort
	ledger    LedgerPort
	sequences SequencePort
	audit     AuditPort
	ready     ReadyHandler
	now       func() time.Time
}

// NewService constructs production service. The ready handler is wired
// afterwards via SetReadyHandler because the sales workflow both feeds
// this service and consumes its events.
func NewService(repo RepositoryPort, cat CatalogPort, led LedgerPort, sequences SequencePort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, ledger: led, sequences: sequences, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// SetReadyHandler registers the consumer of ready events.
func (s *Service) SetReadyHandler(handler ReadyHandler) {
	s.ready = handler
}

// CreateInput describes a new production order.
type CreateInput struct {
	FinishedGoodID   int64
	Quantity         float64
	SalesOrderNumber *uint64
}

// Create allocates the next production number and records the order in
// UN_PROCESSED state.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.Quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if _, err := s.catalog.Get(ctx, input.FinishedGoodID); err != nil {
		return Order{}, err
	}
	number, err := s.sequences.Next(ctx, shared.SeqProductionOrder)
	if err != nil {
		return Order{}, fmt.Errorf("allocate production number: %w", err)
	}
	order := Order{
		Number:           number,
		SalesOrderNumber: input.SalesOrderNumber,
		FinishedGoodID:   input.FinishedGoodID,
		Quantity:         input.Quantity,
		Status:           StatusUnprocessed,
	}
	id, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, err
	}
	order.ID = id
	s.recordAudit(ctx, "PRODUCTION_CREATE", id, map[string]any{"number": number, "quantity": input.Quantity})
	return order, nil
}

// CreateFromSpec resolves a human-entered finished good specification
// and creates a standalone production run for it.
func (s *Service) CreateFromSpec(ctx context.Context, spec catalog.Spec, quantity float64) (Order, error) {
	fg, err := s.catalog.Resolve(ctx, spec)
	if err != nil {
		return Order{}, err
	}
	return s.Create(ctx, CreateInput{FinishedGoodID: fg.ID, Quantity: quantity})
}

// Get loads one production order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns orders that have not reached a terminal status.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]Order, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

// CheckAvailability compares required against available stock for every
// bill-of-materials line. It never mutates the ledger.
func (s *Service) CheckAvailability(ctx context.Context, id int64) (AvailabilityReport, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return AvailabilityReport{}, err
	}
	fg, err := s.catalog.Get(ctx, order.FinishedGoodID)
	if err != nil {
		return AvailabilityReport{}, err
	}
	report := AvailabilityReport{
		ProductionID: order.ID,
		Number:       order.Number,
		Quantity:     order.Quantity,
		Status:       order.Status,
		AllInStock:   true,
	}
	for _, line := range fg.BOM {
		material, err := s.ledger.GetMaterial(ctx, line.MaterialID)
		if err != nil {
			return AvailabilityReport{}, fmt.Errorf("material %d: %w", line.MaterialID, err)
		}
		required := line.QtyPerUnit * order.Quantity
		available, err := material.Quantity.Get(ledger.ConsumptionBucket(material.Class))
		if err != nil {
			return AvailabilityReport{}, fmt.Errorf("material %d: %w", line.MaterialID, err)
		}
		check := MaterialCheck{
			MaterialID: material.ID,
			Name:       material.Name,
			Class:      material.Class,
			Required:   required,
			Available:  available,
			InStock:    available >= required,
		}
		if !check.InStock {
			report.AllInStock = false
		}
		switch material.Class {
		case ledger.ClassA:
			report.ClassA = append(report.ClassA, check)
		case ledger.ClassB:
			report.ClassB = append(report.ClassB, check)
		default:
			report.ClassC = append(report.ClassC, check)
		}
	}
	return report, nil
}

// Start consumes raw material stock for the whole order and moves it to
// IN_PROCESSES. The debits are all-or-nothing: a shortfall on any line
// leaves every balance untouched.
func (s *Service) Start(ctx context.Context, id int64) (Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusUnprocessed {
		return Order{}, fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.Number, order.Status)
	}
	fg, err := s.catalog.Get(ctx, order.FinishedGoodID)
	if err != nil {
		return Order{}, err
	}
	reqs := make([]ledger.Requirement, 0, len(fg.BOM))
	for _, line := range fg.BOM {
		reqs = append(reqs, ledger.Requirement{MaterialID: line.MaterialID, Amount: line.QtyPerUnit * order.Quantity})
	}
	if err := s.ledger.ConsumeBatch(ctx, reqs); err != nil {
		return Order{}, err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusUnprocessed, StatusInProcess); err != nil {
		return Order{}, err
	}
	order.Status = StatusInProcess
	s.recordAudit(ctx, "PRODUCTION_START", id, map[string]any{"number": order.Number, "materials": len(reqs)})
	return order, nil
}

// MakeReady finishes the batch: the finished good gains one unit of
// stock, standalone runs complete, and sales-linked runs go READY and
// notify the sales workflow.
func (s *Service) MakeReady(ctx context.Context, id int64) (Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	// One completed order adds one batch to finished stock, regardless
	// of the order quantity.
	if err := s.catalog.IncrementUnits(ctx, order.FinishedGoodID); err != nil {
		return Order{}, err
	}
	target := StatusReady
	if order.Standalone() {
		target = StatusCompleted
	}
	if err := s.repo.SetStatus(ctx, id, target); err != nil {
		return Order{}, err
	}
	order.Status = target
	order.UpdatedAt = s.now()
	s.recordAudit(ctx, "PRODUCTION_READY", id, map[string]any{"number": order.Number, "status": string(target)})

	if !order.Standalone() && s.ready != nil {
		evt := ReadyEvent{
			ProductionID:     order.ID,
			Number:           order.Number,
			SalesOrderNumber: *order.SalesOrderNumber,
			FinishedGoodID:   order.FinishedGoodID,
			At:               order.UpdatedAt,
		}
		if err := s.ready.HandleProductionReady(ctx, evt); err != nil {
			return Order{}, fmt.Errorf("notify sales workflow: %w", err)
		}
	}
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "production_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
