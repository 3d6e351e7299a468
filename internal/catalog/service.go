package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (FinishedGood, error)
	GetBySpec(ctx context.Context, spec Spec) (FinishedGood, error)
	Create(ctx context.Context, fg FinishedGood) (int64, error)
	ReplaceBOM(ctx context.Context, fgID int64, lines []BOMLine) error
	IncrementUnits(ctx context.Context, fgID int64) error
	List(ctx context.Context, filter ListFilter) ([]FinishedGood, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates finished good catalog operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new catalog entry.
type CreateInput struct {
	Spec          Spec
	ShaftDiameter string
	FrameSize     string
	RatePerUnit   decimal.Decimal
	BasePrice     decimal.Decimal
	BOM           []BOMLine
}

// Resolve looks up a finished good by exact specification match.
func (s *Service) Resolve(ctx context.Context, spec Spec) (FinishedGood, error) {
	if spec.Model == "" || spec.Type == "" || spec.Ratio == "" || spec.Power == "" {
		return FinishedGood{}, fmt.Errorf("%w: model, type, ratio and power required", ErrValidation)
	}
	return s.repo.GetBySpec(ctx, spec)
}

// Get returns the finished good with its bill of materials.
func (s *Service) Get(ctx context.Context, id int64) (FinishedGood, error) {
	return s.repo.GetByID(ctx, id)
}

// Create registers a finished good. Units start at zero; only completed
// production batches increment them.
func (s *Service) Create(ctx context.Context, input CreateInput) (FinishedGood, error) {
	if input.Spec.Model == "" || input.Spec.Type == "" || input.Spec.Ratio == "" || input.Spec.Power == "" {
		return FinishedGood{}, fmt.Errorf("%w: model, type, ratio and power required", ErrValidation)
	}
	for _, line := range input.BOM {
		if line.MaterialID == 0 || line.QtyPerUnit <= 0 {
			return FinishedGood{}, fmt.Errorf("%w: bom line requires material and positive quantity", ErrValidation)
		}
	}
	if _, err := s.repo.GetBySpec(ctx, input.Spec); err == nil {
		return FinishedGood{}, ErrDuplicate
	}
	fg := FinishedGood{
		Model:         input.Spec.Model,
		Type:          input.Spec.Type,
		Ratio:         input.Spec.Ratio,
		Power:         input.Spec.Power,
		ShaftDiameter: input.ShaftDiameter,
		FrameSize:     input.FrameSize,
		RatePerUnit:   input.RatePerUnit,
		BasePrice:     input.BasePrice,
		Units:         0,
	}
	id, err := s.repo.Create(ctx, fg)
	if err != nil {
		return FinishedGood{}, err
	}
	fg.ID = id
	if len(input.BOM) > 0 {
		if err := s.repo.ReplaceBOM(ctx, id, input.BOM); err != nil {
			return FinishedGood{}, err
		}
		fg.BOM = input.BOM
	}
	s.recordAudit(ctx, "FG_CREATE", id, map[string]any{"model_number": ModelNumber(fg)})
	return fg, nil
}

// SetBOM replaces the bill of materials for a finished good.
func (s *Service) SetBOM(ctx context.Context, fgID int64, lines []BOMLine) error {
	for _, line := range lines {
		if line.MaterialID == 0 || line.QtyPerUnit <= 0 {
			return fmt.Errorf("%w: bom line requires material and positive quantity", ErrValidation)
		}
	}
	if _, err := s.repo.GetByID(ctx, fgID); err != nil {
		return err
	}
	if err := s.repo.ReplaceBOM(ctx, fgID, lines); err != nil {
		return err
	}
	s.recordAudit(ctx, "FG_SET_BOM", fgID, map[string]any{"lines": len(lines)})
	return nil
}

// IncrementUnits records one completed production batch.
func (s *Service) IncrementUnits(ctx context.Context, fgID int64) error {
	return s.repo.IncrementUnits(ctx, fgID)
}

// List returns finished goods matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]FinishedGood, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "catalog", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
