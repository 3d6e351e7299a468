package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateMaterial(ctx context.Context, m Material) (Material, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	ListMaterials(ctx context.Context, class Class, limit, offset int) ([]Material, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns all stock mutations. Every mutation runs under the
// material's keyed mutex and inside a repeatable-read transaction, so a
// check-then-mutate sequence against one material never interleaves
// with another writer.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	locks  *shared.KeyedMutex
	alerts AlertHandler
	now    func() time.Time
}

// NewService builds Service. alerts may be nil.
func NewService(repo RepositoryPort, audit AuditPort, locks *shared.KeyedMutex, alerts AlertHandler) *Service {
	if locks == nil {
		locks = shared.NewKeyedMutex()
	}
	return &Service{repo: repo, audit: audit, locks: locks, alerts: alerts, now: func() time.Time { return time.Now().UTC() }}
}

// CreateMaterialInput describes a new raw material.
type CreateMaterialInput struct {
	Class       Class
	Name        string
	Type        string
	MinQuantity float64
}

// CreateMaterial registers a raw material with zero opening stock in
// the representation its class dictates.
func (s *Service) CreateMaterial(ctx context.Context, input CreateMaterialInput) (Material, error) {
	if !input.Class.Valid() {
		return Material{}, fmt.Errorf("%w: class %q", ErrInvalidBucket, input.Class)
	}
	if input.Name == "" {
		return Material{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if input.MinQuantity < 0 {
		return Material{}, fmt.Errorf("%w: min quantity must not be negative", ErrValidation)
	}
	m := Material{
		Class:       input.Class,
		Name:        input.Name,
		Type:        input.Type,
		MinQuantity: input.MinQuantity,
		Quantity:    ZeroQuantity(input.Class),
	}
	created, err := s.repo.CreateMaterial(ctx, m)
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, "LEDGER_MATERIAL_CREATE", created.ID, map[string]any{"class": string(created.Class), "name": created.Name})
	return created, nil
}

// GetStock returns the material's quantity representation.
func (s *Service) GetStock(ctx context.Context, materialID int64) (Quantity, error) {
	m, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return Quantity{}, err
	}
	return m.Quantity, nil
}

// GetMaterial returns the full material record.
func (s *Service) GetMaterial(ctx context.Context, materialID int64) (Material, error) {
	return s.repo.GetMaterial(ctx, materialID)
}

// List returns materials, optionally filtered by class.
func (s *Service) List(ctx context.Context, class Class, limit, offset int) ([]Material, error) {
	if class != "" && !class.Valid() {
		return nil, fmt.Errorf("%w: class %q", ErrInvalidBucket, class)
	}
	return s.repo.ListMaterials(ctx, class, limit, offset)
}

// Credit increases the named bucket. For scalar materials the bucket is
// implicitly "processed".
func (s *Service) Credit(ctx context.Context, materialID int64, bucket Bucket, amount float64) (Material, error) {
	if amount <= 0 {
		return Material{}, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}
	m, err := s.mutate(ctx, materialID, func(m *Material) error {
		return m.Quantity.Add(bucket, amount)
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, "LEDGER_CREDIT", materialID, map[string]any{"bucket": string(bucket), "amount": amount})
	return m, nil
}

// Debit decreases the named bucket, failing when the balance is short.
func (s *Service) Debit(ctx context.Context, materialID int64, bucket Bucket, amount float64) (Material, error) {
	if amount <= 0 {
		return Material{}, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}
	m, err := s.mutate(ctx, materialID, func(m *Material) error {
		return m.Quantity.Sub(bucket, amount)
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, "LEDGER_DEBIT", materialID, map[string]any{"bucket": string(bucket), "amount": amount})
	return m, nil
}

// Transition moves stock between two buckets of the same material as a
// single step; total stock is conserved.
func (s *Service) Transition(ctx context.Context, materialID int64, from, to Bucket, amount float64) (Material, error) {
	if amount <= 0 {
		return Material{}, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}
	m, err := s.mutate(ctx, materialID, func(m *Material) error {
		return m.Quantity.Move(from, to, amount)
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, "LEDGER_TRANSITION", materialID, map[string]any{"from": string(from), "to": string(to), "amount": amount})
	return m, nil
}

// Requirement names one material consumption of a production run.
type Requirement struct {
	MaterialID int64
	Amount     float64
}

// ConsumeBatch debits every requirement from its consumption bucket as
// one all-or-nothing step: all affected materials are locked (in sorted
// order) and checked before any is debited, inside one transaction. A
// shortfall on any line leaves every balance untouched.
func (s *Service) ConsumeBatch(ctx context.Context, reqs []Requirement) error {
	if len(reqs) == 0 {
		return nil
	}
	merged := make(map[int64]float64, len(reqs))
	for _, req := range reqs {
		if req.Amount <= 0 {
			return fmt.Errorf("%w: got %v for material %d", ErrInvalidAmount, req.Amount, req.MaterialID)
		}
		merged[req.MaterialID] += req.Amount
	}
	ids := make([]int64, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = shared.MaterialLockKey(id)
	}
	s.locks.LockAll(keys)
	defer s.locks.UnlockAll(keys)

	now := s.now()
	var low []Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		materials := make([]Material, 0, len(ids))
		for _, id := range ids {
			m, err := tx.GetMaterialForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("material %d: %w", id, err)
			}
			bucket := ConsumptionBucket(m.Class)
			available, err := m.Quantity.Get(bucket)
			if err != nil {
				return fmt.Errorf("material %d: %w", id, err)
			}
			if available < merged[id] {
				return fmt.Errorf("material %d (%s): %w: have %v, need %v", id, m.Name, ErrInsufficientStock, available, merged[id])
			}
			materials = append(materials, m)
		}
		for i := range materials {
			m := &materials[i]
			if err := m.Quantity.Sub(ConsumptionBucket(m.Class), merged[m.ID]); err != nil {
				return fmt.Errorf("material %d: %w", m.ID, err)
			}
			m.UpdatedAt = now
			if err := tx.UpdateQuantity(ctx, m.ID, m.Quantity, now); err != nil {
				return err
			}
			if m.LowStock() {
				low = append(low, *m)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, m := range low {
		s.notifyLowStock(ctx, m)
	}
	for id, amount := range merged {
		s.recordAudit(ctx, "LEDGER_CONSUME", id, map[string]any{"amount": amount})
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, materialID int64, apply func(*Material) error) (Material, error) {
	key := shared.MaterialLockKey(materialID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	now := s.now()
	var updated Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMaterialForUpdate(ctx, materialID)
		if err != nil {
			return err
		}
		if err := apply(&m); err != nil {
			return fmt.Errorf("material %d (%s): %w", m.ID, m.Name, err)
		}
		m.UpdatedAt = now
		if err := tx.UpdateQuantity(ctx, materialID, m.Quantity, now); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Material{}, err
	}
	if updated.LowStock() {
		s.notifyLowStock(ctx, updated)
	}
	return updated, nil
}

func (s *Service) notifyLowStock(ctx context.Context, m Material) {
	if s.alerts == nil {
		return
	}
	_ = s.alerts.HandleLowStock(ctx, LowStockEvent{
		MaterialID:  m.ID,
		Name:        m.Name,
		Class:       m.Class,
		Total:       m.Quantity.Total(),
		MinQuantity: m.MinQuantity,
		At:          m.UpdatedAt,
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, materialID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "raw_material", EntityID: fmt.Sprintf("%d", materialID), Meta: meta})
}
