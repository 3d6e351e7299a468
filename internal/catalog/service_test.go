package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	goods  map[int64]FinishedGood
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{goods: make(map[int64]FinishedGood)}
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (FinishedGood, error) {
	fg, ok := r.goods[id]
	if !ok {
		return FinishedGood{}, ErrNotFound
	}
	return fg, nil
}

func (r *memoryRepo) GetBySpec(ctx context.Context, spec Spec) (FinishedGood, error) {
	for _, fg := range r.goods {
		if fg.Model == spec.Model && fg.Type == spec.Type && fg.Ratio == spec.Ratio && fg.Power == spec.Power {
			return fg, nil
		}
	}
	return FinishedGood{}, ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, fg FinishedGood) (int64, error) {
	r.nextID++
	fg.ID = r.nextID
	r.goods[fg.ID] = fg
	return fg.ID, nil
}

func (r *memoryRepo) ReplaceBOM(ctx context.Context, fgID int64, lines []BOMLine) error {
	fg, ok := r.goods[fgID]
	if !ok {
		return ErrNotFound
	}
	fg.BOM = append([]BOMLine(nil), lines...)
	r.goods[fgID] = fg
	return nil
}

func (r *memoryRepo) IncrementUnits(ctx context.Context, fgID int64) error {
	fg, ok := r.goods[fgID]
	if !ok {
		return ErrNotFound
	}
	fg.Units++
	r.goods[fgID] = fg
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]FinishedGood, error) {
	out := []FinishedGood{}
	for _, fg := range r.goods {
		out = append(out, fg)
	}
	return out, nil
}

func TestCreateFinishedGood(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	fg, err := svc.Create(ctx, CreateInput{
		Spec:        Spec{Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP"},
		RatePerUnit: decimal.NewFromInt(12500),
		BOM:         []BOMLine{{MaterialID: 1, QtyPerUnit: 1}},
	})
	require.NoError(t, err)
	require.NotZero(t, fg.ID)
	require.Zero(t, fg.Units)
	require.Len(t, fg.BOM, 1)

	_, err = svc.Create(ctx, CreateInput{
		Spec: Spec{Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP"},
	})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateFinishedGoodValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Spec: Spec{Model: "NU"}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		Spec: Spec{Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP"},
		BOM:  []BOMLine{{MaterialID: 0, QtyPerUnit: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		Spec: Spec{Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP"},
		BOM:  []BOMLine{{MaterialID: 1, QtyPerUnit: -2}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolveRequiresFullSpec(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, Spec{Model: "NU", Type: TypeFoot})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Resolve(ctx, Spec{Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetBOMReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	fg, err := svc.Create(ctx, CreateInput{
		Spec: Spec{Model: "SU", Type: TypeFlange, Ratio: "40", Power: "2HP"},
		BOM:  []BOMLine{{MaterialID: 1, QtyPerUnit: 1}},
	})
	require.NoError(t, err)

	err = svc.SetBOM(ctx, fg.ID, []BOMLine{{MaterialID: 2, QtyPerUnit: 3}, {MaterialID: 3, QtyPerUnit: 0.5}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, fg.ID)
	require.NoError(t, err)
	require.Len(t, got.BOM, 2)
	require.Equal(t, int64(2), got.BOM[0].MaterialID)

	err = svc.SetBOM(ctx, 999, []BOMLine{{MaterialID: 2, QtyPerUnit: 3}})
	require.ErrorIs(t, err, ErrNotFound)
}
