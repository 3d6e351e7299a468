package production

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

type memoryRepo struct {
	orders map[int64]Order
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order)}
}

func (r *memoryRepo) Create(ctx context.Context, order Order) (int64, error) {
	r.nextID++
	order.ID = r.nextID
	r.orders[order.ID] = order
	return order.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	order, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if order.Status != from {
		return ErrInvalidState
	}
	order.Status = to
	r.orders[id] = order
	return nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, to Status) error {
	order, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = to
	r.orders[id] = order
	return nil
}

func (r *memoryRepo) ListPending(ctx context.Context, limit, offset int) ([]Order, int, error) {
	var result []Order
	for id := int64(1); id <= r.nextID; id++ {
		order, ok := r.orders[id]
		if !ok {
			continue
		}
		// Mirror the SQL predicate: status NOT IN ('READY', 'COMPLETED').
		if order.Status == StatusReady || order.Status == StatusCompleted {
			continue
		}
		result = append(result, order)
	}
	return result, len(result), nil
}

type fakeCatalog struct {
	goods      map[int64]catalog.FinishedGood
	increments map[int64]int
}

func newFakeCatalog(goods ...catalog.FinishedGood) *fakeCatalog {
	fc := &fakeCatalog{goods: make(map[int64]catalog.FinishedGood), increments: make(map[int64]int)}
	for _, fg := range goods {
		fc.goods[fg.ID] = fg
	}
	return fc
}

func (c *fakeCatalog) Get(ctx context.Context, id int64) (catalog.FinishedGood, error) {
	fg, ok := c.goods[id]
	if !ok {
		return catalog.FinishedGood{}, catalog.ErrNotFound
	}
	return fg, nil
}

func (c *fakeCatalog) Resolve(ctx context.Context, spec catalog.Spec) (catalog.FinishedGood, error) {
	for _, fg := range c.goods {
		if fg.Model == spec.Model && fg.Type == spec.Type && fg.Ratio == spec.Ratio && fg.Power == spec.Power {
			return fg, nil
		}
	}
	return catalog.FinishedGood{}, catalog.ErrNotFound
}

func (c *fakeCatalog) IncrementUnits(ctx context.Context, id int64) error {
	if _, ok := c.goods[id]; !ok {
		return catalog.ErrNotFound
	}
	c.increments[id]++
	fg := c.goods[id]
	fg.Units++
	c.goods[id] = fg
	return nil
}

// memoryLedgerStore is a minimal in-memory ledger.RepositoryPort so the
// real consumption semantics run against these tests.
type memoryLedgerStore struct {
	materials map[int64]ledger.Material
	nextID    int64
}

func newMemoryLedgerStore() *memoryLedgerStore {
	return &memoryLedgerStore{materials: make(map[int64]ledger.Material)}
}

func (s *memoryLedgerStore) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	tx := &memoryLedgerTx{store: s, updated: make(map[int64]ledger.Quantity)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, qty := range tx.updated {
		m := s.materials[id]
		m.Quantity = qty
		s.materials[id] = m
	}
	return nil
}

func (s *memoryLedgerStore) CreateMaterial(ctx context.Context, m ledger.Material) (ledger.Material, error) {
	s.nextID++
	m.ID = s.nextID
	s.materials[m.ID] = m
	return m, nil
}

func (s *memoryLedgerStore) GetMaterial(ctx context.Context, id int64) (ledger.Material, error) {
	m, ok := s.materials[id]
	if !ok {
		return ledger.Material{}, ledger.ErrNotFound
	}
	return m, nil
}

func (s *memoryLedgerStore) ListMaterials(ctx context.Context, class ledger.Class, limit, offset int) ([]ledger.Material, error) {
	var result []ledger.Material
	for id := int64(1); id <= s.nextID; id++ {
		if m, ok := s.materials[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

type memoryLedgerTx struct {
	store   *memoryLedgerStore
	updated map[int64]ledger.Quantity
}

func (tx *memoryLedgerTx) GetMaterialForUpdate(ctx context.Context, id int64) (ledger.Material, error) {
	if qty, ok := tx.updated[id]; ok {
		m := tx.store.materials[id]
		m.Quantity = qty
		return m, nil
	}
	return tx.store.GetMaterial(ctx, id)
}

func (tx *memoryLedgerTx) UpdateQuantity(ctx context.Context, id int64, qty ledger.Quantity, updatedAt time.Time) error {
	if _, ok := tx.store.materials[id]; !ok {
		return ledger.ErrNotFound
	}
	tx.updated[id] = qty
	return nil
}

type fakeLedger struct {
	svc *ledger.Service
}

func (l *fakeLedger) GetMaterial(ctx context.Context, id int64) (ledger.Material, error) {
	return l.svc.GetMaterial(ctx, id)
}

func (l *fakeLedger) ConsumeBatch(ctx context.Context, reqs []ledger.Requirement) error {
	return l.svc.ConsumeBatch(ctx, reqs)
}

type fakeSequences struct {
	next uint64
}

func (s *fakeSequences) Next(ctx context.Context, name string) (uint64, error) {
	s.next++
	return s.next, nil
}

type captureReady struct {
	events []ReadyEvent
}

func (c *captureReady) HandleProductionReady(ctx context.Context, evt ReadyEvent) error {
	c.events = append(c.events, evt)
	return nil
}

type stockSeed struct {
	name  string
	class ledger.Class
	qty   float64
}

// newLedger builds a real ledger service over an in-memory store so the
// all-or-nothing consumption semantics are exercised end to end.
func newLedger(t *testing.T, seeds ...stockSeed) (*fakeLedger, []int64) {
	t.Helper()
	svc, ids := newLedgerService(t, seeds...)
	return &fakeLedger{svc: svc}, ids
}

func newLedgerService(t *testing.T, seeds ...stockSeed) (*ledger.Service, []int64) {
	t.Helper()
	svc := ledger.NewService(newMemoryLedgerStore(), nil, nil, nil)
	ids := make([]int64, 0, len(seeds))
	for _, seed := range seeds {
		m, err := svc.CreateMaterial(context.Background(), ledger.CreateMaterialInput{Class: seed.class, Name: seed.name})
		require.NoError(t, err)
		if seed.qty > 0 {
			_, err = svc.Credit(context.Background(), m.ID, "", seed.qty)
			require.NoError(t, err)
		}
		ids = append(ids, m.ID)
	}
	return svc, ids
}

func TestCreate(t *testing.T) {
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1, Model: "NU", Type: "Foot", Ratio: "10.5", Power: "1HP"})
	svc := NewService(repo, cat, nil, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, uint64(1), order.Number)
	require.Equal(t, StatusUnprocessed, order.Status)
	require.True(t, order.Standalone())

	_, err = svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, CreateInput{FinishedGoodID: 99, Quantity: 1})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCreateFromSpec(t *testing.T) {
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 7, Model: "SU", Type: "Flange", Ratio: "7.5", Power: "3HP"})
	svc := NewService(repo, cat, nil, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.CreateFromSpec(ctx, catalog.Spec{Model: "SU", Type: "Flange", Ratio: "7.5", Power: "3HP"}, 2)
	require.NoError(t, err)
	require.Equal(t, int64(7), order.FinishedGoodID)

	_, err = svc.CreateFromSpec(ctx, catalog.Spec{Model: "XX", Type: "Flange", Ratio: "7.5", Power: "3HP"}, 2)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStartConsumesStock(t *testing.T) {
	led, ids := newLedger(t,
		stockSeed{name: "Worm Shaft", class: ledger.ClassA, qty: 10},
		stockSeed{name: "Oil Seal", class: ledger.ClassC, qty: 20},
	)
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1, BOM: []catalog.BOMLine{
		{MaterialID: ids[0], QtyPerUnit: 1},
		{MaterialID: ids[1], QtyPerUnit: 2},
	}})
	svc := NewService(repo, cat, led, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 3})
	require.NoError(t, err)

	started, err := svc.Start(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProcess, started.Status)

	stock, err := led.svc.GetStock(ctx, ids[0])
	require.NoError(t, err)
	require.InDelta(t, 7.0, stock.Total(), 0.0001)
	stock, err = led.svc.GetStock(ctx, ids[1])
	require.NoError(t, err)
	require.InDelta(t, 14.0, stock.Total(), 0.0001)

	// Only UN_PROCESSED orders can start.
	_, err = svc.Start(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStartShortfallLeavesStockUntouched(t *testing.T) {
	led, ids := newLedger(t,
		stockSeed{name: "Worm Shaft", class: ledger.ClassA, qty: 10},
		stockSeed{name: "Oil Seal", class: ledger.ClassC, qty: 2},
	)
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1, BOM: []catalog.BOMLine{
		{MaterialID: ids[0], QtyPerUnit: 1},
		{MaterialID: ids[1], QtyPerUnit: 2},
	}})
	svc := NewService(repo, cat, led, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 3})
	require.NoError(t, err)

	_, err = svc.Start(ctx, order.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// Neither material was debited and the order never advanced.
	stock, err := led.svc.GetStock(ctx, ids[0])
	require.NoError(t, err)
	require.InDelta(t, 10.0, stock.Total(), 0.0001)
	stock, err = led.svc.GetStock(ctx, ids[1])
	require.NoError(t, err)
	require.InDelta(t, 2.0, stock.Total(), 0.0001)

	current, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUnprocessed, current.Status)
}

func TestCheckAvailability(t *testing.T) {
	led, ids := newLedger(t,
		stockSeed{name: "Worm Shaft", class: ledger.ClassA, qty: 5},
		stockSeed{name: "Worm Wheel Blank", class: ledger.ClassB},
		stockSeed{name: "Oil Seal", class: ledger.ClassC, qty: 50},
	)
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1, BOM: []catalog.BOMLine{
		{MaterialID: ids[0], QtyPerUnit: 1},
		{MaterialID: ids[1], QtyPerUnit: 1},
		{MaterialID: ids[2], QtyPerUnit: 4},
	}})
	svc := NewService(repo, cat, led, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 3})
	require.NoError(t, err)

	report, err := svc.CheckAvailability(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.Number, report.Number)
	require.False(t, report.AllInStock)

	require.Len(t, report.ClassA, 1)
	require.True(t, report.ClassA[0].InStock)
	require.InDelta(t, 3.0, report.ClassA[0].Required, 0.0001)
	require.InDelta(t, 5.0, report.ClassA[0].Available, 0.0001)

	// Class B availability is judged on the processed bucket only.
	require.Len(t, report.ClassB, 1)
	require.False(t, report.ClassB[0].InStock)
	require.InDelta(t, 0.0, report.ClassB[0].Available, 0.0001)

	require.Len(t, report.ClassC, 1)
	require.True(t, report.ClassC[0].InStock)

	// The report never mutates stock.
	stock, err := led.svc.GetStock(ctx, ids[0])
	require.NoError(t, err)
	require.InDelta(t, 5.0, stock.Total(), 0.0001)
}

func TestMakeReadyStandalone(t *testing.T) {
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1})
	svc := NewService(repo, cat, nil, &fakeSequences{}, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 6})
	require.NoError(t, err)

	done, err := svc.MakeReady(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	// One finished batch adds one unit regardless of order quantity.
	require.Equal(t, 1, cat.increments[1])
}

func TestMakeReadySalesLinked(t *testing.T) {
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1})
	svc := NewService(repo, cat, nil, &fakeSequences{}, nil)
	ready := &captureReady{}
	svc.SetReadyHandler(ready)
	ctx := context.Background()

	soNumber := uint64(42)
	order, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 2, SalesOrderNumber: &soNumber})
	require.NoError(t, err)
	require.False(t, order.Standalone())

	done, err := svc.MakeReady(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, done.Status)

	require.Len(t, ready.events, 1)
	evt := ready.events[0]
	require.Equal(t, order.ID, evt.ProductionID)
	require.Equal(t, order.Number, evt.Number)
	require.Equal(t, soNumber, evt.SalesOrderNumber)
	require.Equal(t, int64(1), evt.FinishedGoodID)
}

func TestListPendingExcludesFinishedOrders(t *testing.T) {
	repo := newMemoryRepo()
	cat := newFakeCatalog(catalog.FinishedGood{ID: 1})
	svc := NewService(repo, cat, nil, &fakeSequences{}, nil)
	ctx := context.Background()

	completed, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 1})
	require.NoError(t, err)
	soNumber := uint64(7)
	ready, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 1, SalesOrderNumber: &soNumber})
	require.NoError(t, err)
	open, err := svc.Create(ctx, CreateInput{FinishedGoodID: 1, Quantity: 1})
	require.NoError(t, err)

	// A standalone order finishes COMPLETED, a sales-linked one parks
	// at READY; neither is pending work anymore.
	_, err = svc.MakeReady(ctx, completed.ID)
	require.NoError(t, err)
	_, err = svc.MakeReady(ctx, ready.ID)
	require.NoError(t, err)

	pending, total, err := svc.ListPending(ctx, 100, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, pending, 1)
	require.Equal(t, open.ID, pending[0].ID)
}
