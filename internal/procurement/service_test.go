package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/shared"
)

type memoryRepo struct {
	orders       map[int64]Order
	credits      []PendingCredit
	nextID       int64
	nextItemID   int64
	nextCreditID int64
}

type memoryTx struct {
	repo       *memoryRepo
	itemQty    map[int64]float64
	itemStatus map[int64]ItemStatus
	status     map[int64]Status
	credits    []PendingCredit
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:       r,
		itemQty:    make(map[int64]float64),
		itemStatus: make(map[int64]ItemStatus),
		status:     make(map[int64]Status),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Commit staged changes only on success.
	for id, order := range r.orders {
		changed := false
		for i := range order.Items {
			item := &order.Items[i]
			if qty, ok := tx.itemQty[item.ID]; ok {
				item.ReceivedQty = qty
				changed = true
			}
			if status, ok := tx.itemStatus[item.ID]; ok {
				item.Status = status
				changed = true
			}
		}
		if status, ok := tx.status[id]; ok {
			order.Status = status
			changed = true
		}
		if changed {
			r.orders[id] = order
		}
	}
	for _, c := range tx.credits {
		r.nextCreditID++
		c.ID = r.nextCreditID
		r.credits = append(r.credits, c)
	}
	return nil
}

func (r *memoryRepo) ListUnappliedCredits(ctx context.Context, orderID int64) ([]PendingCredit, error) {
	var pending []PendingCredit
	for _, c := range r.credits {
		if c.OrderID == orderID && !c.Applied {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (r *memoryRepo) MarkCreditApplied(ctx context.Context, creditID int64) error {
	for i := range r.credits {
		if r.credits[i].ID == creditID {
			r.credits[i].Applied = true
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, order Order) (Order, error) {
	r.nextID++
	order.ID = r.nextID
	for i := range order.Items {
		r.nextItemID++
		order.Items[i].ID = r.nextItemID
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	items := make([]Item, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order, nil
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]Order, int, error) {
	var result []Order
	for id := r.nextID; id >= 1; id-- {
		if order, ok := r.orders[id]; ok {
			result = append(result, order)
		}
	}
	return result, len(result), nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) UpdateItemReceived(ctx context.Context, itemID int64, received float64, status ItemStatus) error {
	tx.itemQty[itemID] = received
	tx.itemStatus[itemID] = status
	return nil
}

func (tx *memoryTx) InsertCredits(ctx context.Context, orderID int64, credits []PendingCredit) error {
	tx.credits = append(tx.credits, credits...)
	return nil
}

func (tx *memoryTx) SetOrderStatus(ctx context.Context, id int64, status Status) error {
	if _, ok := tx.repo.orders[id]; !ok {
		return ErrNotFound
	}
	tx.status[id] = status
	return nil
}

type creditCall struct {
	materialID int64
	bucket     ledger.Bucket
	amount     float64
}

type fakeLedger struct {
	materials map[int64]ledger.Material
	credits   []creditCall
	creditErr error
}

func newFakeLedger(materials ...ledger.Material) *fakeLedger {
	fl := &fakeLedger{materials: make(map[int64]ledger.Material)}
	for _, m := range materials {
		fl.materials[m.ID] = m
	}
	return fl
}

func (l *fakeLedger) GetMaterial(ctx context.Context, id int64) (ledger.Material, error) {
	m, ok := l.materials[id]
	if !ok {
		return ledger.Material{}, ledger.ErrNotFound
	}
	return m, nil
}

func (l *fakeLedger) Credit(ctx context.Context, materialID int64, bucket ledger.Bucket, amount float64) (ledger.Material, error) {
	if l.creditErr != nil {
		return ledger.Material{}, l.creditErr
	}
	m, ok := l.materials[materialID]
	if !ok {
		return ledger.Material{}, ledger.ErrNotFound
	}
	if err := m.Quantity.Add(bucket, amount); err != nil {
		return ledger.Material{}, err
	}
	l.materials[materialID] = m
	l.credits = append(l.credits, creditCall{materialID: materialID, bucket: bucket, amount: amount})
	return m, nil
}

type fakeSequences struct {
	next uint64
}

func (s *fakeSequences) Next(ctx context.Context, name string) (uint64, error) {
	s.next++
	return s.next, nil
}

type fakeIdempotency struct {
	seen map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{seen: make(map[string]string)}
}

func (s *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := s.seen[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.seen[key] = module
	return nil
}

func (s *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.seen, key)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService() (*Service, *memoryRepo, *fakeLedger, *fakeIdempotency) {
	repo := newMemoryRepo()
	led := newFakeLedger(
		ledger.Material{ID: 1, Class: ledger.ClassA, Name: "Worm Shaft", Quantity: ledger.ZeroQuantity(ledger.ClassA)},
		ledger.Material{ID: 2, Class: ledger.ClassB, Name: "Worm Wheel Blank", Quantity: ledger.ZeroQuantity(ledger.ClassB)},
		ledger.Material{ID: 3, Class: ledger.ClassC, Name: "Oil Seal", Quantity: ledger.ZeroQuantity(ledger.ClassC)},
	)
	idem := newFakeIdempotency()
	return NewService(repo, led, &fakeSequences{}, nil, idem), repo, led, idem
}

func TestCreate(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		OrderDate:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Items: []ItemInput{
			{MaterialID: 1, Quantity: 20, UnitPrice: dec("350")},
			{MaterialID: 2, Quantity: 100, UnitPrice: dec("80")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), order.Number)
	require.Equal(t, StatusPending, order.Status)
	require.Len(t, order.Items, 2)
	require.Equal(t, "Worm Shaft", order.Items[0].MaterialName)
	require.Equal(t, ledger.ClassB, order.Items[1].MaterialClass)
	require.True(t, order.Items[0].ItemTotal.Equal(dec("7000")))
	require.True(t, order.TotalPrice.Equal(dec("15000")))
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Items: []ItemInput{{MaterialID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{VendorName: "Shree Steel Traders"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{VendorName: "Shree Steel Traders", Items: []ItemInput{{MaterialID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{VendorName: "Shree Steel Traders", Items: []ItemInput{{MaterialID: 1, Quantity: 1, UnitPrice: dec("-1")}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{VendorName: "Shree Steel Traders", Items: []ItemInput{{MaterialID: 99, Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReceiveStockCapsAndCompletes(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items:      []ItemInput{{MaterialID: 2, Quantity: 100, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	itemID := order.Items[0].ID

	updated, err := svc.ReceiveStock(ctx, ReceiveInput{
		OrderID: order.ID,
		Deltas:  []ReceiptDelta{{ItemID: itemID, Quantity: 40}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)
	require.InDelta(t, 40.0, updated.Items[0].ReceivedQty, 0.0001)
	require.Equal(t, ItemPending, updated.Items[0].Status)

	// An over-delivery is capped at ordered quantity; only the real
	// growth reaches the ledger.
	updated, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID: order.ID,
		Deltas:  []ReceiptDelta{{ItemID: itemID, Quantity: 70}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, updated.Status)
	require.InDelta(t, 100.0, updated.Items[0].ReceivedQty, 0.0001)
	require.Equal(t, ItemReceived, updated.Items[0].Status)
	require.InDelta(t, 0.0, updated.Items[0].MaxAllowed(), 0.0001)

	require.Len(t, led.credits, 2)
	require.Equal(t, ledger.BucketUnprocessed, led.credits[0].bucket)
	require.InDelta(t, 40.0, led.credits[0].amount, 0.0001)
	require.InDelta(t, 60.0, led.credits[1].amount, 0.0001)
	require.InDelta(t, 100.0, led.materials[2].Quantity.Buckets()[ledger.BucketUnprocessed], 0.0001)
}

func TestReceiveStockScalarClassesCreditProcessed(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items: []ItemInput{
			{MaterialID: 1, Quantity: 10, UnitPrice: dec("350")},
			{MaterialID: 3, Quantity: 50, UnitPrice: dec("12")},
		},
	})
	require.NoError(t, err)

	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID: order.ID,
		Deltas: []ReceiptDelta{
			{ItemID: order.Items[0].ID, Quantity: 10},
			{ItemID: order.Items[1].ID, Quantity: 50},
		},
	})
	require.NoError(t, err)

	require.Len(t, led.credits, 2)
	require.Equal(t, ledger.BucketProcessed, led.credits[0].bucket)
	require.Equal(t, ledger.BucketProcessed, led.credits[1].bucket)
	require.InDelta(t, 10.0, led.materials[1].Quantity.Total(), 0.0001)
	require.InDelta(t, 50.0, led.materials[3].Quantity.Total(), 0.0001)
}

func TestReceiveStockRejectsForeignItem(t *testing.T) {
	svc, _, led, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items:      []ItemInput{{MaterialID: 1, Quantity: 10, UnitPrice: dec("350")}},
	})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{
		VendorName: "Patel Forgings",
		Items:      []ItemInput{{MaterialID: 3, Quantity: 5, UnitPrice: dec("12")}},
	})
	require.NoError(t, err)

	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID: first.ID,
		Deltas: []ReceiptDelta{
			{ItemID: first.Items[0].ID, Quantity: 10},
			{ItemID: second.Items[0].ID, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	// The rejected receipt left both orders and the ledger untouched.
	require.Empty(t, led.credits)
	current, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, current.Items[0].ReceivedQty, 0.0001)
}

func TestReceiveStockValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ReceiveStock(ctx, ReceiveInput{OrderID: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ReceiveStock(ctx, ReceiveInput{OrderID: 1, Deltas: []ReceiptDelta{{ItemID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ReceiveStock(ctx, ReceiveInput{OrderID: 99, Deltas: []ReceiptDelta{{ItemID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveStockIdempotency(t *testing.T) {
	svc, _, led, idem := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items:      []ItemInput{{MaterialID: 1, Quantity: 10, UnitPrice: dec("350")}},
	})
	require.NoError(t, err)
	itemID := order.Items[0].ID

	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-1",
		Deltas:         []ReceiptDelta{{ItemID: itemID, Quantity: 4}},
	})
	require.NoError(t, err)

	// The resubmitted receipt is rejected and credits nothing.
	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-1",
		Deltas:         []ReceiptDelta{{ItemID: itemID, Quantity: 4}},
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, led.credits, 1)

	// A failed receipt releases its key for a retry.
	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-2",
		Deltas:         []ReceiptDelta{{ItemID: 999, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, ok := idem.seen["receipt-2"]
	require.False(t, ok)
}

func TestReceiveStockReplaysRefusedCredits(t *testing.T) {
	svc, repo, led, _ := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items:      []ItemInput{{MaterialID: 2, Quantity: 100, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	itemID := order.Items[0].ID

	// The ledger refuses the credit after the receipt committed.
	led.creditErr = errors.New("ledger unavailable")
	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-1",
		Deltas:         []ReceiptDelta{{ItemID: itemID, Quantity: 40}},
	})
	require.ErrorContains(t, err, "credit material 2")

	current, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.InDelta(t, 40.0, current.Items[0].ReceivedQty, 0.0001)
	require.Empty(t, led.credits)
	pending, err := repo.ListUnappliedCredits(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Once the ledger is back, resubmitting the receipt settles the
	// owed credit even though the key itself is still claimed.
	led.creditErr = nil
	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-1",
		Deltas:         []ReceiptDelta{{ItemID: itemID, Quantity: 40}},
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, led.credits, 1)
	require.InDelta(t, 40.0, led.credits[0].amount, 0.0001)
	require.InDelta(t, 40.0, led.materials[2].Quantity.Buckets()[ledger.BucketUnprocessed], 0.0001)
	pending, err = repo.ListUnappliedCredits(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, pending)

	// A later receipt credits only its own growth.
	updated, err := svc.ReceiveStock(ctx, ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "receipt-2",
		Deltas:         []ReceiptDelta{{ItemID: itemID, Quantity: 10}},
	})
	require.NoError(t, err)
	require.InDelta(t, 50.0, updated.Items[0].ReceivedQty, 0.0001)
	require.Len(t, led.credits, 2)
	require.InDelta(t, 50.0, led.materials[2].Quantity.Buckets()[ledger.BucketUnprocessed], 0.0001)
}

func TestListItems(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		VendorName: "Shree Steel Traders",
		Items: []ItemInput{
			{MaterialID: 1, Quantity: 10, UnitPrice: dec("350")},
			{MaterialID: 2, Quantity: 100, UnitPrice: dec("80")},
		},
	})
	require.NoError(t, err)

	_, err = svc.ReceiveStock(ctx, ReceiveInput{
		OrderID: order.ID,
		Deltas:  []ReceiptDelta{{ItemID: order.Items[0].ID, Quantity: 3}},
	})
	require.NoError(t, err)

	all, err := svc.ListItems(ctx, order.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.InDelta(t, 7.0, all[0].MaxAllowedQty, 0.0001)
	require.InDelta(t, 100.0, all[1].MaxAllowedQty, 0.0001)

	onlyB, err := svc.ListItems(ctx, order.ID, ledger.ClassB)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	require.Equal(t, int64(2), onlyB[0].MaterialID)

	_, err = svc.ListItems(ctx, 999, "")
	require.ErrorIs(t, err, ErrNotFound)
}
