package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

type fakeLister struct {
	materials []ledger.Material
}

func (l *fakeLister) List(ctx context.Context, class ledger.Class, limit, offset int) ([]ledger.Material, error) {
	if offset >= len(l.materials) {
		return nil, nil
	}
	end := offset + limit
	if end > len(l.materials) {
		end = len(l.materials)
	}
	return l.materials[offset:end], nil
}

type captureEnqueuer struct {
	alerts []StockAlertPayload
}

func (c *captureEnqueuer) EnqueueStockAlert(ctx context.Context, payload StockAlertPayload) error {
	c.alerts = append(c.alerts, payload)
	return nil
}

func material(id int64, name string, class ledger.Class, qty, min float64) ledger.Material {
	return ledger.Material{ID: id, Class: class, Name: name, MinQuantity: min, Quantity: ledger.ScalarQuantity(qty)}
}

func TestLowStockScanFlagsMaterialsAtOrBelowMinimum(t *testing.T) {
	lister := &fakeLister{materials: []ledger.Material{
		material(1, "Worm Shaft", ledger.ClassA, 3, 10),
		material(2, "Oil Seal", ledger.ClassC, 50, 10),
		material(3, "Key Steel", ledger.ClassC, 10, 10),
	}}
	enq := &captureEnqueuer{}
	scanner := NewLowStockScanner(lister, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	task, err := NewLowStockScanTask(at)
	require.NoError(t, err)

	require.NoError(t, scanner.Handle(context.Background(), task))
	require.Len(t, enq.alerts, 2)
	require.Equal(t, int64(1), enq.alerts[0].MaterialID)
	require.InDelta(t, 3.0, enq.alerts[0].Total, 0.0001)
	require.Equal(t, int64(3), enq.alerts[1].MaterialID)
	require.Equal(t, at, enq.alerts[0].At)
}

func TestLowStockScanPaginates(t *testing.T) {
	var materials []ledger.Material
	for i := int64(1); i <= 450; i++ {
		materials = append(materials, material(i, "Bolt", ledger.ClassC, 0, 1))
	}
	lister := &fakeLister{materials: materials}
	enq := &captureEnqueuer{}
	scanner := NewLowStockScanner(lister, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	task, err := NewLowStockScanTask(time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, scanner.Handle(context.Background(), task))
	require.Len(t, enq.alerts, 450)
}

func TestLowStockScanBadPayload(t *testing.T) {
	scanner := NewLowStockScanner(&fakeLister{}, &captureEnqueuer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := scanner.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
