package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

const (
	// TaskLowStockScan triggers the periodic sweep over all raw materials.
	TaskLowStockScan = "stock:low_scan"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low stock sweep.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	payload := LowStockScanPayload{ScheduledFor: at}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// MaterialLister enumerates raw materials for the sweep.
type MaterialLister interface {
	List(ctx context.Context, class ledger.Class, limit, offset int) ([]ledger.Material, error)
}

// AlertEnqueuer submits stock alert tasks.
type AlertEnqueuer interface {
	EnqueueStockAlert(ctx context.Context, payload StockAlertPayload) error
}

// LowStockScanner walks the material ledger and enqueues one alert per
// material at or below its minimum. It backstops the synchronous
// alerts emitted on mutation: a material seeded low or whose minimum
// was raised still gets flagged.
type LowStockScanner struct {
	materials MaterialLister
	alerts    AlertEnqueuer
	logger    *slog.Logger
}

// NewLowStockScanner constructs the scanner.
func NewLowStockScanner(materials MaterialLister, alerts AlertEnqueuer, logger *slog.Logger) *LowStockScanner {
	return &LowStockScanner{materials: materials, alerts: alerts, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (s *LowStockScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	const pageSize = 200
	offset := 0
	flagged := 0
	for {
		page, err := s.materials.List(ctx, "", pageSize, offset)
		if err != nil {
			return err
		}
		for _, m := range page {
			if !m.LowStock() {
				continue
			}
			alert := StockAlertPayload{
				MaterialID:  m.ID,
				Name:        m.Name,
				Class:       string(m.Class),
				Total:       m.Quantity.Total(),
				MinQuantity: m.MinQuantity,
				At:          payload.ScheduledFor,
			}
			if err := s.alerts.EnqueueStockAlert(ctx, alert); err != nil {
				s.logger.Warn("enqueue stock alert", slog.Int64("material_id", m.ID), slog.Any("error", err))
				continue
			}
			flagged++
		}
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	s.logger.Info("low stock scan complete", slog.Int("flagged", flagged))
	return nil
}
