package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeStockAlert is the task type for low stock notifications.
	TaskTypeStockAlert = "stock:alert"
)

// StockAlertPayload describes a material that fell to or below its
// minimum quantity.
type StockAlertPayload struct {
	MaterialID  int64     `json:"material_id"`
	Name        string    `json:"name"`
	Class       string    `json:"class"`
	Total       float64   `json:"total"`
	MinQuantity float64   `json:"min_quantity"`
	At          time.Time `json:"at"`
}

// StockAlertTaskID derives a deterministic task id per material, so a
// material that keeps tripping its threshold holds at most one pending
// alert in the queue.
func StockAlertTaskID(materialID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("STOCKALERT:%d", materialID))).String()
}

// NewStockAlertTask constructs an Asynq task.
func NewStockAlertTask(payload StockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStockAlert, data, asynq.TaskID(StockAlertTaskID(payload.MaterialID))), nil
}

// HandleStockAlertTask processes TaskTypeStockAlert tasks.
func HandleStockAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload StockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP/Mailpit in phase 2.
	fmt.Printf("[jobs] low stock alert material=%d name=%s total=%v min=%v\n",
		payload.MaterialID, payload.Name, payload.Total, payload.MinQuantity)
	return nil
}
