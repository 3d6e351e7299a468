package ledger

import (
	"context"
	"time"
)

// LowStockEvent signals a material has fallen to or below its minimum.
type LowStockEvent struct {
	MaterialID  int64
	Name        string
	Class       Class
	Total       float64
	MinQuantity float64
	At          time.Time
}

// AlertHandler receives low-stock events for replenishment follow-up.
type AlertHandler interface {
	HandleLowStock(ctx context.Context, evt LowStockEvent) error
}
