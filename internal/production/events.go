package production

import (
	"context"
	"time"
)

// ReadyEvent signals a sales-linked production order finished its batch.
type ReadyEvent struct {
	ProductionID     int64
	Number           uint64
	SalesOrderNumber uint64
	FinishedGoodID   int64
	At               time.Time
}

// ReadyHandler receives ready events; the sales workflow consumes them
// to mark the matching order line fulfilled.
type ReadyHandler interface {
	HandleProductionReady(ctx context.Context, evt ReadyEvent) error
}
