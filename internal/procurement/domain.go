package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusComplete Status = "COMPLETE"
)

// ItemStatus tracks per-line receipt progress.
type ItemStatus string

const (
	ItemPending  ItemStatus = "PENDING"
	ItemReceived ItemStatus = "RECEIVED"
)

// Item is one raw material position on a purchase order.
type Item struct {
	ID            int64
	MaterialID    int64
	MaterialName  string
	MaterialClass ledger.Class
	OrderedQty    float64
	UnitPrice     decimal.Decimal
	ItemTotal     decimal.Decimal
	ReceivedQty   float64
	Status        ItemStatus
}

// FullyReceived reports whether the ordered quantity has arrived.
func (i Item) FullyReceived() bool {
	return i.ReceivedQty >= i.OrderedQty
}

// MaxAllowed is the receivable remainder, floored at zero.
func (i Item) MaxAllowed() float64 {
	remaining := i.OrderedQty - i.ReceivedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PendingCredit is a ledger credit owed for received stock. Credits
// are recorded in the receipt transaction and applied afterwards; a
// credit the ledger refused survives as an unapplied row to replay
// instead of being lost.
type PendingCredit struct {
	ID         int64
	OrderID    int64
	MaterialID int64
	Bucket     ledger.Bucket
	Amount     float64
	Applied    bool
}

// Order is a vendor order replenishing raw material stock.
type Order struct {
	ID         int64
	Number     uint64
	VendorName string
	OrderDate  time.Time
	Status     Status
	TotalPrice decimal.Decimal
	Items      []Item
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AllReceived reports whether every item is fully received.
func (o Order) AllReceived() bool {
	for _, item := range o.Items {
		if !item.FullyReceived() {
			return false
		}
	}
	return len(o.Items) > 0
}

var (
	// ErrNotFound indicates the purchase order does not exist.
	ErrNotFound = errors.New("procurement: order not found")
	// ErrInvalidInput indicates malformed quantities or foreign item ids.
	ErrInvalidInput = errors.New("procurement: invalid input")
)
