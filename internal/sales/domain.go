package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the sales order lifecycle state.
type Status string

const (
	StatusUnapproved Status = "UN_APPROVED"
	StatusInProcess  Status = "INPROCESS"
	StatusProcessed  Status = "PROCESSED"
	StatusDispatched Status = "DISPATCHED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// statusRank orders the forward-only delivery path. UN_APPROVED and
// CANCELLED sit outside it: approval and rejection are the only
// transitions out of UN_APPROVED.
var statusRank = map[Status]int{
	StatusInProcess:  1,
	StatusProcessed:  2,
	StatusDispatched: 3,
	StatusDelivered:  4,
}

// CanAdvance reports whether moving from one status to another keeps
// the observed sequence a subsequence of the legal path.
func CanAdvance(from, to Status) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Line is one finished good position on a sales order.
type Line struct {
	ID             int64
	FinishedGoodID int64
	Quantity       float64
	RatePerUnit    decimal.Decimal
	LineTotal      decimal.Decimal
	Fulfilled      bool
}

// Order is a customer order over finished goods.
type Order struct {
	ID             int64
	Number         uint64
	CustomerName   string
	Description    string
	Status         Status
	TotalAmount    decimal.Decimal
	ReceivedAmount decimal.Decimal
	Lines          []Line
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AllFulfilled reports whether every line's production has completed.
func (o Order) AllFulfilled() bool {
	for _, line := range o.Lines {
		if !line.Fulfilled {
			return false
		}
	}
	return len(o.Lines) > 0
}

var (
	// ErrNotFound indicates the sales order does not exist.
	ErrNotFound = errors.New("sales: order not found")
	// ErrInvalidState occurs when a transition is attempted outside its legal source state.
	ErrInvalidState = errors.New("sales: invalid state transition")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("sales: amount must be positive")
	// ErrExceedsTotal indicates a payment beyond the total due.
	ErrExceedsTotal = errors.New("sales: payment exceeds total amount")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
)
