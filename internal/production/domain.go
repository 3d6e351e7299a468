package production

import (
	"errors"
	"time"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

// Status is the production order lifecycle state.
type Status string

const (
	StatusUnprocessed Status = "UN_PROCESSED"
	StatusInProcess   Status = "IN_PROCESSES"
	StatusReady       Status = "READY"
	StatusCompleted   Status = "COMPLETED"
)

// Order is an internal work order to manufacture a finished good.
// Orders are append-only history: they are never deleted once created.
type Order struct {
	ID               int64
	Number           uint64
	SalesOrderNumber *uint64
	FinishedGoodID   int64
	Quantity         float64
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Standalone reports whether the order has no originating sales order.
func (o Order) Standalone() bool {
	return o.SalesOrderNumber == nil
}

// MaterialCheck compares required against available stock for one
// bill-of-materials line.
type MaterialCheck struct {
	MaterialID int64
	Name       string
	Class      ledger.Class
	Required   float64
	Available  float64
	InStock    bool
}

// AvailabilityReport groups material checks by class, mirroring how the
// shop floor reviews requirements.
type AvailabilityReport struct {
	ProductionID int64
	Number       uint64
	Quantity     float64
	Status       Status
	ClassA       []MaterialCheck
	ClassB       []MaterialCheck
	ClassC       []MaterialCheck
	AllInStock   bool
}

var (
	// ErrNotFound indicates the production order does not exist.
	ErrNotFound = errors.New("production: order not found")
	// ErrInvalidState occurs when a transition is attempted outside its legal source state.
	ErrInvalidState = errors.New("production: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("production: invalid input")
)
