package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Spec identifies a finished good by its customer-facing specification.
type Spec struct {
	Model string
	Type  string
	Ratio string
	Power string
}

// BOMLine maps one raw material to the quantity consumed per produced unit.
type BOMLine struct {
	MaterialID int64
	QtyPerUnit float64
}

// FinishedGood is a sellable manufactured item with its bill of materials.
type FinishedGood struct {
	ID            int64
	Model         string
	Type          string
	Ratio         string
	Power         string
	ShaftDiameter string
	FrameSize     string
	RatePerUnit   decimal.Decimal
	BasePrice     decimal.Decimal
	Units         int64
	BOM           []BOMLine
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListFilter narrows finished good listings.
type ListFilter struct {
	Model  string
	Type   string
	Ratio  string
	Power  string
	Limit  int
	Offset int
}

var (
	// ErrNotFound indicates no finished good matches the given spec or id.
	ErrNotFound = errors.New("catalog: finished good not found")
	// ErrDuplicate indicates a finished good with the same model number exists.
	ErrDuplicate = errors.New("catalog: finished good already exists")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
