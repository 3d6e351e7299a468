package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequence counter names used across workflows.
const (
	SeqSalesOrder      = "sales_order"
	SeqProductionOrder = "production_order"
	SeqPurchaseOrder   = "purchase_order"
)

// Sequences allocates monotonically increasing document numbers.
// Each named counter lives in a single row; the upsert makes the
// increment atomic and gap-tolerant under concurrent callers.
type Sequences struct {
	pool *pgxpool.Pool
}

// NewSequences constructs the allocator.
func NewSequences(pool *pgxpool.Pool) *Sequences {
	return &Sequences{pool: pool}
}

// Next returns the next value for the named counter.
func (s *Sequences) Next(ctx context.Context, name string) (uint64, error) {
	if s == nil {
		return 0, errors.New("sequence allocator not initialised")
	}
	if name == "" {
		return 0, errors.New("sequence name required")
	}
	var value int64
	err := s.pool.QueryRow(ctx, `INSERT INTO sequences (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, err
	}
	return uint64(value), nil
}
