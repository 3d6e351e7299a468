package production

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists production orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, sales_order_number, finished_good_id, quantity, status, created_at, updated_at`

// Create inserts a new production order.
func (r *Repository) Create(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO production_orders
(number, sales_order_number, finished_good_id, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING id`,
		int64(order.Number), salesNumberArg(order.SalesOrderNumber), order.FinishedGoodID, order.Quantity, string(order.Status)).Scan(&id)
	return id, err
}

// Get loads one production order.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1`, id)
	return scanOrder(row)
}

// UpdateStatus moves the order to a new status when it is currently in
// the expected one, returning ErrInvalidState otherwise.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE production_orders SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

// SetStatus sets the status unconditionally.
func (r *Repository) SetStatus(ctx context.Context, id int64, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE production_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending returns orders that have not reached a terminal status.
func (r *Repository) ListPending(ctx context.Context, limit, offset int) ([]Order, int, error) {
	if limit <= 0 {
		limit = 10
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_orders WHERE status NOT IN ('READY', 'COMPLETED')`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM production_orders
WHERE status NOT IN ('READY', 'COMPLETED')
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func salesNumberArg(n *uint64) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var number int64
	var salesNumber *int64
	var status string
	var createdAt, updatedAt time.Time
	err := row.Scan(&o.ID, &number, &salesNumber, &o.FinishedGoodID, &o.Quantity, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Number = uint64(number)
	if salesNumber != nil {
		n := uint64(*salesNumber)
		o.SalesOrderNumber = &n
	}
	o.Status = Status(status)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
