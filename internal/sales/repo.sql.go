package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists sales orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts order header and lines in one transaction.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	err = tx.QueryRow(ctx, `INSERT INTO sales_orders
(number, customer_name, description, status, total_amount, received_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, 0, NOW(), NOW())
RETURNING id`,
		int64(order.Number), order.CustomerName, order.Description, string(order.Status), order.TotalAmount.String()).Scan(&order.ID)
	if err != nil {
		return Order{}, err
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		err = tx.QueryRow(ctx, `INSERT INTO sales_order_lines
(sales_order_id, finished_good_id, quantity, rate_per_unit, line_total, fulfilled)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, FALSE)
RETURNING id`,
			order.ID, line.FinishedGoodID, line.Quantity, line.RatePerUnit.String(), line.LineTotal.String()).Scan(&line.ID)
		if err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Get loads one order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return r.get(ctx, `WHERE id=$1`, id)
}

// GetByNumber loads one order by its document number.
func (r *Repository) GetByNumber(ctx context.Context, number uint64) (Order, error) {
	return r.get(ctx, `WHERE number=$1`, int64(number))
}

func (r *Repository) get(ctx context.Context, where string, arg any) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, number, customer_name, description, status, total_amount::text, received_amount::text, created_at, updated_at
FROM sales_orders `+where, arg)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	order.Lines, err = r.loadLines(ctx, order.ID)
	return order, err
}

func (r *Repository) loadLines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, finished_good_id, quantity, rate_per_unit::text, line_total::text, fulfilled
FROM sales_order_lines WHERE sales_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		var rate, total string
		if err := rows.Scan(&line.ID, &line.FinishedGoodID, &line.Quantity, &rate, &total, &line.Fulfilled); err != nil {
			return nil, err
		}
		if line.RatePerUnit, err = decimal.NewFromString(rate); err != nil {
			return nil, err
		}
		if line.LineTotal, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateStatus moves the order between two statuses atomically,
// returning ErrInvalidState when the source status no longer matches.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_orders SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
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

// UpdateApproval rewrites line rates and the order total while flipping
// the order into INPROCESS, all in one transaction.
func (r *Repository) UpdateApproval(ctx context.Context, order Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	tag, err := tx.Exec(ctx, `UPDATE sales_orders SET status=$2, total_amount=$3::numeric, updated_at=NOW() WHERE id=$1 AND status=$4`,
		order.ID, string(StatusInProcess), order.TotalAmount.String(), string(StatusUnapproved))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	for _, line := range order.Lines {
		if _, err := tx.Exec(ctx, `UPDATE sales_order_lines SET rate_per_unit=$2::numeric, line_total=$3::numeric WHERE id=$1`,
			line.ID, line.RatePerUnit.String(), line.LineTotal.String()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AddPayment increments received_amount, refusing to exceed the total.
func (r *Repository) AddPayment(ctx context.Context, id int64, amount decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_orders
SET received_amount = received_amount + $2::numeric, updated_at=NOW()
WHERE id=$1 AND received_amount + $2::numeric <= total_amount`, id, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrExceedsTotal
	}
	return nil
}

// SetLineFulfilled marks one order line as produced.
func (r *Repository) SetLineFulfilled(ctx context.Context, lineID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales_order_lines SET fulfilled=TRUE WHERE id=$1`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns orders newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Order, int, error) {
	if limit <= 0 {
		limit = 10
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, customer_name, description, status, total_amount::text, received_amount::text, created_at, updated_at
FROM sales_orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
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

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var number int64
	var status string
	var total, received string
	var createdAt, updatedAt time.Time
	err := row.Scan(&o.ID, &number, &o.CustomerName, &o.Description, &status, &total, &received, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Number = uint64(number)
	o.Status = Status(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return Order{}, err
	}
	if o.ReceivedAmount, err = decimal.NewFromString(received); err != nil {
		return Order{}, err
	}
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
