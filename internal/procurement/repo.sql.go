package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateItemReceived(ctx context.Context, itemID int64, received float64, status ItemStatus) error
	SetOrderStatus(ctx context.Context, id int64, status Status) error
	InsertCredits(ctx context.Context, orderID int64, credits []PendingCredit) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Create inserts order header and items in one transaction.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	err = tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, vendor_name, order_date, status, total_price, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, NOW(), NOW())
RETURNING id`,
		int64(order.Number), order.VendorName, order.OrderDate, string(order.Status), order.TotalPrice.String()).Scan(&order.ID)
	if err != nil {
		return Order{}, err
	}
	for i := range order.Items {
		item := &order.Items[i]
		err = tx.QueryRow(ctx, `INSERT INTO purchase_order_items
(purchase_order_id, raw_material_id, ordered_qty, unit_price, item_total, received_qty, status)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, 0, $6)
RETURNING id`,
			order.ID, item.MaterialID, item.OrderedQty, item.UnitPrice.String(), item.ItemTotal.String(), string(item.Status)).Scan(&item.ID)
		if err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Get loads one order with its items and their material details.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	order, err := getOrder(ctx, r.pool, id, "")
	if err != nil {
		return Order{}, err
	}
	order.Items, err = loadItems(ctx, r.pool, id)
	return order, err
}

// List returns orders newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Order, int, error) {
	if limit <= 0 {
		limit = 10
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, vendor_name, order_date, status, total_price::text, created_at, updated_at
FROM purchase_orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
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

// ListUnappliedCredits returns ledger credits recorded for the order
// that have not been applied yet, oldest first.
func (r *Repository) ListUnappliedCredits(ctx context.Context, orderID int64) ([]PendingCredit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_order_id, raw_material_id, bucket, amount
FROM purchase_order_credits WHERE purchase_order_id=$1 AND applied=FALSE ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var credits []PendingCredit
	for rows.Next() {
		var c PendingCredit
		var bucket string
		if err := rows.Scan(&c.ID, &c.OrderID, &c.MaterialID, &bucket, &c.Amount); err != nil {
			return nil, err
		}
		c.Bucket = ledger.Bucket(bucket)
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

// MarkCreditApplied flags one credit row as pushed into the ledger.
func (r *Repository) MarkCreditApplied(ctx context.Context, creditID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_order_credits SET applied=TRUE WHERE id=$1`, creditID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrder(ctx context.Context, q querier, id int64, suffix string) (Order, error) {
	row := q.QueryRow(ctx, `SELECT id, number, vendor_name, order_date, status, total_price::text, created_at, updated_at
FROM purchase_orders WHERE id=$1`+suffix, id)
	return scanOrder(row)
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.raw_material_id, m.name, m.class, i.ordered_qty, i.unit_price::text, i.item_total::text, i.received_qty, i.status
FROM purchase_order_items i
JOIN raw_materials m ON m.id = i.raw_material_id
WHERE i.purchase_order_id=$1
ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		var class, price, total, status string
		if err := rows.Scan(&item.ID, &item.MaterialID, &item.MaterialName, &class, &item.OrderedQty, &price, &total, &item.ReceivedQty, &status); err != nil {
			return nil, err
		}
		item.MaterialClass = ledger.Class(class)
		item.Status = ItemStatus(status)
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if item.ItemTotal, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	order, err := getOrder(ctx, t.tx, id, " FOR UPDATE")
	if err != nil {
		return Order{}, err
	}
	order.Items, err = loadItems(ctx, t.tx, id)
	return order, err
}

func (t *txRepository) UpdateItemReceived(ctx context.Context, itemID int64, received float64, status ItemStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_qty=$2, status=$3 WHERE id=$1`,
		itemID, received, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertCredits(ctx context.Context, orderID int64, credits []PendingCredit) error {
	for _, c := range credits {
		_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_credits
(purchase_order_id, raw_material_id, bucket, amount, applied, created_at)
VALUES ($1, $2, $3, $4, FALSE, NOW())`,
			orderID, c.MaterialID, string(c.Bucket), c.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) SetOrderStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var number int64
	var status, total string
	var createdAt, updatedAt time.Time
	err := row.Scan(&o.ID, &number, &o.VendorName, &o.OrderDate, &status, &total, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Number = uint64(number)
	o.Status = Status(status)
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return Order{}, err
	}
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
