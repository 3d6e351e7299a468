package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists finished goods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const finishedGoodColumns = `id, model, type, ratio, power, shaft_diameter, frame_size, rate_per_unit::text, base_price::text, units, created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id int64) (FinishedGood, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+finishedGoodColumns+` FROM finished_goods WHERE id=$1`, id)
	fg, err := scanFinishedGood(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FinishedGood{}, ErrNotFound
		}
		return FinishedGood{}, err
	}
	fg.BOM, err = r.loadBOM(ctx, fg.ID)
	return fg, err
}

func (r *Repository) GetBySpec(ctx context.Context, spec Spec) (FinishedGood, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+finishedGoodColumns+` FROM finished_goods
WHERE model=$1 AND type=$2 AND ratio=$3 AND power=$4`, spec.Model, spec.Type, spec.Ratio, spec.Power)
	fg, err := scanFinishedGood(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FinishedGood{}, ErrNotFound
		}
		return FinishedGood{}, err
	}
	fg.BOM, err = r.loadBOM(ctx, fg.ID)
	return fg, err
}

func (r *Repository) Create(ctx context.Context, fg FinishedGood) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO finished_goods
(model, type, ratio, power, shaft_diameter, frame_size, rate_per_unit, base_price, units, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, NOW(), NOW())
RETURNING id`,
		fg.Model, fg.Type, fg.Ratio, fg.Power, fg.ShaftDiameter, fg.FrameSize,
		fg.RatePerUnit.String(), fg.BasePrice.String(), fg.Units).Scan(&id)
	return id, err
}

// ReplaceBOM swaps the full bill of materials for a finished good.
func (r *Repository) ReplaceBOM(ctx context.Context, fgID int64, lines []BOMLine) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM finished_good_bom WHERE finished_good_id=$1`, fgID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO finished_good_bom (finished_good_id, raw_material_id, qty_per_unit) VALUES ($1, $2, $3)`,
			fgID, line.MaterialID, line.QtyPerUnit); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE finished_goods SET updated_at=NOW() WHERE id=$1`, fgID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IncrementUnits adds one completed batch to available stock.
func (r *Repository) IncrementUnits(ctx context.Context, fgID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE finished_goods SET units = units + 1, updated_at=NOW() WHERE id=$1`, fgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]FinishedGood, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+finishedGoodColumns+` FROM finished_goods
WHERE ($1 = '' OR model = $1)
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR ratio = $3)
  AND ($4 = '' OR power = $4)
ORDER BY model, ratio, power
LIMIT $5 OFFSET $6`, filter.Model, filter.Type, filter.Ratio, filter.Power, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	goods := []FinishedGood{}
	for rows.Next() {
		fg, err := scanFinishedGood(rows)
		if err != nil {
			return nil, err
		}
		goods = append(goods, fg)
	}
	return goods, rows.Err()
}

func (r *Repository) loadBOM(ctx context.Context, fgID int64) ([]BOMLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT raw_material_id, qty_per_unit FROM finished_good_bom WHERE finished_good_id=$1 ORDER BY id`, fgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BOMLine
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.MaterialID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanFinishedGood(row pgx.Row) (FinishedGood, error) {
	var fg FinishedGood
	var rate, base string
	var createdAt, updatedAt time.Time
	err := row.Scan(&fg.ID, &fg.Model, &fg.Type, &fg.Ratio, &fg.Power, &fg.ShaftDiameter, &fg.FrameSize,
		&rate, &base, &fg.Units, &createdAt, &updatedAt)
	if err != nil {
		return FinishedGood{}, err
	}
	if fg.RatePerUnit, err = decimal.NewFromString(rate); err != nil {
		return FinishedGood{}, err
	}
	if fg.BasePrice, err = decimal.NewFromString(base); err != nil {
		return FinishedGood{}, err
	}
	fg.CreatedAt = createdAt
	fg.UpdatedAt = updatedAt
	return fg, nil
}
