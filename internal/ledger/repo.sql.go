package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists raw materials in PostgreSQL. Stock is stored as a
// JSONB column holding either a bare number (scalar classes) or a
// bucket object (class B).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetMaterialForUpdate(ctx context.Context, id int64) (Material, error)
	UpdateQuantity(ctx context.Context, id int64, qty Quantity, updatedAt time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

const materialColumns = `id, class, name, type, min_quantity, quantity, created_at, updated_at`

// CreateMaterial registers a new raw material with its opening stock.
func (r *Repository) CreateMaterial(ctx context.Context, m Material) (Material, error) {
	data, err := json.Marshal(m.Quantity)
	if err != nil {
		return Material{}, err
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO raw_materials (class, name, type, min_quantity, quantity)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`, string(m.Class), m.Name, m.Type, m.MinQuantity, data)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Material{}, err
	}
	return m, nil
}

// GetMaterial loads one material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE id=$1`, id)
	return scanMaterial(row)
}

// ListMaterials returns materials, optionally restricted to a class.
func (r *Repository) ListMaterials(ctx context.Context, class Class, limit, offset int) ([]Material, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM raw_materials
WHERE ($1 = '' OR class = $1)
ORDER BY id
LIMIT $2 OFFSET $3`, string(class), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	materials := []Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (t *txRepository) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE id=$1 FOR UPDATE`, id)
	return scanMaterial(row)
}

func (t *txRepository) UpdateQuantity(ctx context.Context, id int64, qty Quantity, updatedAt time.Time) error {
	data, err := json.Marshal(qty)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE raw_materials SET quantity=$2, updated_at=$3 WHERE id=$1`, id, data, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	var class string
	var qty []byte
	err := row.Scan(&m.ID, &class, &m.Name, &m.Type, &m.MinQuantity, &qty, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, err
	}
	m.Class = Class(class)
	if err := json.Unmarshal(qty, &m.Quantity); err != nil {
		return Material{}, err
	}
	return m, nil
}
