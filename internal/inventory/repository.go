package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes the row-level operations the ledger needs inside a transaction.
type TxRepository interface {
	LockProduct(ctx context.Context, productID int64) (Product, error)
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
	UpdateStock(ctx context.Context, productID int64, qty, unitCost decimal.Decimal) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txOpts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: txOpts}
}

// NewTxRepository binds the ledger operations to a transaction owned by another module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txOpts, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const productColumns = `id, code, name, quantity_on_hand, reorder_threshold, unit_cost, is_active, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.QuantityOnHand, &p.ReorderThreshold, &p.UnitCost, &p.IsActive, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// GetProduct loads a product without locking.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// ListMovements returns movement history newest first with the total count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	where := `WHERE ($1 = 0 OR product_id = $1) AND ($2 = 0 OR document_id = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements `+where, filter.ProductID, filter.DocumentID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, delta, quantity_before, quantity_after, unit_cost, actor_id, reference, document_id, created_at
FROM stock_movements `+where+`
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, filter.ProductID, filter.DocumentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.Kind, &mv.Delta, &mv.QuantityBefore, &mv.QuantityAfter, &mv.UnitCost, &mv.ActorID, &mv.Reference, &mv.DocumentID, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, mv)
	}
	return movements, total, rows.Err()
}

// ListLowStock returns active products at or below their reorder threshold.
func (r *Repository) ListLowStock(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+`
FROM products
WHERE is_active AND quantity_on_hand <= reorder_threshold
ORDER BY quantity_on_hand - reorder_threshold ASC, id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (t *txRepository) LockProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, productID))
}

func (t *txRepository) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, kind, delta, quantity_before, quantity_after, unit_cost, actor_id, reference, document_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`, mv.ProductID, mv.Kind, mv.Delta, mv.QuantityBefore, mv.QuantityAfter, mv.UnitCost, mv.ActorID, mv.Reference, mv.DocumentID, mv.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateStock(ctx context.Context, productID int64, qty, unitCost decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET quantity_on_hand=$2, unit_cost=$3, updated_at=NOW() WHERE id=$1`, productID, qty, unitCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return nil
}
