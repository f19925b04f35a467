package workshop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists workshop data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txOpts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: txOpts}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("workshop repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txOpts, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, customer_id, mechanic_id, description, status, billed_document_id, created_by, created_at, billed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.MechanicID, &o.Description, &o.Status, &o.BilledDocumentID, &o.CreatedBy, &o.CreatedAt, &o.BilledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listConsumptions(ctx context.Context, q querier, orderID int64) ([]Consumption, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, tax_rate, source, movement_id, actor_id, created_at
FROM workshop_consumptions WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Consumption{}
	for rows.Next() {
		var c Consumption
		if err := rows.Scan(&c.ID, &c.OrderID, &c.ProductID, &c.Quantity, &c.UnitPrice, &c.TaxRate, &c.Source, &c.MovementID, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOrder loads an order without locking.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM workshop_orders WHERE id = $1`, id))
}

// ListConsumptions returns the parts recorded on an order in insertion order.
func (r *Repository) ListConsumptions(ctx context.Context, orderID int64) ([]Consumption, error) {
	return listConsumptions(ctx, r.pool, orderID)
}

// ListDrawer returns the non-empty drawer items of a mechanic.
func (r *Repository) ListDrawer(ctx context.Context, mechanicID int64) ([]DrawerItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT mechanic_id, product_id, quantity FROM mechanic_drawer_items
WHERE mechanic_id = $1 AND quantity > 0 ORDER BY product_id`, mechanicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DrawerItem{}
	for rows.Next() {
		var it DrawerItem
		if err := rows.Scan(&it.MechanicID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepository) InsertOrder(ctx context.Context, o *Order) error {
	return t.tx.QueryRow(ctx, `INSERT INTO workshop_orders (customer_id, mechanic_id, description, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		o.CustomerID, o.MechanicID, o.Description, o.Status, o.CreatedBy, o.CreatedAt).Scan(&o.ID)
}

func (t *txRepository) LockOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM workshop_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE workshop_orders SET status = $2, billed_document_id = $3, billed_at = $4 WHERE id = $1`,
		o.ID, o.Status, o.BilledDocumentID, o.BilledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockDrawerItem materializes the row first so concurrent callers queue on the same lock.
func (t *txRepository) LockDrawerItem(ctx context.Context, mechanicID, productID int64) (DrawerItem, error) {
	if _, err := t.tx.Exec(ctx, `INSERT INTO mechanic_drawer_items (mechanic_id, product_id, quantity)
VALUES ($1, $2, 0) ON CONFLICT (mechanic_id, product_id) DO NOTHING`, mechanicID, productID); err != nil {
		return DrawerItem{}, fmt.Errorf("workshop: ensure drawer item: %w", err)
	}
	item := DrawerItem{MechanicID: mechanicID, ProductID: productID, Quantity: decimal.Zero}
	err := t.tx.QueryRow(ctx, `SELECT quantity FROM mechanic_drawer_items
WHERE mechanic_id = $1 AND product_id = $2 FOR UPDATE`, mechanicID, productID).Scan(&item.Quantity)
	return item, err
}

func (t *txRepository) SaveDrawerItem(ctx context.Context, item DrawerItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE mechanic_drawer_items SET quantity = $3, updated_at = NOW()
WHERE mechanic_id = $1 AND product_id = $2`, item.MechanicID, item.ProductID, item.Quantity)
	return err
}

func (t *txRepository) InsertConsumption(ctx context.Context, c *Consumption) error {
	return t.tx.QueryRow(ctx, `INSERT INTO workshop_consumptions (order_id, product_id, quantity, unit_price, tax_rate, source, movement_id, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.OrderID, c.ProductID, c.Quantity, c.UnitPrice, c.TaxRate, c.Source, c.MovementID, c.ActorID, c.CreatedAt).Scan(&c.ID)
}

func (t *txRepository) ListConsumptions(ctx context.Context, orderID int64) ([]Consumption, error) {
	return listConsumptions(ctx, t.tx, orderID)
}
