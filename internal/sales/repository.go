package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists sales documents in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txOpts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: txOpts}
}

// WithTx executes fn inside a repeatable-read transaction with the configured lock timeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txOpts, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const documentColumns = `d.id, d.doc_type, COALESCE(d.number, ''), d.customer_id, d.salesperson_id,
	d.subtotal, d.discount_value, d.tax, d.total, d.cash_received, d.change_due, d.payment_method,
	d.status, d.inventory_already_applied, d.origin_document_id, d.notes,
	d.created_by, d.created_at, d.sent_to_cashier_by, d.sent_to_cashier_at,
	d.finalized_by, d.finalized_at, d.annulled_by, d.annulled_at, d.updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Type, &d.Number, &d.CustomerID, &d.SalespersonID,
		&d.Subtotal, &d.DiscountValue, &d.Tax, &d.Total, &d.CashReceived, &d.Change, &d.PaymentMethod,
		&d.Status, &d.InventoryAlreadyApplied, &d.OriginDocumentID, &d.Notes,
		&d.CreatedBy, &d.CreatedAt, &d.SentToCashierBy, &d.SentToCashierAt,
		&d.FinalizedBy, &d.FinalizedAt, &d.AnnulledBy, &d.AnnulledAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, line_no, product_id, quantity, unit_price, unit_discount,
	tax_rate, subtotal, total, affects_inventory
FROM sales_document_lines
WHERE document_id = $1
ORDER BY line_no`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.UnitDiscount,
			&l.TaxRate, &l.Subtotal, &l.Total, &l.AffectsInventory); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads a document and its lines without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM sales_documents d WHERE d.id = $1`, id))
	if err != nil {
		return Document{}, err
	}
	d.Lines, err = loadLines(ctx, r.pool, id)
	return d, err
}

// List returns headers newest first; lines are not loaded.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := `WHERE ($1 = '' OR d.doc_type = $1) AND ($2 = '' OR d.status = $2) AND ($3 = 0 OR d.customer_id = $3)`
	args := []any{string(filter.Type), string(filter.Status), filter.CustomerID}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_documents d `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	docs, err := r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM sales_documents d `+where+`
ORDER BY d.created_at DESC, d.id DESC
LIMIT $4 OFFSET $5`, append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)...)
	return docs, total, err
}

const pendingDeliveryNotes = `FROM sales_documents d
WHERE d.doc_type = 'DELIVERY_NOTE' AND d.status = 'ISSUED'
  AND NOT EXISTS (
	SELECT 1 FROM sales_documents i
	WHERE i.origin_document_id = d.id AND i.status <> 'ANNULLED'
  )`

// ListPendingDeliveryNotes returns issued delivery notes without an active invoice.
func (r *Repository) ListPendingDeliveryNotes(ctx context.Context, page, perPage int) ([]Document, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+pendingDeliveryNotes).Scan(&total); err != nil {
		return nil, 0, err
	}
	docs, err := r.queryDocuments(ctx, `SELECT `+documentColumns+` `+pendingDeliveryNotes+`
ORDER BY d.created_at ASC, d.id ASC
LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	return docs, total, err
}

func (r *Repository) queryDocuments(ctx context.Context, sql string, args ...any) ([]Document, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
