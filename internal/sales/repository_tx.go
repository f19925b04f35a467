package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

// LockDocument takes the row lock before anything else in the unit of work reads state.
func (t *txRepository) LockDocument(ctx context.Context, id int64) (Document, error) {
	d, err := scanDocument(t.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM sales_documents d WHERE d.id = $1 FOR UPDATE`, id))
	if err != nil {
		return Document{}, err
	}
	d.Lines, err = loadLines(ctx, t.tx, id)
	return d, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InsertDocument inserts the header and lines and fills in the generated ids.
func (t *txRepository) InsertDocument(ctx context.Context, d *Document) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_documents (
	doc_type, number, customer_id, salesperson_id, subtotal, discount_value, tax, total,
	cash_received, change_due, payment_method, status, inventory_already_applied, origin_document_id,
	notes, created_by, created_at, finalized_by, finalized_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING id`,
		d.Type, nullable(d.Number), d.CustomerID, d.SalespersonID, d.Subtotal, d.DiscountValue, d.Tax, d.Total,
		d.CashReceived, d.Change, d.PaymentMethod, d.Status, d.InventoryAlreadyApplied, d.OriginDocumentID,
		d.Notes, d.CreatedBy, d.CreatedAt, d.FinalizedBy, d.FinalizedAt, d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		return err
	}
	return t.insertLines(ctx, d.ID, d.Lines)
}

func (t *txRepository) insertLines(ctx context.Context, documentID int64, lines []Line) error {
	for i := range lines {
		l := &lines[i]
		l.DocumentID = documentID
		err := t.tx.QueryRow(ctx, `INSERT INTO sales_document_lines (
	document_id, line_no, product_id, quantity, unit_price, unit_discount, tax_rate, subtotal, total, affects_inventory
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
			documentID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.UnitDiscount, l.TaxRate, l.Subtotal, l.Total, l.AffectsInventory,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

// UpdateDocument writes every mutable header column.
func (t *txRepository) UpdateDocument(ctx context.Context, d Document) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_documents SET
	number = $2, customer_id = $3, salesperson_id = $4, subtotal = $5, discount_value = $6, tax = $7,
	total = $8, cash_received = $9, change_due = $10, payment_method = $11, status = $12, notes = $13,
	sent_to_cashier_by = $14, sent_to_cashier_at = $15, finalized_by = $16, finalized_at = $17,
	annulled_by = $18, annulled_at = $19, updated_at = $20
WHERE id = $1`,
		d.ID, nullable(d.Number), d.CustomerID, d.SalespersonID, d.Subtotal, d.DiscountValue, d.Tax,
		d.Total, d.CashReceived, d.Change, d.PaymentMethod, d.Status, d.Notes,
		d.SentToCashierBy, d.SentToCashierAt, d.FinalizedBy, d.FinalizedAt,
		d.AnnulledBy, d.AnnulledAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLines swaps the line set of a draft.
func (t *txRepository) ReplaceLines(ctx context.Context, documentID int64, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sales_document_lines WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	return t.insertLines(ctx, documentID, lines)
}

func (t *txRepository) InsertAnnulment(ctx context.Context, rec AnnulmentRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_annulments (document_id, reason, description, actor_id, restores_inventory, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, rec.DocumentID, rec.Reason, rec.Description, rec.ActorID, rec.RestoresInventory, rec.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) ActiveInvoiceFor(ctx context.Context, originID int64) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM sales_documents
WHERE origin_document_id = $1 AND status <> 'ANNULLED'
ORDER BY id
LIMIT 1`, originID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
