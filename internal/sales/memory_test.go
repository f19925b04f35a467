package sales_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// memoryRepo serializes transactions with one mutex, standing in for row locks, and rolls back
// documents and stock together when fn fails.
type memoryRepo struct {
	mu         sync.Mutex
	docs       map[int64]sales.Document
	annulments []sales.AnnulmentRecord
	nextID     int64
	stock      *inventorytest.Store
	events     []string
	failures   []error
	attempts   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: make(map[int64]sales.Document), stock: inventorytest.NewStore()}
}

func cloneDoc(d sales.Document) sales.Document {
	d.Lines = append([]sales.Line(nil), d.Lines...)
	return d
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if len(r.failures) > 0 {
		err := r.failures[0]
		r.failures = r.failures[1:]
		return db.Classify(err)
	}

	docs := make(map[int64]sales.Document, len(r.docs))
	for id, d := range r.docs {
		docs[id] = cloneDoc(d)
	}
	annulments, nextID := len(r.annulments), r.nextID
	stock := r.stock.Snapshot()

	if err := fn(context.WithoutCancel(ctx), &memoryTx{repo: r}); err != nil {
		r.docs = docs
		r.annulments = r.annulments[:annulments]
		r.nextID = nextID
		r.stock.Restore(stock)
		return db.Classify(err)
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (sales.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return sales.Document{}, sales.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (r *memoryRepo) List(_ context.Context, filter sales.ListFilter) ([]sales.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sales.Document
	for _, d := range r.docs {
		if filter.Type != "" && d.Type != filter.Type {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.CustomerID != 0 && d.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, cloneDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

func (r *memoryRepo) ListPendingDeliveryNotes(_ context.Context, pg, perPage int) ([]sales.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sales.Document
	for _, d := range r.docs {
		if d.Type != sales.TypeDeliveryNote || d.Status != sales.StatusIssued {
			continue
		}
		if _, ok := r.activeInvoiceFor(d.ID); ok {
			continue
		}
		out = append(out, cloneDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, pg, perPage), len(out), nil
}

func page(docs []sales.Document, pg, perPage int) []sales.Document {
	pg, perPage = shared.NormalizePage(pg, perPage)
	start := (pg - 1) * perPage
	if start >= len(docs) {
		return []sales.Document{}
	}
	end := start + perPage
	if end > len(docs) {
		end = len(docs)
	}
	return docs[start:end]
}

func (r *memoryRepo) activeInvoiceFor(originID int64) (int64, bool) {
	for _, d := range r.docs {
		if d.OriginDocumentID != nil && *d.OriginDocumentID == originID && d.Status != sales.StatusAnnulled {
			return d.ID, true
		}
	}
	return 0, false
}

// mutate edits a stored document outside any transaction.
func (r *memoryRepo) mutate(id int64, fn func(*sales.Document)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[id]
	fn(&d)
	r.docs[id] = d
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func (r *memoryRepo) annulmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.annulments)
}

func (r *memoryRepo) resetEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *memoryRepo) eventLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Stock() inventory.TxRepository {
	return recordingStock{TxRepository: t.repo.stock, repo: t.repo}
}

func (t *memoryTx) LockDocument(_ context.Context, id int64) (sales.Document, error) {
	d, ok := t.repo.docs[id]
	if !ok {
		return sales.Document{}, sales.ErrNotFound
	}
	t.repo.events = append(t.repo.events, fmt.Sprintf("document:%d", id))
	return cloneDoc(d), nil
}

// checkProducts mirrors the foreign key from lines to products.
func (t *memoryTx) checkProducts(lines []sales.Line) error {
	for _, l := range lines {
		if _, ok := t.repo.stock.Product(l.ProductID); !ok {
			return &pgconn.PgError{Code: db.CodeForeignKeyViolation, ConstraintName: "sales_document_lines_product_id_fkey"}
		}
	}
	return nil
}

func (t *memoryTx) InsertDocument(_ context.Context, d *sales.Document) error {
	if err := t.checkProducts(d.Lines); err != nil {
		return err
	}
	t.repo.nextID++
	d.ID = t.repo.nextID
	for i := range d.Lines {
		d.Lines[i].ID = int64(i + 1)
		d.Lines[i].DocumentID = d.ID
	}
	t.repo.docs[d.ID] = cloneDoc(*d)
	return nil
}

func (t *memoryTx) UpdateDocument(_ context.Context, d sales.Document) error {
	stored, ok := t.repo.docs[d.ID]
	if !ok {
		return sales.ErrNotFound
	}
	d.Lines = stored.Lines
	t.repo.docs[d.ID] = cloneDoc(d)
	return nil
}

func (t *memoryTx) ReplaceLines(_ context.Context, documentID int64, lines []sales.Line) error {
	d, ok := t.repo.docs[documentID]
	if !ok {
		return sales.ErrNotFound
	}
	if err := t.checkProducts(lines); err != nil {
		return err
	}
	d.Lines = append([]sales.Line(nil), lines...)
	t.repo.docs[documentID] = d
	return nil
}

func (t *memoryTx) InsertAnnulment(_ context.Context, rec sales.AnnulmentRecord) (int64, error) {
	for _, a := range t.repo.annulments {
		if a.DocumentID == rec.DocumentID {
			return 0, fmt.Errorf("annulment for document %d exists", rec.DocumentID)
		}
	}
	rec.ID = int64(len(t.repo.annulments) + 1)
	t.repo.annulments = append(t.repo.annulments, rec)
	return rec.ID, nil
}

func (t *memoryTx) ActiveInvoiceFor(_ context.Context, originID int64) (int64, bool, error) {
	id, ok := t.repo.activeInvoiceFor(originID)
	return id, ok, nil
}

type recordingStock struct {
	inventory.TxRepository
	repo *memoryRepo
}

func (s recordingStock) LockProduct(ctx context.Context, id int64) (inventory.Product, error) {
	s.repo.events = append(s.repo.events, fmt.Sprintf("product:%d", id))
	return s.TxRepository.LockProduct(ctx, id)
}

type memorySequencer struct {
	mu     sync.Mutex
	issued map[string]int64
}

func newMemorySequencer() *memorySequencer {
	return &memorySequencer{issued: make(map[string]int64)}
}

func (s *memorySequencer) Next(_ context.Context, docType sales.DocumentType, at time.Time) (string, error) {
	tr, ok := docType.Traits()
	if !ok {
		return "", sales.ErrUnknownType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(docType) + at.UTC().Format("200601")
	n := tr.SequenceBase + s.issued[key]
	s.issued[key]++
	return sales.FormatNumber(tr.Prefix, at, n), nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}
