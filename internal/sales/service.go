package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListPendingDeliveryNotes(ctx context.Context, page, perPage int) ([]Document, int, error)
}

// TxRepository exposes the operations available inside a document transaction.
type TxRepository interface {
	// Stock binds the inventory ledger to the same transaction.
	Stock() inventory.TxRepository
	// LockDocument loads the document and its lines with SELECT ... FOR UPDATE.
	LockDocument(ctx context.Context, id int64) (Document, error)
	InsertDocument(ctx context.Context, d *Document) error
	UpdateDocument(ctx context.Context, d Document) error
	ReplaceLines(ctx context.Context, documentID int64, lines []Line) error
	InsertAnnulment(ctx context.Context, rec AnnulmentRecord) (int64, error)
	// ActiveInvoiceFor returns the id of a non-annulled invoice converted from originID.
	ActiveInvoiceFor(ctx context.Context, originID int64) (int64, bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives one call per attempted transition.
type Observer interface {
	ObserveTransition(docType, action, outcome string)
}

// Service coordinates the document lifecycle.
type Service struct {
	repo     RepositoryPort
	seq      Sequencer
	ledger   *inventory.Ledger
	audit    AuditPort
	logger   *slog.Logger
	locker   *cache.Locker
	observer Observer
	retry    db.RetryPolicy
	numberTO time.Duration
	now      func() time.Time
}

// DefaultNumberTimeout bounds one number allocation when the request carries no earlier deadline.
const DefaultNumberTimeout = 3 * time.Second

// NewService builds Service.
func NewService(repo RepositoryPort, seq Sequencer, ledger *inventory.Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(decimal.Zero)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		seq:      seq,
		ledger:   ledger,
		audit:    audit,
		logger:   logger,
		retry:    db.DefaultRetryPolicy,
		numberTO: DefaultNumberTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLocker enables the cross-process document guard.
func (s *Service) SetLocker(l *cache.Locker) {
	s.locker = l
}

// SetObserver sets the transition metrics sink.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// SetRetryPolicy overrides the deadlock retry policy.
func (s *Service) SetRetryPolicy(p db.RetryPolicy) {
	s.retry = p
}

// SetNumberTimeout overrides how long a number allocation may wait.
func (s *Service) SetNumberTimeout(d time.Duration) {
	if d > 0 {
		s.numberTO = d
	}
}

// allocateNumber asks the sequencer under reqCtx, the caller's context, never the detached
// transaction context. A timeout or cancellation surfaces as db.ErrRetryable.
func (s *Service) allocateNumber(reqCtx context.Context, docType DocumentType, at time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(reqCtx, s.numberTO)
	defer cancel()
	number, err := s.seq.Next(ctx, docType, at)
	if err == nil {
		return number, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, db.ErrRetryable) {
		return "", fmt.Errorf("%w: sales: allocate number: %w", db.ErrRetryable, ctxErr)
	}
	return "", db.Classify(err)
}

// CreateDocument persists a new document. Invoices start as DRAFT; quotations and delivery notes
// are issued immediately, and delivery notes deduct stock in the same transaction.
func (s *Service) CreateDocument(ctx context.Context, in CreateInput, p shared.Principal) (Document, error) {
	if p.IsZero() {
		return Document{}, shared.ErrUnauthenticated
	}
	tr, ok := in.Type.Traits()
	if !ok {
		return Document{}, ErrUnknownType
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.IsValid() {
		return Document{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}
	lines, err := buildLines(in.Type, in.Lines)
	if err != nil {
		return Document{}, err
	}
	draft := documentFromInput(in, lines)
	if draft.SalespersonID == 0 {
		draft.SalespersonID = p.UserID
	}
	if err := validateMoney(map[string]decimal.Decimal{
		"subtotal": draft.Subtotal, "discount_value": draft.DiscountValue, "tax": draft.Tax,
		"total": draft.Total, "cash_received": draft.CashReceived, "change": draft.Change,
	}); err != nil {
		return Document{}, err
	}
	if err := Reconcile(draft); err != nil {
		s.observe(in.Type, "create", err)
		return Document{}, err
	}

	now := s.now()
	draft.CreatedBy = p.UserID
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if tr.NumberAtCreation {
		number, err := s.allocateNumber(ctx, in.Type, now)
		if err != nil {
			return Document{}, err
		}
		draft.Number = number
	}
	if !tr.CashierGate {
		draft.Status = tr.FinalStatus
		draft.FinalizedBy = &p.UserID
		draft.FinalizedAt = &now
	}

	var created Document
	err = s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		d := draft.clone()
		if err := tx.InsertDocument(ctx, &d); err != nil {
			return fmt.Errorf("sales: insert document: %w", productRefError(err))
		}
		if d.Status.IsFinal() {
			if err := s.moveStock(ctx, tx, d, p.UserID, inventory.MovementSale); err != nil {
				return err
			}
		}
		created = d
		return nil
	})
	s.observe(in.Type, "create", err)
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, p, "sales.create", created, "", map[string]any{"origin_document_id": created.OriginDocumentID})
	return created, nil
}

// productRefError reports a line that references a missing product as inventory.ErrProductNotFound.
func productRefError(err error) error {
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %w", inventory.ErrProductNotFound, err)
	}
	return err
}

// SendToCashier hands a draft to the cashier queue.
func (s *Service) SendToCashier(ctx context.Context, id int64, p shared.Principal) (Document, error) {
	if p.IsZero() {
		return Document{}, shared.ErrUnauthenticated
	}
	var before Status
	doc, err := s.transition(ctx, id, "send_to_cashier", func(ctx context.Context, tx TxRepository, d *Document) error {
		before = d.Status
		if d.Status != StatusDraft {
			return stateError(*d, "send to cashier")
		}
		if err := Reconcile(*d); err != nil {
			return err
		}
		now := s.now()
		d.Status = StatusSentToCashier
		d.SentToCashierBy = &p.UserID
		d.SentToCashierAt = &now
		d.UpdatedAt = now
		return tx.UpdateDocument(ctx, *d)
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, p, "sales.send_to_cashier", doc, before, nil)
	return doc, nil
}

// UpdateDocument edits a draft. While the document waits in the cashier queue a principal with
// cashier authority may still correct discount_value, total, payment_method, cash_received and
// change. The reconciler runs against the result of every edit.
func (s *Service) UpdateDocument(ctx context.Context, id int64, patch UpdateInput, p shared.Principal) (Document, error) {
	if p.IsZero() {
		return Document{}, shared.ErrUnauthenticated
	}
	var before Status
	doc, err := s.transition(ctx, id, "update", func(ctx context.Context, tx TxRepository, d *Document) error {
		before = d.Status
		switch {
		case d.Status == StatusDraft:
		case d.Status == StatusSentToCashier && p.CashierAuthority && !patch.touchesRestricted():
		default:
			return stateError(*d, "edit")
		}
		if err := applyUpdate(d, patch); err != nil {
			return err
		}
		if err := Reconcile(*d); err != nil {
			return err
		}
		d.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, *d); err != nil {
			return err
		}
		if patch.Lines != nil {
			return productRefError(tx.ReplaceLines(ctx, d.ID, d.Lines))
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, p, "sales.update", doc, before, nil)
	return doc, nil
}

// ConvertToInvoice creates a draft invoice from an issued delivery note. The stock already left
// with the delivery note, so the invoice never moves inventory.
func (s *Service) ConvertToInvoice(ctx context.Context, deliveryNoteID int64, p shared.Principal) (Document, error) {
	if p.IsZero() {
		return Document{}, shared.ErrUnauthenticated
	}
	release, err := s.guard(ctx, deliveryNoteID)
	if err != nil {
		return Document{}, err
	}
	defer release()

	var invoice Document
	err = s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.LockDocument(ctx, deliveryNoteID)
		if err != nil {
			return err
		}
		if note.Type != TypeDeliveryNote || note.Status != StatusIssued {
			return stateError(note, "convert to invoice")
		}
		if _, exists, err := tx.ActiveInvoiceFor(ctx, note.ID); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyConverted, note.Number)
		}

		now := s.now()
		origin := note.ID
		inv := Document{
			Type:                    TypeInvoice,
			CustomerID:              note.CustomerID,
			SalespersonID:           note.SalespersonID,
			Subtotal:                note.Subtotal,
			DiscountValue:           note.DiscountValue,
			Tax:                     note.Tax,
			Total:                   note.Total,
			CashReceived:            note.CashReceived,
			Change:                  note.Change,
			PaymentMethod:           note.PaymentMethod,
			Status:                  StatusDraft,
			InventoryAlreadyApplied: true,
			OriginDocumentID:        &origin,
			Notes:                   note.Notes,
			CreatedBy:               p.UserID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		for _, l := range note.Lines {
			l.ID = 0
			l.DocumentID = 0
			l.AffectsInventory = false
			inv.Lines = append(inv.Lines, l)
		}
		if err := Reconcile(inv); err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, &inv); err != nil {
			return fmt.Errorf("sales: insert invoice: %w", err)
		}
		invoice = inv
		return nil
	})
	s.observe(TypeDeliveryNote, "convert", err)
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, p, "sales.convert_to_invoice", invoice, "", map[string]any{"origin_document_id": deliveryNoteID})
	return invoice, nil
}

// GetDocument returns a document with its lines.
func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// ListDocuments lists documents newest first.
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, shared.Pagination{}, ErrUnknownType
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CashierQueue lists documents waiting for the cashier.
func (s *Service) CashierQueue(ctx context.Context, page, perPage int) ([]Document, shared.Pagination, error) {
	return s.ListDocuments(ctx, ListFilter{Status: StatusSentToCashier, Page: page, PerPage: perPage})
}

// ListPendingDeliveryNotes lists issued delivery notes that have not been invoiced.
func (s *Service) ListPendingDeliveryNotes(ctx context.Context, page, perPage int) ([]Document, shared.Pagination, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	docs, total, err := s.repo.ListPendingDeliveryNotes(ctx, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(page, perPage, total), nil
}

// transition runs fn against the locked document inside a retried transaction and returns the
// document as fn left it.
func (s *Service) transition(ctx context.Context, id int64, action string, fn func(context.Context, TxRepository, *Document) error) (Document, error) {
	release, err := s.guard(ctx, id)
	if err != nil {
		return Document{}, err
	}
	defer release()

	var (
		out     Document
		docType DocumentType
	)
	err = s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.LockDocument(ctx, id)
		if err != nil {
			return err
		}
		docType = d.Type
		if err := fn(ctx, tx, &d); err != nil {
			return err
		}
		out = d
		return nil
	})
	s.observe(docType, action, err)
	if err != nil {
		return Document{}, err
	}
	return out, nil
}

func (s *Service) run(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

// guard takes the Redis document lock when one is configured. A busy lock is retryable; an
// unreachable Redis is logged and ignored since row locks still serialize the work.
func (s *Service) guard(ctx context.Context, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, cache.DocumentLockKey(id))
	if errors.Is(err, cache.ErrLockBusy) {
		return nil, fmt.Errorf("%w: %w", db.ErrRetryable, err)
	}
	if err != nil {
		s.logger.Warn("sales document lock unavailable", slog.Int64("document_id", id), slog.Any("error", err))
		return func() {}, nil
	}
	return release, nil
}

// moveStock posts one movement per inventory-affecting line. kind selects the direction.
func (s *Service) moveStock(ctx context.Context, tx TxRepository, d Document, actorID int64, kind inventory.MovementKind) error {
	tr, _ := d.Type.Traits()
	if !tr.AffectsInventory || d.InventoryAlreadyApplied {
		return nil
	}
	docID := d.ID
	reqs := make([]inventory.MovementRequest, 0, len(d.Lines))
	for _, l := range d.Lines {
		if !l.AffectsInventory {
			continue
		}
		delta := l.Quantity
		if kind == inventory.MovementSale {
			delta = delta.Neg()
		}
		reqs = append(reqs, inventory.MovementRequest{
			ProductID:  l.ProductID,
			Kind:       kind,
			Delta:      delta,
			Reference:  d.Number,
			DocumentID: &docID,
		})
	}
	_, err := s.ledger.Apply(ctx, tx.Stock(), actorID, reqs)
	return err
}

func (s *Service) observe(docType DocumentType, action string, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveTransition(string(docType), action, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case db.IsRetryable(err):
		return "retryable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrTotalsMismatch), errors.Is(err, ErrEmptyDocument), errors.Is(err, ErrValidation):
		return "rejected"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrAlreadyAnnulled),
		errors.Is(err, ErrMissingHandoff), errors.Is(err, ErrAlreadyConverted), errors.Is(err, ErrInconsistentState):
		return "conflict"
	default:
		return "error"
	}
}

func (s *Service) record(ctx context.Context, p shared.Principal, action string, d Document, before Status, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["type"] = d.Type
	meta["number"] = d.Number
	meta["status_before"] = before
	meta["status_after"] = d.Status
	log := shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "sales_document",
		EntityID: strconv.FormatInt(d.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Warn("sales audit", slog.String("action", action), slog.Int64("document_id", d.ID), slog.Any("error", err))
	}
}
