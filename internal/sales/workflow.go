package sales

import (
	"context"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type finalizePath int

const (
	pathDirect finalizePath = iota
	pathQueue
)

// Finalize invoices a document straight from DRAFT or SENT_TO_CASHIER.
func (s *Service) Finalize(ctx context.Context, id int64, p shared.Principal) (Document, error) {
	return s.finalize(ctx, id, p, pathDirect)
}

// FinalizeFromQueue invoices a document the cashier picked from the queue. The document must be
// SENT_TO_CASHIER with its hand-off recorded.
func (s *Service) FinalizeFromQueue(ctx context.Context, id int64, p shared.Principal) (Document, error) {
	return s.finalize(ctx, id, p, pathQueue)
}

// finalize locks the document, then every referenced product in ascending id order, and commits
// the status change, number and stock movements in one transaction.
func (s *Service) finalize(ctx context.Context, id int64, p shared.Principal, path finalizePath) (Document, error) {
	if p.IsZero() {
		return Document{}, shared.ErrUnauthenticated
	}
	if !p.CashierAuthority {
		return Document{}, ErrForbidden
	}
	action := "finalize"
	if path == pathQueue {
		action = "finalize_from_queue"
	}
	reqCtx := ctx
	var before Status
	doc, err := s.transition(ctx, id, action, func(ctx context.Context, tx TxRepository, d *Document) error {
		before = d.Status
		if err := checkFinalizable(*d, path); err != nil {
			return err
		}
		if err := Reconcile(*d); err != nil {
			return err
		}
		tr, _ := d.Type.Traits()
		now := s.now()
		d.Status = tr.FinalStatus
		d.FinalizedBy = &p.UserID
		d.FinalizedAt = &now
		d.UpdatedAt = now
		if d.Number == "" {
			number, err := s.allocateNumber(reqCtx, d.Type, now)
			if err != nil {
				return err
			}
			d.Number = number
		}
		if err := s.moveStock(ctx, tx, *d, p.UserID, inventory.MovementSale); err != nil {
			return err
		}
		return tx.UpdateDocument(ctx, *d)
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, p, "sales."+action, doc, before, nil)
	return doc, nil
}

func checkFinalizable(d Document, path finalizePath) error {
	switch {
	case d.Status.IsFinal():
		return &AlreadyFinalizedError{DocumentID: d.ID, Status: d.Status, Number: d.Number}
	case d.Status == StatusAnnulled:
		return stateError(d, "finalize")
	}
	if path == pathQueue {
		if d.Status != StatusSentToCashier {
			return stateError(d, "finalize from queue")
		}
		if !d.HasHandoff() {
			return ErrMissingHandoff
		}
		return nil
	}
	if d.Status != StatusDraft && d.Status != StatusSentToCashier {
		return stateError(d, "finalize")
	}
	return nil
}
