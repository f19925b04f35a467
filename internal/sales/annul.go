package sales

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Annul reverses a document from any status but ANNULLED. Stock is restored only when asked to
// and only when this document's own finalize deducted it.
func (s *Service) Annul(ctx context.Context, id int64, in AnnulInput, p shared.Principal) (Document, AnnulmentRecord, error) {
	if p.IsZero() {
		return Document{}, AnnulmentRecord{}, shared.ErrUnauthenticated
	}
	if !in.Reason.IsValid() {
		return Document{}, AnnulmentRecord{}, fmt.Errorf("%w %q", ErrInvalidAnnulReason, in.Reason)
	}
	var (
		before Status
		record AnnulmentRecord
	)
	doc, err := s.transition(ctx, id, "annul", func(ctx context.Context, tx TxRepository, d *Document) error {
		before = d.Status
		if d.Status == StatusAnnulled {
			return ErrAlreadyAnnulled
		}
		if d.Status.IsFinal() && !d.HasFinalizedProvenance() {
			return fmt.Errorf("%w: document %d", ErrInconsistentState, d.ID)
		}
		if d.Type == TypeDeliveryNote {
			invoiceID, exists, err := tx.ActiveInvoiceFor(ctx, d.ID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: annul invoice %d first", ErrAlreadyConverted, invoiceID)
			}
		}

		restores := in.RestoreInventory && d.StockApplied()
		now := s.now()
		record = AnnulmentRecord{
			DocumentID:        d.ID,
			Reason:            in.Reason,
			Description:       in.Description,
			ActorID:           p.UserID,
			RestoresInventory: restores,
			CreatedAt:         now,
		}
		recID, err := tx.InsertAnnulment(ctx, record)
		if err != nil {
			return fmt.Errorf("sales: insert annulment: %w", err)
		}
		record.ID = recID

		if restores {
			if err := s.moveStock(ctx, tx, *d, p.UserID, inventory.MovementReturn); err != nil {
				return err
			}
		}
		d.Status = StatusAnnulled
		d.AnnulledBy = &p.UserID
		d.AnnulledAt = &now
		d.UpdatedAt = now
		return tx.UpdateDocument(ctx, *d)
	})
	if err != nil {
		return Document{}, AnnulmentRecord{}, err
	}
	s.record(ctx, p, "sales.annul", doc, before, map[string]any{
		"reason":             record.Reason,
		"restores_inventory": record.RestoresInventory,
	})
	return doc, record, nil
}
