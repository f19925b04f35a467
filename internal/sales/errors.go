package sales

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Domain errors for sales documents.
var (
	ErrNotFound  = fmt.Errorf("sales: document %w", shared.ErrNotFound)
	ErrForbidden = fmt.Errorf("sales: cashier authority required: %w", shared.ErrForbidden)

	// State errors.
	ErrInvalidState       = errors.New("sales: invalid state for operation")
	ErrAlreadyFinalized   = errors.New("sales: document already finalized")
	ErrAlreadyAnnulled    = errors.New("sales: document already annulled")
	ErrMissingHandoff     = errors.New("sales: document was not handed to the cashier")
	ErrInconsistentState  = errors.New("sales: finalized document is missing provenance")
	ErrAlreadyConverted   = errors.New("sales: delivery note already invoiced")
	ErrInsufficientStock  = inventory.ErrInsufficientStock
	ErrTotalsMismatch     = errors.New("sales: stated totals do not match line items")
	ErrEmptyDocument      = errors.New("sales: document has no line items")
	ErrValidation         = errors.New("sales: validation failed")
	ErrUnknownType        = fmt.Errorf("%w: unknown document type", ErrValidation)
	ErrInvalidLine        = fmt.Errorf("%w: invalid line item", ErrValidation)
	ErrInvalidAnnulReason = fmt.Errorf("%w: unknown annulment reason", ErrValidation)
)

// StateError reports an operation attempted from a status that does not allow it.
type StateError struct {
	DocumentID int64
	Status     Status
	Operation  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s document %d in status %s", ErrInvalidState, e.Operation, e.DocumentID, e.Status)
}

// Is matches ErrInvalidState.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// AlreadyFinalizedError carries the status and number of the finalized document.
type AlreadyFinalizedError struct {
	DocumentID int64
	Status     Status
	Number     string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("%s: document %d is %s as %s", ErrAlreadyFinalized, e.DocumentID, e.Status, e.Number)
}

// Is matches ErrAlreadyFinalized.
func (e *AlreadyFinalizedError) Is(target error) bool {
	return target == ErrAlreadyFinalized
}

// TotalsMismatchError carries the stated and computed figures.
type TotalsMismatchError struct {
	StatedSubtotal   decimal.Decimal
	ComputedSubtotal decimal.Decimal
	StatedTotal      decimal.Decimal
	ComputedTotal    decimal.Decimal
}

func (e *TotalsMismatchError) Error() string {
	return fmt.Sprintf("%s: subtotal stated %s computed %s, total stated %s computed %s", ErrTotalsMismatch,
		e.StatedSubtotal.StringFixed(2), e.ComputedSubtotal.StringFixed(2),
		e.StatedTotal.StringFixed(2), e.ComputedTotal.StringFixed(2))
}

// Is matches ErrTotalsMismatch.
func (e *TotalsMismatchError) Is(target error) bool {
	return target == ErrTotalsMismatch
}

func stateError(d Document, op string) error {
	return &StateError{DocumentID: d.ID, Status: d.Status, Operation: op}
}
