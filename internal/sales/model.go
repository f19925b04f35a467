// Package sales implements the sales-document lifecycle: quotations, delivery notes and invoices,
// the cashier gate, annulment, and the stock effects of each transition.
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of a sales document.
type Status string

const (
	StatusDraft         Status = "DRAFT"           // Editable, not yet reviewed
	StatusSentToCashier Status = "SENT_TO_CASHIER" // Waiting in the cashier queue
	StatusInvoiced      Status = "INVOICED"        // Finalized invoice
	StatusIssued        Status = "ISSUED"          // Finalized quotation or delivery note
	StatusAnnulled      Status = "ANNULLED"        // Reversed
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSentToCashier, StatusInvoiced, StatusIssued, StatusAnnulled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the document has been finalized and not annulled.
func (s Status) IsFinal() bool {
	return s == StatusInvoiced || s == StatusIssued
}

// PaymentMethod is how the customer settles the document.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
	PaymentCredit   PaymentMethod = "CREDIT"
)

// IsValid checks if the payment method is valid.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentCard, PaymentCredit:
		return true
	default:
		return false
	}
}

// Document is a quotation, delivery note or invoice.
type Document struct {
	ID                      int64           `json:"id"`
	Type                    DocumentType    `json:"type"`
	Number                  string          `json:"number,omitempty"`
	CustomerID              int64           `json:"customer_id"`
	SalespersonID           int64           `json:"salesperson_id"`
	Subtotal                decimal.Decimal `json:"subtotal"`
	DiscountValue           decimal.Decimal `json:"discount_value"`
	Tax                     decimal.Decimal `json:"tax"`
	Total                   decimal.Decimal `json:"total"`
	CashReceived            decimal.Decimal `json:"cash_received"`
	Change                  decimal.Decimal `json:"change"`
	PaymentMethod           PaymentMethod   `json:"payment_method"`
	Status                  Status          `json:"status"`
	InventoryAlreadyApplied bool            `json:"inventory_already_applied"`
	OriginDocumentID        *int64          `json:"origin_document_id,omitempty"`
	Notes                   string          `json:"notes,omitempty"`
	CreatedBy               int64           `json:"created_by"`
	CreatedAt               time.Time       `json:"created_at"`
	SentToCashierBy         *int64          `json:"sent_to_cashier_by,omitempty"`
	SentToCashierAt         *time.Time      `json:"sent_to_cashier_at,omitempty"`
	FinalizedBy             *int64          `json:"finalized_by,omitempty"`
	FinalizedAt             *time.Time      `json:"finalized_at,omitempty"`
	AnnulledBy              *int64          `json:"annulled_by,omitempty"`
	AnnulledAt              *time.Time      `json:"annulled_at,omitempty"`
	UpdatedAt               time.Time       `json:"updated_at"`
	Lines                   []Line          `json:"lines"`
}

// Line is one item of a document.
type Line struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	LineNo           int             `json:"line_no"`
	ProductID        int64           `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	UnitDiscount     decimal.Decimal `json:"unit_discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Total            decimal.Decimal `json:"total"`
	AffectsInventory bool            `json:"affects_inventory"`
}

// HasHandoff reports whether the cashier hand-off was recorded.
func (d Document) HasHandoff() bool {
	return d.SentToCashierBy != nil && d.SentToCashierAt != nil
}

// HasFinalizedProvenance reports whether a finalized document carries everything a finalize
// records. Invoices must also name who finalized them.
func (d Document) HasFinalizedProvenance() bool {
	if d.Number == "" || d.FinalizedAt == nil {
		return false
	}
	if d.Type == TypeInvoice && d.FinalizedBy == nil {
		return false
	}
	return true
}

// StockApplied reports whether finalizing this document moved stock through the ledger.
func (d Document) StockApplied() bool {
	tr, ok := d.Type.Traits()
	return ok && tr.AffectsInventory && d.Status.IsFinal() && !d.InventoryAlreadyApplied
}

// clone copies d with its own lines slice.
func (d Document) clone() Document {
	d.Lines = append([]Line(nil), d.Lines...)
	return d
}

// AnnulmentReason classifies why a document was annulled.
type AnnulmentReason string

const (
	ReasonPartialReturn AnnulmentReason = "PARTIAL_RETURN"
	ReasonFullReturn    AnnulmentReason = "FULL_RETURN"
	ReasonPriceError    AnnulmentReason = "PRICE_ERROR"
	ReasonConceptError  AnnulmentReason = "CONCEPT_ERROR"
	ReasonBuyerRejected AnnulmentReason = "BUYER_REJECTED"
	ReasonOther         AnnulmentReason = "OTHER"
)

// IsValid checks if the reason is valid.
func (r AnnulmentReason) IsValid() bool {
	switch r {
	case ReasonPartialReturn, ReasonFullReturn, ReasonPriceError, ReasonConceptError, ReasonBuyerRejected, ReasonOther:
		return true
	default:
		return false
	}
}

// AnnulmentRecord is the one-to-one record of a document's annulment.
type AnnulmentRecord struct {
	ID                int64           `json:"id"`
	DocumentID        int64           `json:"document_id"`
	Reason            AnnulmentReason `json:"reason"`
	Description       string          `json:"description"`
	ActorID           int64           `json:"actor_id"`
	RestoresInventory bool            `json:"restores_inventory"`
	CreatedAt         time.Time       `json:"created_at"`
}
