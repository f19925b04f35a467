package sales

import "github.com/shopspring/decimal"

// CreateInput describes a new document.
type CreateInput struct {
	Type          DocumentType    `json:"type" validate:"required,oneof=QUOTATION DELIVERY_NOTE INVOICE"`
	CustomerID    int64           `json:"customer_id" validate:"required,gt=0"`
	SalespersonID int64           `json:"salesperson_id" validate:"gte=0"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	CashReceived  decimal.Decimal `json:"cash_received"`
	Change        decimal.Decimal `json:"change"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"omitempty,oneof=CASH TRANSFER CARD CREDIT"`
	Notes         string          `json:"notes" validate:"max=1000"`
	Lines         []LineInput     `json:"lines" validate:"dive"`

	// InventoryAlreadyApplied is set by in-process callers whose stock was moved elsewhere.
	InventoryAlreadyApplied bool `json:"-"`
}

// LineInput describes a line item; subtotal and total are always computed.
type LineInput struct {
	ProductID        int64           `json:"product_id" validate:"required,gt=0"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	UnitDiscount     decimal.Decimal `json:"unit_discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`

	// AffectsInventory is set by in-process callers whose stock moved elsewhere.
	AffectsInventory *bool `json:"-"`
}

// UpdateInput patches a document. Nil fields are left unchanged.
type UpdateInput struct {
	CustomerID    *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	SalespersonID *int64           `json:"salesperson_id,omitempty" validate:"omitempty,gt=0"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	CashReceived  *decimal.Decimal `json:"cash_received,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	PaymentMethod *PaymentMethod   `json:"payment_method,omitempty" validate:"omitempty,oneof=CASH TRANSFER CARD CREDIT"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Lines         *[]LineInput     `json:"lines,omitempty" validate:"omitempty,dive"`
}

// touchesRestricted reports whether the patch changes anything beyond the payment fields a
// cashier may correct during review.
func (u UpdateInput) touchesRestricted() bool {
	return u.CustomerID != nil || u.SalespersonID != nil || u.Subtotal != nil || u.Tax != nil ||
		u.Notes != nil || u.Lines != nil
}

// AnnulInput describes an annulment request.
type AnnulInput struct {
	Reason           AnnulmentReason `json:"reason" validate:"required"`
	Description      string          `json:"description" validate:"max=1000"`
	RestoreInventory bool            `json:"restore_inventory"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Type       DocumentType `json:"type,omitempty"`
	Status     Status       `json:"status,omitempty"`
	CustomerID int64        `json:"customer_id,omitempty"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
}
