package sales

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// buildLines prices line inputs. Lines of a document type that never touches stock are stored
// with affects_inventory false.
func buildLines(docType DocumentType, inputs []LineInput) ([]Line, error) {
	tr, _ := docType.Traits()
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		if in.ProductID <= 0 {
			return nil, fmt.Errorf("%w %d: product required", ErrInvalidLine, i+1)
		}
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w %d: quantity must be greater than zero", ErrInvalidLine, i+1)
		}
		if in.UnitPrice.IsNegative() || in.UnitDiscount.IsNegative() {
			return nil, fmt.Errorf("%w %d: price and discount cannot be negative", ErrInvalidLine, i+1)
		}
		if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w %d: tax rate must be between 0 and 100", ErrInvalidLine, i+1)
		}
		if !inventory.FitsScale(in.Quantity, inventory.QuantityScale) || !inventory.FitsScale(in.TaxRate, inventory.QuantityScale) {
			return nil, fmt.Errorf("%w %d: quantity and tax rate take at most %d decimal places", ErrInvalidLine, i+1, inventory.QuantityScale)
		}
		if !inventory.FitsScale(in.UnitPrice, inventory.MoneyScale) || !inventory.FitsScale(in.UnitDiscount, inventory.MoneyScale) {
			return nil, fmt.Errorf("%w %d: price and discount take at most %d decimal places", ErrInvalidLine, i+1, inventory.MoneyScale)
		}
		affects := tr.AffectsInventory
		if in.AffectsInventory != nil {
			affects = affects && *in.AffectsInventory
		}
		subtotal, total := PriceLine(in.Quantity, in.UnitPrice, in.UnitDiscount, in.TaxRate)
		lines = append(lines, Line{
			LineNo:           i + 1,
			ProductID:        in.ProductID,
			Quantity:         in.Quantity,
			UnitPrice:        in.UnitPrice,
			UnitDiscount:     in.UnitDiscount,
			TaxRate:          in.TaxRate,
			Subtotal:         subtotal,
			Total:            total,
			AffectsInventory: affects,
		})
	}
	return lines, nil
}

func validateMoney(fields map[string]decimal.Decimal) error {
	for name, v := range fields {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s cannot be negative", ErrValidation, name)
		}
		if !inventory.FitsScale(v, inventory.MoneyScale) {
			return fmt.Errorf("%w: %s takes at most %d decimal places", ErrValidation, name, inventory.MoneyScale)
		}
	}
	return nil
}

func documentFromInput(in CreateInput, lines []Line) Document {
	method := in.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	return Document{
		Type:                    in.Type,
		CustomerID:              in.CustomerID,
		SalespersonID:           in.SalespersonID,
		Subtotal:                in.Subtotal,
		DiscountValue:           in.DiscountValue,
		Tax:                     in.Tax,
		Total:                   in.Total,
		CashReceived:            in.CashReceived,
		Change:                  in.Change,
		PaymentMethod:           method,
		Status:                  StatusDraft,
		InventoryAlreadyApplied: in.InventoryAlreadyApplied,
		Notes:                   in.Notes,
		Lines:                   lines,
	}
}

// applyUpdate copies the non-nil fields of patch onto d.
func applyUpdate(d *Document, patch UpdateInput) error {
	if patch.CustomerID != nil {
		d.CustomerID = *patch.CustomerID
	}
	if patch.SalespersonID != nil {
		d.SalespersonID = *patch.SalespersonID
	}
	if patch.Subtotal != nil {
		d.Subtotal = *patch.Subtotal
	}
	if patch.DiscountValue != nil {
		d.DiscountValue = *patch.DiscountValue
	}
	if patch.Tax != nil {
		d.Tax = *patch.Tax
	}
	if patch.Total != nil {
		d.Total = *patch.Total
	}
	if patch.CashReceived != nil {
		d.CashReceived = *patch.CashReceived
	}
	if patch.Change != nil {
		d.Change = *patch.Change
	}
	if patch.PaymentMethod != nil {
		if !patch.PaymentMethod.IsValid() {
			return fmt.Errorf("%w: unknown payment method %q", ErrValidation, *patch.PaymentMethod)
		}
		d.PaymentMethod = *patch.PaymentMethod
	}
	if patch.Notes != nil {
		d.Notes = *patch.Notes
	}
	if patch.Lines != nil {
		lines, err := buildLines(d.Type, *patch.Lines)
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].DocumentID = d.ID
		}
		d.Lines = lines
	}
	return validateMoney(map[string]decimal.Decimal{
		"subtotal":       d.Subtotal,
		"discount_value": d.DiscountValue,
		"tax":            d.Tax,
		"total":          d.Total,
		"cash_received":  d.CashReceived,
		"change":         d.Change,
	})
}
