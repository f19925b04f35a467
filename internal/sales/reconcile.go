package sales

import "github.com/shopspring/decimal"

// CurrencyPlaces is the precision money is compared at.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundCurrency rounds half away from zero, which is half-up for the non-negative amounts
// documents carry.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// PriceLine computes line subtotal and total:
// subtotal = max(0, qty*price - qty*unitDiscount), total = subtotal + subtotal*taxRate/100.
func PriceLine(qty, unitPrice, unitDiscount, taxRate decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = qty.Mul(unitPrice).Sub(qty.Mul(unitDiscount))
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	subtotal = RoundCurrency(subtotal)
	tax := RoundCurrency(subtotal.Mul(taxRate).Div(hundred))
	return subtotal, subtotal.Add(tax)
}

// ComputedTotals sums the lines of d.
func ComputedTotals(d Document) (subtotal, tax, total decimal.Decimal) {
	for _, l := range d.Lines {
		subtotal = subtotal.Add(l.Subtotal)
		total = total.Add(l.Total)
	}
	tax = total.Sub(subtotal)
	total = total.Sub(d.DiscountValue)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return RoundCurrency(subtotal), RoundCurrency(tax), RoundCurrency(total)
}

// Reconcile checks the stated subtotal and total of d against its lines.
func Reconcile(d Document) error {
	if len(d.Lines) == 0 {
		return ErrEmptyDocument
	}
	subtotal, _, total := ComputedTotals(d)
	statedSubtotal := RoundCurrency(d.Subtotal)
	statedTotal := RoundCurrency(d.Total)
	if !subtotal.Equal(statedSubtotal) || !total.Equal(statedTotal) {
		return &TotalsMismatchError{
			StatedSubtotal:   statedSubtotal,
			ComputedSubtotal: subtotal,
			StatedTotal:      statedTotal,
			ComputedTotal:    total,
		}
	}
	return nil
}
