package sales_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceLine(t *testing.T) {
	cases := []struct {
		name                       string
		qty, price, discount, rate string
		subtotal, total            string
	}{
		{"taxed", "2", "100", "0", "19", "200", "238"},
		{"unit discount", "3", "10", "2", "0", "24", "24"},
		{"discount above price clamps to zero", "1", "10", "15", "19", "0", "0"},
		{"half up", "1", "0.125", "0", "0", "0.13", "0.13"},
		{"tax rounding", "1", "10.05", "0", "19", "10.05", "11.96"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subtotal, total := sales.PriceLine(dec(tc.qty), dec(tc.price), dec(tc.discount), dec(tc.rate))
			assert.True(t, subtotal.Equal(dec(tc.subtotal)), "subtotal %s", subtotal)
			assert.True(t, total.Equal(dec(tc.total)), "total %s", total)
		})
	}
}

func pricedLine(productID int64, qty, price, rate string) sales.Line {
	subtotal, total := sales.PriceLine(dec(qty), dec(price), decimal.Zero, dec(rate))
	return sales.Line{
		ProductID: productID, Quantity: dec(qty), UnitPrice: dec(price), TaxRate: dec(rate),
		Subtotal: subtotal, Total: total, AffectsInventory: true,
	}
}

func TestReconcile(t *testing.T) {
	doc := sales.Document{
		Subtotal: dec("200"),
		Total:    dec("238"),
		Lines:    []sales.Line{pricedLine(1, "2", "100", "19")},
	}
	require.NoError(t, sales.Reconcile(doc))

	doc.Total = dec("240")
	err := sales.Reconcile(doc)
	require.ErrorIs(t, err, sales.ErrTotalsMismatch)
	var mismatch *sales.TotalsMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.True(t, mismatch.ComputedTotal.Equal(dec("238")))
	assert.True(t, mismatch.StatedTotal.Equal(dec("240")))
	assert.True(t, mismatch.ComputedSubtotal.Equal(dec("200")))
}

func TestReconcileDiscountValue(t *testing.T) {
	doc := sales.Document{
		Subtotal:      dec("200"),
		DiscountValue: dec("38"),
		Total:         dec("200"),
		Lines:         []sales.Line{pricedLine(1, "2", "100", "19")},
	}
	require.NoError(t, sales.Reconcile(doc))

	doc.DiscountValue = dec("500")
	doc.Total = decimal.Zero
	require.NoError(t, sales.Reconcile(doc), "total never drops below zero")
}

func TestReconcileRoundsStatedFigures(t *testing.T) {
	doc := sales.Document{
		Subtotal: dec("200.004"),
		Total:    dec("237.996"),
		Lines:    []sales.Line{pricedLine(1, "2", "100", "19")},
	}
	assert.NoError(t, sales.Reconcile(doc))
}

func TestReconcileEmpty(t *testing.T) {
	assert.ErrorIs(t, sales.Reconcile(sales.Document{}), sales.ErrEmptyDocument)
}

func TestDocumentTypeTraits(t *testing.T) {
	inv, ok := sales.TypeInvoice.Traits()
	require.True(t, ok)
	assert.True(t, inv.CashierGate)
	assert.Equal(t, sales.StatusInvoiced, inv.FinalStatus)
	assert.Equal(t, int64(100000), inv.SequenceBase)

	dn, _ := sales.TypeDeliveryNote.Traits()
	assert.True(t, dn.AffectsInventory)
	assert.True(t, dn.NumberAtCreation)

	q, _ := sales.TypeQuotation.Traits()
	assert.False(t, q.AffectsInventory)
	assert.Equal(t, "COT", q.Prefix)

	assert.False(t, sales.DocumentType("RECEIPT").IsValid())
}

func TestFormatNumber(t *testing.T) {
	tr, ok := sales.TypeInvoice.Traits()
	require.True(t, ok)
	at := time.Date(2026, time.March, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "FAC-202603-100000", sales.FormatNumber(tr.Prefix, at, tr.SequenceBase))

	tr, ok = sales.TypeDeliveryNote.Traits()
	require.True(t, ok)
	assert.Equal(t, "REM-202603-150001", sales.FormatNumber(tr.Prefix, at, tr.SequenceBase+1))
}
