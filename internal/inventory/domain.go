package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places stored for quantities, unit costs and rates (NUMERIC(18,4)) and for money
// (NUMERIC(18,2)).
const (
	QuantityScale int32 = 4
	MoneyScale    int32 = 2
)

// FitsScale reports whether d carries no more than places decimal digits.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// MovementKind classifies stock movements.
type MovementKind string

const (
	// MovementSale deducts stock for an issued delivery note or invoice.
	MovementSale MovementKind = "SALE"
	// MovementReturn restores stock when a document is annulled.
	MovementReturn MovementKind = "RETURN"
	// MovementAdjustment is an administrative correction.
	MovementAdjustment MovementKind = "ADJUSTMENT"
	// MovementWorkshop deducts parts consumed by a workshop order from general stock.
	MovementWorkshop MovementKind = "WORKSHOP"
	// MovementReceipt adds purchased stock.
	MovementReceipt MovementKind = "RECEIPT"
)

// IsValid reports whether k is a known kind.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementSale, MovementReturn, MovementAdjustment, MovementWorkshop, MovementReceipt:
		return true
	}
	return false
}

// Product is the stock-holding catalog entry.
type Product struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	QuantityOnHand   decimal.Decimal `json:"quantity_on_hand"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	IsActive         bool            `json:"is_active"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BelowThreshold reports whether stock is at or below the reorder threshold.
func (p Product) BelowThreshold() bool {
	return p.QuantityOnHand.LessThanOrEqual(p.ReorderThreshold)
}

// Movement is an immutable stock ledger entry.
type Movement struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	Kind           MovementKind    `json:"kind"`
	Delta          decimal.Decimal `json:"delta"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ActorID        int64           `json:"actor_id"`
	Reference      string          `json:"reference"`
	DocumentID     *int64          `json:"document_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MovementRequest asks the ledger to apply one signed delta.
type MovementRequest struct {
	ProductID  int64
	Kind       MovementKind
	Delta      decimal.Decimal
	UnitCost   *decimal.Decimal
	Reference  string
	DocumentID *int64
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ProductID  int64
	DocumentID int64
	Page       int
	PerPage    int
}

// AdjustmentInput describes an administrative correction.
type AdjustmentInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason" validate:"required,min=3,max=240"`
	ActorID   int64           `json:"-"`
}

// ReceiptInput describes purchased stock entering the warehouse.
type ReceiptInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reference string          `json:"reference" validate:"max=240"`
	ActorID   int64           `json:"-"`
}

var (
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInvalidQuantity indicates a zero or malformed quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: invalid unit cost")
	// ErrInsufficientStock indicates a deduction would drive stock negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrQuantityLimit indicates a credit would exceed the configured maximum on hand.
	ErrQuantityLimit = errors.New("inventory: quantity exceeds allowed maximum")
)

// InsufficientStockError details which product could not cover a deduction.
type InsufficientStockError struct {
	ProductID int64
	Code      string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %d (%s) has %s, requested %s",
		ErrInsufficientStock, e.ProductID, e.Code, e.Available.String(), e.Requested.String())
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
