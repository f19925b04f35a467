// Package workshop tracks parts consumed by service orders and bills them through sales.
package workshop

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// OrderStatus is the lifecycle of a workshop order.
type OrderStatus string

const (
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusBilling    OrderStatus = "BILLING"
	StatusBilled     OrderStatus = "BILLED"
)

// AllocationSource says where a consumed part came from.
type AllocationSource string

const (
	// SourceDrawer takes the part from the mechanic's drawer; no ledger movement.
	SourceDrawer AllocationSource = "DRAWER"
	// SourceGeneral takes the part from general stock through the ledger.
	SourceGeneral AllocationSource = "GENERAL"
)

// ChooseSource prefers the drawer when it alone covers the quantity.
func ChooseSource(drawerQty, qty decimal.Decimal) AllocationSource {
	if drawerQty.GreaterThanOrEqual(qty) {
		return SourceDrawer
	}
	return SourceGeneral
}

// Order is a workshop service order.
type Order struct {
	ID               int64       `json:"id"`
	CustomerID       int64       `json:"customer_id"`
	MechanicID       int64       `json:"mechanic_id"`
	Description      string      `json:"description"`
	Status           OrderStatus `json:"status"`
	BilledDocumentID *int64      `json:"billed_document_id,omitempty"`
	CreatedBy        int64       `json:"created_by"`
	CreatedAt        time.Time   `json:"created_at"`
	BilledAt         *time.Time  `json:"billed_at,omitempty"`
}

// Reference labels ledger movements and documents produced for the order.
func (o Order) Reference() string {
	return fmt.Sprintf("OT-%d", o.ID)
}

// Consumption is one part used on an order.
type Consumption struct {
	ID         int64            `json:"id"`
	OrderID    int64            `json:"order_id"`
	ProductID  int64            `json:"product_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TaxRate    decimal.Decimal  `json:"tax_rate"`
	Source     AllocationSource `json:"source"`
	MovementID *int64           `json:"movement_id,omitempty"`
	ActorID    int64            `json:"actor_id"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DrawerItem is stock held by a mechanic outside the general ledger.
type DrawerItem struct {
	MechanicID int64           `json:"mechanic_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// OpenInput opens an order.
type OpenInput struct {
	CustomerID  int64  `json:"customer_id" validate:"required,gt=0"`
	MechanicID  int64  `json:"mechanic_id" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=1000"`
}

// ConsumeInput records a part used on an order.
type ConsumeInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

// DrawerInput moves general stock into a mechanic's drawer.
type DrawerInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
}

var (
	ErrNotFound      = fmt.Errorf("workshop: order %w", shared.ErrNotFound)
	ErrAlreadyBilled = errors.New("workshop: order already billed")
	ErrOrderClosed   = errors.New("workshop: order is not in progress")
	ErrNothingToBill = errors.New("workshop: order has no consumed parts")
	ErrInvalidInput  = errors.New("workshop: invalid input")
)
