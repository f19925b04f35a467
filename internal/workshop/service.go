package workshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListConsumptions(ctx context.Context, orderID int64) ([]Consumption, error)
	ListDrawer(ctx context.Context, mechanicID int64) ([]DrawerItem, error)
}

// TxRepository exposes the operations available inside a workshop transaction.
type TxRepository interface {
	Stock() inventory.TxRepository
	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	// LockDrawerItem returns a zero-quantity item when the mechanic holds none of the product.
	LockDrawerItem(ctx context.Context, mechanicID, productID int64) (DrawerItem, error)
	SaveDrawerItem(ctx context.Context, item DrawerItem) error
	InsertConsumption(ctx context.Context, c *Consumption) error
	ListConsumptions(ctx context.Context, orderID int64) ([]Consumption, error)
}

// DocumentCreator issues the sales document that bills an order.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, in sales.CreateInput, p shared.Principal) (sales.Document, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates workshop orders.
type Service struct {
	repo    RepositoryPort
	ledger  *inventory.Ledger
	creator DocumentCreator
	audit   AuditPort
	logger  *slog.Logger
	retry   db.RetryPolicy
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, creator DocumentCreator, audit AuditPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(decimal.Zero)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		creator: creator,
		audit:   audit,
		logger:  logger,
		retry:   db.DefaultRetryPolicy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRetryPolicy overrides the deadlock retry policy.
func (s *Service) SetRetryPolicy(p db.RetryPolicy) {
	s.retry = p
}

// OpenOrder creates an order in progress.
func (s *Service) OpenOrder(ctx context.Context, in OpenInput, p shared.Principal) (Order, error) {
	if p.IsZero() {
		return Order{}, shared.ErrUnauthenticated
	}
	if in.CustomerID <= 0 || in.MechanicID <= 0 {
		return Order{}, fmt.Errorf("%w: customer and mechanic are required", ErrInvalidInput)
	}
	o := Order{
		CustomerID:  in.CustomerID,
		MechanicID:  in.MechanicID,
		Description: in.Description,
		Status:      StatusInProgress,
		CreatedBy:   p.UserID,
		CreatedAt:   s.now(),
	}
	err := s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertOrder(ctx, &o)
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, p, "workshop.open", o, nil)
	return o, nil
}

// GetOrder returns an order with the parts consumed so far.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, []Consumption, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	parts, err := s.repo.ListConsumptions(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return o, parts, nil
}

// Drawer lists the parts a mechanic holds.
func (s *Service) Drawer(ctx context.Context, mechanicID int64) ([]DrawerItem, error) {
	return s.repo.ListDrawer(ctx, mechanicID)
}

// ConsumePart records a part used on an order. The mechanic's drawer is used when it covers the
// whole quantity; otherwise the part leaves general stock through a WORKSHOP movement.
func (s *Service) ConsumePart(ctx context.Context, orderID int64, in ConsumeInput, p shared.Principal) (Consumption, error) {
	if p.IsZero() {
		return Consumption{}, shared.ErrUnauthenticated
	}
	if in.ProductID <= 0 || !in.Quantity.IsPositive() {
		return Consumption{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if in.UnitPrice.IsNegative() || in.TaxRate.IsNegative() {
		return Consumption{}, fmt.Errorf("%w: price and tax rate cannot be negative", ErrInvalidInput)
	}
	if !inventory.FitsScale(in.Quantity, inventory.QuantityScale) || !inventory.FitsScale(in.TaxRate, inventory.QuantityScale) ||
		!inventory.FitsScale(in.UnitPrice, inventory.MoneyScale) {
		return Consumption{}, fmt.Errorf("%w: quantity takes at most %d decimal places and price %d", ErrInvalidInput, inventory.QuantityScale, inventory.MoneyScale)
	}

	var out Consumption
	err := s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusInProgress {
			return orderClosed(o)
		}
		item, err := tx.LockDrawerItem(ctx, o.MechanicID, in.ProductID)
		if err != nil {
			return err
		}
		c := Consumption{
			OrderID:   o.ID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			TaxRate:   in.TaxRate,
			Source:    ChooseSource(item.Quantity, in.Quantity),
			ActorID:   p.UserID,
			CreatedAt: s.now(),
		}
		if c.Source == SourceDrawer {
			item.Quantity = item.Quantity.Sub(in.Quantity)
			if err := tx.SaveDrawerItem(ctx, item); err != nil {
				return err
			}
		} else {
			mvs, err := s.ledger.Apply(ctx, tx.Stock(), p.UserID, []inventory.MovementRequest{{
				ProductID: in.ProductID,
				Kind:      inventory.MovementWorkshop,
				Delta:     in.Quantity.Neg(),
				Reference: o.Reference(),
			}})
			if err != nil {
				return err
			}
			c.MovementID = &mvs[0].ID
		}
		if err := tx.InsertConsumption(ctx, &c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Consumption{}, err
	}
	s.audited(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   "workshop.consume",
		Entity:   "workshop_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta: map[string]any{
			"product_id": out.ProductID,
			"quantity":   out.Quantity.String(),
			"source":     string(out.Source),
		},
	})
	return out, nil
}

// StockDrawer moves general stock into a mechanic's drawer.
func (s *Service) StockDrawer(ctx context.Context, mechanicID int64, in DrawerInput, p shared.Principal) (DrawerItem, error) {
	if p.IsZero() {
		return DrawerItem{}, shared.ErrUnauthenticated
	}
	if mechanicID <= 0 || in.ProductID <= 0 || !in.Quantity.IsPositive() {
		return DrawerItem{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if !inventory.FitsScale(in.Quantity, inventory.QuantityScale) {
		return DrawerItem{}, fmt.Errorf("%w: quantity takes at most %d decimal places", ErrInvalidInput, inventory.QuantityScale)
	}
	var out DrawerItem
	err := s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockDrawerItem(ctx, mechanicID, in.ProductID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Apply(ctx, tx.Stock(), p.UserID, []inventory.MovementRequest{{
			ProductID: in.ProductID,
			Kind:      inventory.MovementWorkshop,
			Delta:     in.Quantity.Neg(),
			Reference: "DRAWER-" + strconv.FormatInt(mechanicID, 10),
		}})
		if err != nil {
			return err
		}
		item.MechanicID = mechanicID
		item.ProductID = in.ProductID
		item.Quantity = item.Quantity.Add(in.Quantity)
		if err := tx.SaveDrawerItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return DrawerItem{}, err
	}
	s.audited(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   "workshop.stock_drawer",
		Entity:   "mechanic_drawer",
		EntityID: strconv.FormatInt(mechanicID, 10),
		Meta:     map[string]any{"product_id": in.ProductID, "quantity": in.Quantity.String()},
	})
	return out, nil
}

// BillOrder issues an invoice or delivery note for the consumed parts. Stock already left when the
// parts were consumed, so the document never moves inventory. The order is claimed first so two
// concurrent bills cannot both issue a document.
func (s *Service) BillOrder(ctx context.Context, orderID int64, docType sales.DocumentType, p shared.Principal) (Order, sales.Document, error) {
	if p.IsZero() {
		return Order{}, sales.Document{}, shared.ErrUnauthenticated
	}
	if docType != sales.TypeInvoice && docType != sales.TypeDeliveryNote {
		return Order{}, sales.Document{}, fmt.Errorf("%w: bill as %q", ErrInvalidInput, docType)
	}
	if s.creator == nil {
		return Order{}, sales.Document{}, errors.New("workshop: document creator not configured")
	}

	var (
		order Order
		parts []Consumption
	)
	err := s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusInProgress {
			return orderClosed(o)
		}
		cs, err := tx.ListConsumptions(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			return ErrNothingToBill
		}
		o.Status = StatusBilling
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order, parts = o, cs
		return nil
	})
	if err != nil {
		return Order{}, sales.Document{}, err
	}

	doc, err := s.creator.CreateDocument(ctx, billingInput(order, docType, parts), p)
	if err != nil {
		if rerr := s.setStatus(ctx, orderID, StatusInProgress, nil); rerr != nil {
			s.logger.Error("workshop order release failed", slog.Int64("order_id", orderID), slog.Any("error", rerr))
		}
		return Order{}, sales.Document{}, err
	}

	docID := doc.ID
	if err := s.setStatus(ctx, orderID, StatusBilled, &docID); err != nil {
		s.logger.Error("workshop order left in billing", slog.Int64("order_id", orderID),
			slog.Int64("document_id", docID), slog.Any("error", err))
		return Order{}, sales.Document{}, err
	}
	now := s.now()
	order.Status = StatusBilled
	order.BilledDocumentID = &docID
	order.BilledAt = &now
	s.record(ctx, p, "workshop.bill", order, map[string]any{"document_id": docID, "document_type": string(docType)})
	return order, doc, nil
}

func (s *Service) setStatus(ctx context.Context, orderID int64, status OrderStatus, docID *int64) error {
	return s.run(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		o.Status = status
		o.BilledDocumentID = docID
		if status == StatusBilled {
			now := s.now()
			o.BilledAt = &now
		}
		return tx.UpdateOrder(ctx, o)
	})
}

// billingInput prices the consumed parts. Lines never affect inventory.
func billingInput(o Order, docType sales.DocumentType, parts []Consumption) sales.CreateInput {
	affects := false
	in := sales.CreateInput{
		Type:                    docType,
		CustomerID:              o.CustomerID,
		SalespersonID:           o.MechanicID,
		PaymentMethod:           sales.PaymentCash,
		Notes:                   o.Reference(),
		InventoryAlreadyApplied: true,
	}
	var subtotal, total decimal.Decimal
	for _, c := range parts {
		sub, tot := sales.PriceLine(c.Quantity, c.UnitPrice, decimal.Zero, c.TaxRate)
		subtotal = subtotal.Add(sub)
		total = total.Add(tot)
		in.Lines = append(in.Lines, sales.LineInput{
			ProductID:        c.ProductID,
			Quantity:         c.Quantity,
			UnitPrice:        c.UnitPrice,
			TaxRate:          c.TaxRate,
			AffectsInventory: &affects,
		})
	}
	in.Subtotal = subtotal
	in.Tax = total.Sub(subtotal)
	in.Total = total
	return in
}

func orderClosed(o Order) error {
	if o.Status == StatusBilled || o.Status == StatusBilling {
		return fmt.Errorf("%w: %s", ErrAlreadyBilled, o.Reference())
	}
	return fmt.Errorf("%w: %s is %s", ErrOrderClosed, o.Reference(), o.Status)
}

func (s *Service) run(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) record(ctx context.Context, p shared.Principal, action string, o Order, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(o.Status)
	meta["mechanic_id"] = o.MechanicID
	s.audited(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "workshop_order",
		EntityID: strconv.FormatInt(o.ID, 10),
		Meta:     meta,
	})
}

func (s *Service) audited(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("workshop audit failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}
