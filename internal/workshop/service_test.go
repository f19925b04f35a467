package workshop_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/workshop"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestChooseSource(t *testing.T) {
	cases := []struct {
		drawer, qty string
		want        workshop.AllocationSource
	}{
		{"3", "2", workshop.SourceDrawer},
		{"2", "2", workshop.SourceDrawer},
		{"1", "2", workshop.SourceGeneral},
		{"0", "1", workshop.SourceGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, workshop.ChooseSource(dec(tc.drawer), dec(tc.qty)), "drawer=%s qty=%s", tc.drawer, tc.qty)
	}
}

type WorkshopSuite struct {
	suite.Suite
	repo     *memoryRepo
	creator  *fakeCreator
	service  *workshop.Service
	mechanic shared.Principal
	ctx      context.Context
}

func TestWorkshopSuite(t *testing.T) {
	suite.Run(t, new(WorkshopSuite))
}

func (s *WorkshopSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = newMemoryRepo()
	s.repo.stock.Seed(1, "BRAKE-PAD", 10)
	s.repo.stock.Seed(2, "OIL-FILTER", 1)
	s.creator = &fakeCreator{}
	s.service = workshop.NewService(s.repo, inventory.NewLedger(decimal.Zero), s.creator, nil, nil)
	s.mechanic = shared.Principal{UserID: 7, Username: "mechanic"}
}

func (s *WorkshopSuite) open() workshop.Order {
	o, err := s.service.OpenOrder(s.ctx, workshop.OpenInput{CustomerID: 3, MechanicID: 7, Description: "brake service"}, s.mechanic)
	s.Require().NoError(err)
	s.Require().Equal(workshop.StatusInProgress, o.Status)
	return o
}

func (s *WorkshopSuite) consume(orderID, productID int64, qty, price, rate string) (workshop.Consumption, error) {
	return s.service.ConsumePart(s.ctx, orderID, workshop.ConsumeInput{
		ProductID: productID,
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		TaxRate:   dec(rate),
	}, s.mechanic)
}

func (s *WorkshopSuite) TestConsumeFromDrawer() {
	o := s.open()
	s.repo.setDrawer(7, 1, 3)

	c, err := s.consume(o.ID, 1, "2", "10", "19")
	s.Require().NoError(err)
	s.Equal(workshop.SourceDrawer, c.Source)
	s.Nil(c.MovementID)
	s.True(s.repo.drawerQty(7, 1).Equal(dec("1")))
	s.True(s.repo.stock.Quantity(1).Equal(dec("10")))
	s.Empty(s.repo.stock.Movements())
}

func (s *WorkshopSuite) TestConsumeFallsBackToGeneralStock() {
	o := s.open()
	s.repo.setDrawer(7, 1, 1)

	c, err := s.consume(o.ID, 1, "2", "10", "19")
	s.Require().NoError(err)
	s.Equal(workshop.SourceGeneral, c.Source)
	s.Require().NotNil(c.MovementID)
	s.True(s.repo.drawerQty(7, 1).Equal(dec("1")), "a partial drawer is left untouched")
	s.True(s.repo.stock.Quantity(1).Equal(dec("8")))

	mvs := s.repo.stock.Movements()
	s.Require().Len(mvs, 1)
	s.Equal(inventory.MovementWorkshop, mvs[0].Kind)
	s.Equal(o.Reference(), mvs[0].Reference)
	s.True(mvs[0].Delta.Equal(dec("-2")))
}

func (s *WorkshopSuite) TestConsumeInsufficientStockLeavesNothing() {
	o := s.open()
	_, err := s.consume(o.ID, 2, "3", "8", "0")
	s.Require().ErrorIs(err, inventory.ErrInsufficientStock)

	_, parts, err := s.service.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Empty(parts)
	s.True(s.repo.stock.Quantity(2).Equal(dec("1")))
}

func (s *WorkshopSuite) TestConsumeRejectsInvalidInput() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "0", "10", "0")
	s.ErrorIs(err, workshop.ErrInvalidInput)
	_, err = s.consume(o.ID, 1, "1", "-1", "0")
	s.ErrorIs(err, workshop.ErrInvalidInput)
	_, err = s.service.ConsumePart(s.ctx, o.ID, workshop.ConsumeInput{ProductID: 1, Quantity: dec("1")}, shared.Principal{})
	s.ErrorIs(err, shared.ErrUnauthenticated)
	_, err = s.consume(999, 1, "1", "1", "0")
	s.ErrorIs(err, shared.ErrNotFound)
}

func (s *WorkshopSuite) TestRejectsExcessScale() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "1.00005", "10", "0")
	s.ErrorIs(err, workshop.ErrInvalidInput)
	_, err = s.consume(o.ID, 1, "1", "10.001", "0")
	s.ErrorIs(err, workshop.ErrInvalidInput)
	_, err = s.service.StockDrawer(s.ctx, 7, workshop.DrawerInput{ProductID: 1, Quantity: dec("0.00001")}, s.mechanic)
	s.ErrorIs(err, workshop.ErrInvalidInput)

	s.True(s.repo.stock.Quantity(1).Equal(dec("10")))
	s.Empty(s.repo.stock.Movements())
	s.True(s.repo.drawerQty(7, 1).IsZero())
}

func (s *WorkshopSuite) TestStockDrawerMovesGeneralStock() {
	item, err := s.service.StockDrawer(s.ctx, 7, workshop.DrawerInput{ProductID: 1, Quantity: dec("4")}, s.mechanic)
	s.Require().NoError(err)
	s.True(item.Quantity.Equal(dec("4")))
	s.True(s.repo.stock.Quantity(1).Equal(dec("6")))

	items, err := s.service.Drawer(s.ctx, 7)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(int64(1), items[0].ProductID)

	_, err = s.service.StockDrawer(s.ctx, 7, workshop.DrawerInput{ProductID: 2, Quantity: dec("5")}, s.mechanic)
	s.ErrorIs(err, inventory.ErrInsufficientStock)
	s.True(s.repo.drawerQty(7, 2).IsZero())
}

func (s *WorkshopSuite) TestBillOrderIssuesDocumentWithoutMovingStock() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "2", "10", "19")
	s.Require().NoError(err)
	s.repo.setDrawer(7, 2, 1)
	_, err = s.consume(o.ID, 2, "1", "5.50", "0")
	s.Require().NoError(err)
	movements := len(s.repo.stock.Movements())

	billed, doc, err := s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
	s.Require().NoError(err)
	s.Equal(workshop.StatusBilled, billed.Status)
	s.Require().NotNil(billed.BilledDocumentID)
	s.Equal(doc.ID, *billed.BilledDocumentID)
	s.True(doc.Subtotal.Equal(dec("25.50")))
	s.True(doc.Total.Equal(dec("29.30")))

	s.Require().Len(s.creator.inputs, 1)
	in := s.creator.inputs[0]
	s.True(in.InventoryAlreadyApplied)
	s.Equal(o.Reference(), in.Notes)
	for _, l := range in.Lines {
		s.Require().NotNil(l.AffectsInventory)
		s.False(*l.AffectsInventory)
	}
	s.Len(s.repo.stock.Movements(), movements)

	stored, _, err := s.service.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(workshop.StatusBilled, stored.Status)
}

func (s *WorkshopSuite) TestBillOrderTwiceRejected() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "1", "10", "0")
	s.Require().NoError(err)
	_, _, err = s.service.BillOrder(s.ctx, o.ID, sales.TypeDeliveryNote, s.mechanic)
	s.Require().NoError(err)

	_, _, err = s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
	s.ErrorIs(err, workshop.ErrAlreadyBilled)
	_, err = s.consume(o.ID, 1, "1", "10", "0")
	s.ErrorIs(err, workshop.ErrAlreadyBilled)
	s.Len(s.creator.inputs, 1)
}

func (s *WorkshopSuite) TestBillOrderWithoutParts() {
	o := s.open()
	_, _, err := s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
	s.ErrorIs(err, workshop.ErrNothingToBill)

	stored, _, err := s.service.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(workshop.StatusInProgress, stored.Status)
}

func (s *WorkshopSuite) TestBillOrderReleasesClaimOnFailure() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "1", "10", "0")
	s.Require().NoError(err)
	s.creator.err = errors.New("sales unavailable")

	_, _, err = s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
	s.Require().Error(err)
	stored, _, err := s.service.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(workshop.StatusInProgress, stored.Status)
	s.Nil(stored.BilledDocumentID)

	s.creator.err = nil
	_, _, err = s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
	s.NoError(err)
}

func (s *WorkshopSuite) TestBillOrderRejectsQuotation() {
	o := s.open()
	_, _, err := s.service.BillOrder(s.ctx, o.ID, sales.TypeQuotation, s.mechanic)
	s.ErrorIs(err, workshop.ErrInvalidInput)
}

func (s *WorkshopSuite) TestConcurrentBillsIssueOneDocument() {
	o := s.open()
	_, err := s.consume(o.ID, 1, "1", "10", "0")
	s.Require().NoError(err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.service.BillOrder(s.ctx, o.ID, sales.TypeInvoice, s.mechanic)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(s.T(), err, workshop.ErrAlreadyBilled)
		}()
	}
	wg.Wait()
	s.Equal(1, successes)
	s.Len(s.creator.inputs, 1)
}

func TestOpenOrderValidation(t *testing.T) {
	svc := workshop.NewService(newMemoryRepo(), nil, &fakeCreator{}, nil, nil)
	_, err := svc.OpenOrder(context.Background(), workshop.OpenInput{CustomerID: 1}, shared.Principal{UserID: 1})
	require.ErrorIs(t, err, workshop.ErrInvalidInput)
	_, err = svc.OpenOrder(context.Background(), workshop.OpenInput{CustomerID: 1, MechanicID: 2}, shared.Principal{})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}
