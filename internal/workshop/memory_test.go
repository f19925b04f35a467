package workshop_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/workshop"
)

type drawerKey struct{ mechanic, product int64 }

type memoryRepo struct {
	mu           sync.Mutex
	orders       map[int64]workshop.Order
	consumptions []workshop.Consumption
	drawer       map[drawerKey]decimal.Decimal
	nextID       int64
	stock        *inventorytest.Store
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: make(map[int64]workshop.Order),
		drawer: make(map[drawerKey]decimal.Decimal),
		stock:  inventorytest.NewStore(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, workshop.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[int64]workshop.Order, len(r.orders))
	for id, o := range r.orders {
		orders[id] = o
	}
	drawer := make(map[drawerKey]decimal.Decimal, len(r.drawer))
	for k, v := range r.drawer {
		drawer[k] = v
	}
	consumptions, nextID := len(r.consumptions), r.nextID
	stock := r.stock.Snapshot()

	if err := fn(context.WithoutCancel(ctx), &memoryTx{repo: r}); err != nil {
		r.orders = orders
		r.drawer = drawer
		r.consumptions = r.consumptions[:consumptions]
		r.nextID = nextID
		r.stock.Restore(stock)
		return db.Classify(err)
	}
	return nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (workshop.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return workshop.Order{}, workshop.ErrNotFound
	}
	return o, nil
}

func (r *memoryRepo) ListConsumptions(_ context.Context, orderID int64) ([]workshop.Consumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumptionsFor(orderID), nil
}

func (r *memoryRepo) consumptionsFor(orderID int64) []workshop.Consumption {
	out := []workshop.Consumption{}
	for _, c := range r.consumptions {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out
}

func (r *memoryRepo) ListDrawer(_ context.Context, mechanicID int64) ([]workshop.DrawerItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := []workshop.DrawerItem{}
	for k, q := range r.drawer {
		if k.mechanic == mechanicID && q.IsPositive() {
			items = append(items, workshop.DrawerItem{MechanicID: k.mechanic, ProductID: k.product, Quantity: q})
		}
	}
	return items, nil
}

func (r *memoryRepo) drawerQty(mechanicID, productID int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drawer[drawerKey{mechanicID, productID}]
}

func (r *memoryRepo) setDrawer(mechanicID, productID, qty int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawer[drawerKey{mechanicID, productID}] = decimal.NewFromInt(qty)
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Stock() inventory.TxRepository { return t.repo.stock }

func (t *memoryTx) InsertOrder(_ context.Context, o *workshop.Order) error {
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = *o
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, id int64) (workshop.Order, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return workshop.Order{}, workshop.ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateOrder(_ context.Context, o workshop.Order) error {
	if _, ok := t.repo.orders[o.ID]; !ok {
		return workshop.ErrNotFound
	}
	t.repo.orders[o.ID] = o
	return nil
}

func (t *memoryTx) LockDrawerItem(_ context.Context, mechanicID, productID int64) (workshop.DrawerItem, error) {
	return workshop.DrawerItem{
		MechanicID: mechanicID,
		ProductID:  productID,
		Quantity:   t.repo.drawer[drawerKey{mechanicID, productID}],
	}, nil
}

func (t *memoryTx) SaveDrawerItem(_ context.Context, item workshop.DrawerItem) error {
	t.repo.drawer[drawerKey{item.MechanicID, item.ProductID}] = item.Quantity
	return nil
}

func (t *memoryTx) InsertConsumption(_ context.Context, c *workshop.Consumption) error {
	t.repo.nextID++
	c.ID = t.repo.nextID
	t.repo.consumptions = append(t.repo.consumptions, *c)
	return nil
}

func (t *memoryTx) ListConsumptions(_ context.Context, orderID int64) ([]workshop.Consumption, error) {
	return t.repo.consumptionsFor(orderID), nil
}

// fakeCreator reconciles the input the way the sales service does and records it.
type fakeCreator struct {
	mu     sync.Mutex
	inputs []sales.CreateInput
	err    error
}

func (f *fakeCreator) CreateDocument(_ context.Context, in sales.CreateInput, _ shared.Principal) (sales.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sales.Document{}, f.err
	}
	f.inputs = append(f.inputs, in)
	d := sales.Document{
		ID:                      int64(100 + len(f.inputs)),
		Type:                    in.Type,
		CustomerID:              in.CustomerID,
		Subtotal:                in.Subtotal,
		Tax:                     in.Tax,
		Total:                   in.Total,
		InventoryAlreadyApplied: in.InventoryAlreadyApplied,
	}
	for i, l := range in.Lines {
		sub, tot := sales.PriceLine(l.Quantity, l.UnitPrice, l.UnitDiscount, l.TaxRate)
		d.Lines = append(d.Lines, sales.Line{LineNo: i + 1, ProductID: l.ProductID, Quantity: l.Quantity,
			UnitPrice: l.UnitPrice, TaxRate: l.TaxRate, Subtotal: sub, Total: tot})
	}
	if err := sales.Reconcile(d); err != nil {
		return sales.Document{}, err
	}
	return d, nil
}
