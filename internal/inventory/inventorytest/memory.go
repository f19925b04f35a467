// Package inventorytest provides an in-memory stock store for tests of packages that drive the
// ledger inside their own transactions.
package inventorytest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// Store keeps products and movements in memory. It implements inventory.TxRepository.
type Store struct {
	mu        sync.Mutex
	products  map[int64]inventory.Product
	movements []inventory.Movement
	nextID    int64
	// Locked records LockProduct calls in order.
	Locked []int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{products: make(map[int64]inventory.Product)}
}

// Seed adds or replaces a product with the given quantity on hand.
func (s *Store) Seed(id int64, code string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = inventory.Product{
		ID:               id,
		Code:             code,
		Name:             code,
		QuantityOnHand:   decimal.NewFromInt(qty),
		ReorderThreshold: decimal.NewFromInt(1),
		UnitCost:         decimal.NewFromInt(50),
		IsActive:         true,
	}
}

// Quantity returns quantity_on_hand for id.
func (s *Store) Quantity(id int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].QuantityOnHand
}

// Product returns the stored product.
func (s *Store) Product(id int64) (inventory.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// Products returns every product.
func (s *Store) Products() []inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out
}

// Movements returns a copy of the movement log.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Snapshot captures state for rollback.
type Snapshot struct {
	products  map[int64]inventory.Product
	movements int
	nextID    int64
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make(map[int64]inventory.Product, len(s.products))
	for id, p := range s.products {
		products[id] = p
	}
	return Snapshot{products: products, movements: len(s.movements), nextID: s.nextID}
}

// Restore rolls the store back to snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.movements = s.movements[:snap.movements]
	s.nextID = snap.nextID
}

// LockProduct implements inventory.TxRepository.
func (s *Store) LockProduct(_ context.Context, productID int64) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	s.Locked = append(s.Locked, productID)
	return p, nil
}

// InsertMovement implements inventory.TxRepository.
func (s *Store) InsertMovement(_ context.Context, mv inventory.Movement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	mv.ID = s.nextID
	s.movements = append(s.movements, mv)
	return mv.ID, nil
}

// UpdateStock implements inventory.TxRepository.
func (s *Store) UpdateStock(_ context.Context, productID int64, qty, unitCost decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.QuantityOnHand = qty
	p.UnitCost = unitCost
	s.products[productID] = p
	return nil
}
