package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxQuantity bounds quantity_on_hand after a credit.
var DefaultMaxQuantity = decimal.NewFromInt(1_000_000_000)

// Ledger applies stock movements inside a caller-owned transaction.
type Ledger struct {
	maxQuantity decimal.Decimal
	now         func() time.Time
}

// NewLedger builds a Ledger. A non-positive max falls back to DefaultMaxQuantity.
func NewLedger(maxQuantity decimal.Decimal) *Ledger {
	if !maxQuantity.IsPositive() {
		maxQuantity = DefaultMaxQuantity
	}
	return &Ledger{maxQuantity: maxQuantity, now: func() time.Time { return time.Now().UTC() }}
}

type productState struct {
	product Product
	qty     decimal.Decimal
	cost    decimal.Decimal
}

// Apply locks every referenced product in ascending id order, checks the whole batch and only
// then writes one movement per request. A batch that would drive any product negative, or past
// the maximum, fails without writing anything.
func (l *Ledger) Apply(ctx context.Context, tx TxRepository, actorID int64, reqs []MovementRequest) ([]Movement, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	for _, req := range reqs {
		if req.ProductID == 0 || req.Delta.IsZero() {
			return nil, ErrInvalidQuantity
		}
		if !req.Kind.IsValid() {
			return nil, fmt.Errorf("inventory: unknown movement kind %q", req.Kind)
		}
		if req.UnitCost != nil && req.UnitCost.IsNegative() {
			return nil, ErrInvalidUnitCost
		}
	}

	states, err := l.lockProducts(ctx, tx, reqs)
	if err != nil {
		return nil, err
	}

	// Dry run over the whole batch before any write.
	projected := make(map[int64]decimal.Decimal, len(states))
	for id, st := range states {
		projected[id] = st.qty
	}
	for _, req := range reqs {
		next := projected[req.ProductID].Add(req.Delta)
		if next.IsNegative() {
			st := states[req.ProductID]
			return nil, &InsufficientStockError{
				ProductID: req.ProductID,
				Code:      st.product.Code,
				Available: projected[req.ProductID],
				Requested: req.Delta.Neg(),
			}
		}
		if next.GreaterThan(l.maxQuantity) {
			return nil, fmt.Errorf("%w: product %d would reach %s", ErrQuantityLimit, req.ProductID, next.String())
		}
		projected[req.ProductID] = next
	}

	now := l.now()
	movements := make([]Movement, 0, len(reqs))
	for _, req := range reqs {
		st := states[req.ProductID]
		unitCost := st.cost
		if req.UnitCost != nil {
			unitCost = *req.UnitCost
		}
		if req.Kind == MovementReceipt && req.Delta.IsPositive() {
			st.cost = movingAverage(st.qty, st.cost, req.Delta, unitCost)
		}
		mv := Movement{
			ProductID:      req.ProductID,
			Kind:           req.Kind,
			Delta:          req.Delta,
			QuantityBefore: st.qty,
			QuantityAfter:  st.qty.Add(req.Delta),
			UnitCost:       unitCost,
			ActorID:        actorID,
			Reference:      req.Reference,
			DocumentID:     req.DocumentID,
			CreatedAt:      now,
		}
		id, err := tx.InsertMovement(ctx, mv)
		if err != nil {
			return nil, fmt.Errorf("inventory: insert movement: %w", err)
		}
		mv.ID = id
		st.qty = mv.QuantityAfter
		movements = append(movements, mv)
	}

	for _, id := range sortedIDs(states) {
		st := states[id]
		if err := tx.UpdateStock(ctx, id, st.qty, st.cost); err != nil {
			return nil, fmt.Errorf("inventory: update stock: %w", err)
		}
	}
	return movements, nil
}

func (l *Ledger) lockProducts(ctx context.Context, tx TxRepository, reqs []MovementRequest) (map[int64]*productState, error) {
	states := make(map[int64]*productState, len(reqs))
	for _, req := range reqs {
		states[req.ProductID] = nil
	}
	for _, id := range sortedIDs(states) {
		product, err := tx.LockProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		states[id] = &productState{product: product, qty: product.QuantityOnHand, cost: product.UnitCost}
	}
	return states, nil
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func movingAverage(qty, avg, inQty, inCost decimal.Decimal) decimal.Decimal {
	total := qty.Add(inQty)
	if !total.IsPositive() {
		return inCost
	}
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	return qty.Mul(avg).Add(inQty.Mul(inCost)).DivRound(total, 4)
}
