package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	ListLowStock(ctx context.Context, limit int) ([]Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates administrative stock operations.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	audit  AuditPort
	logger *slog.Logger
	retry  db.RetryPolicy
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger(decimal.Zero)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger, retry: db.DefaultRetryPolicy}
}

// Adjust posts an administrative correction, positive or negative.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.ProductID == 0 {
		return Movement{}, ErrProductNotFound
	}
	if input.Delta.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	if !FitsScale(input.Delta, QuantityScale) {
		return Movement{}, fmt.Errorf("%w: at most %d decimal places", ErrInvalidQuantity, QuantityScale)
	}
	req := MovementRequest{
		ProductID: input.ProductID,
		Kind:      MovementAdjustment,
		Delta:     input.Delta,
		Reference: input.Reason,
	}
	return s.post(ctx, input.ActorID, req, "inventory.adjust")
}

// Receive posts purchased stock and updates the moving-average cost.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (Movement, error) {
	if input.ProductID == 0 {
		return Movement{}, ErrProductNotFound
	}
	if !input.Quantity.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if !FitsScale(input.Quantity, QuantityScale) {
		return Movement{}, fmt.Errorf("%w: at most %d decimal places", ErrInvalidQuantity, QuantityScale)
	}
	if input.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	if !FitsScale(input.UnitCost, QuantityScale) {
		return Movement{}, fmt.Errorf("%w: at most %d decimal places", ErrInvalidUnitCost, QuantityScale)
	}
	cost := input.UnitCost
	req := MovementRequest{
		ProductID: input.ProductID,
		Kind:      MovementReceipt,
		Delta:     input.Quantity,
		UnitCost:  &cost,
		Reference: input.Reference,
	}
	return s.post(ctx, input.ActorID, req, "inventory.receive")
}

func (s *Service) post(ctx context.Context, actorID int64, req MovementRequest, action string) (Movement, error) {
	var mv Movement
	err := db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			movements, err := s.ledger.Apply(ctx, tx, actorID, []MovementRequest{req})
			if err != nil {
				return err
			}
			mv = movements[0]
			return nil
		})
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(mv.ProductID, 10),
		Meta: map[string]any{
			"movement_id":     mv.ID,
			"delta":           mv.Delta.String(),
			"quantity_before": mv.QuantityBefore.String(),
			"quantity_after":  mv.QuantityAfter.String(),
		},
		At: time.Now().UTC(),
	})
	return mv, nil
}

// GetProduct returns the current stock snapshot of a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Movements lists ledger history for a product or document.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.ProductID == 0 && filter.DocumentID == 0 {
		return nil, shared.Pagination{}, fmt.Errorf("inventory: product or document required")
	}
	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// LowStock lists products at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.ListLowStock(ctx, limit)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Warn("inventory audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}
