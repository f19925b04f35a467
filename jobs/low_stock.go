package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// LowStockSource lists products at or below their reorder threshold.
type LowStockSource interface {
	ListLowStock(ctx context.Context, limit int) ([]inventory.Product, error)
}

// LowStockScanJob logs and counts products that need reordering.
type LowStockScanJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 200
	}
	tracker := j.Metrics.Track(TaskTypeLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()

	products, err := j.Source.ListLowStock(ctx, payload.Limit)
	if err != nil {
		j.Logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	for _, p := range products {
		j.Logger.Warn("product below reorder threshold",
			slog.Int64("product_id", p.ID),
			slog.String("code", p.Code),
			slog.String("on_hand", p.QuantityOnHand.String()),
			slog.String("threshold", p.ReorderThreshold.String()),
		)
	}
	j.Metrics.SetLowStock(len(products))
	j.Logger.Info("completed low stock scan", slog.Int("products", len(products)))
	return nil
}
