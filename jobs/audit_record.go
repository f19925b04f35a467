package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// AuditWriter persists one audit entry.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditRecordJob writes forwarded audit entries into audit_logs.
type AuditRecordJob struct {
	Writer  AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob initialises the audit:record handler.
func NewAuditRecordJob(writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecordJob{Writer: writer, Logger: logger, Metrics: metrics}
}

// Handle persists the entry. The final failed attempt is logged and dropped.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("audit record: handler not configured")
	}
	log, err := DecodeAuditRecord(t.Payload())
	if err != nil {
		j.Logger.Warn("audit record payload rejected", slog.Any("error", err))
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTypeAuditRecord)
	err = j.Writer.Record(ctx, log)
	if err == nil {
		return tracker.End(nil)
	}
	_ = tracker.End(err)

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if ok && retried >= maxRetry {
		j.Logger.Error("audit entry dropped",
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID),
			slog.Any("error", err),
		)
		j.Metrics.AddDropped(1)
		return nil
	}
	return err
}
