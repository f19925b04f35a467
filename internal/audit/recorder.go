package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Writer persists an entry synchronously.
type Writer interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder forwards audit entries to the worker. When the queue is unreachable the entry is
// written directly so a Redis outage does not lose history.
type Recorder struct {
	queue    Enqueuer
	fallback Writer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder builds Recorder. Either queue or fallback may be nil, not both.
func NewRecorder(queue Enqueuer, fallback Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{queue: queue, fallback: fallback, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record implements the services' AuditPort.
func (r *Recorder) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = r.now()
	}
	if r.queue != nil {
		task, err := jobs.NewAuditRecordTask(log)
		if err != nil {
			return err
		}
		_, err = r.queue.EnqueueContext(ctx, task)
		if err == nil {
			return nil
		}
		if r.fallback == nil {
			return err
		}
		r.logger.Warn("audit enqueue failed, writing directly", slog.String("action", log.Action), slog.Any("error", err))
	}
	if r.fallback == nil {
		return nil
	}
	return r.fallback.Record(ctx, log)
}
