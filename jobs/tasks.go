package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit entries off the request path.
	QueueAudit = "audit"

	// TaskTypeAuditRecord persists one audit entry.
	TaskTypeAuditRecord = "audit:record"
	// TaskTypeLowStockScan reports products at or below their reorder threshold.
	TaskTypeLowStockScan = "inventory:low-stock-scan"
	// TaskTypeIdempotencyCleanup purges stale idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// AuditRecordMaxRetry bounds delivery attempts before an entry is dropped.
const AuditRecordMaxRetry = 5

// NewAuditRecordTask constructs an Asynq task carrying log.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data,
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(AuditRecordMaxRetry),
		asynq.TaskID(uuid.NewString()),
	), nil
}

// DecodeAuditRecord parses an audit:record payload.
func DecodeAuditRecord(payload []byte) (shared.AuditLog, error) {
	var log shared.AuditLog
	if err := json.Unmarshal(payload, &log); err != nil {
		return shared.AuditLog{}, err
	}
	return log, log.Validate()
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	Limit int `json:"limit"`
}

// NewLowStockScanTask constructs the cron task for the low-stock scan.
func NewLowStockScanTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLowStockScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// IdempotencyCleanupPayload sets how old a key must be to be purged.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cron task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
