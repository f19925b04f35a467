package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func TestTaskForKnownJobs(t *testing.T) {
	task, err := TaskFor(jobs.TaskTypeLowStockScan, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskTypeLowStockScan, task.Type())

	task, err = TaskFor(jobs.TaskTypeIdempotencyCleanup, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskTypeIdempotencyCleanup, task.Type())
	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 48*time.Hour, payload.Retention)
}

func TestTaskForUnknownJob(t *testing.T) {
	_, err := TaskFor(jobs.TaskTypeAuditRecord, time.Hour)
	require.ErrorIs(t, err, ErrUnsupportedJob)
}

func TestTriggerWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(t.Context(), jobs.TaskTypeLowStockScan)
	require.Error(t, err)
}
