package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

type stubTrailRepo struct {
	rows       []Entry
	lastOffset int
	lastLimit  int
}

func (s *stubTrailRepo) Trail(_ context.Context, _, _ string, offset, limit int) ([]Entry, error) {
	s.lastOffset, s.lastLimit = offset, limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func entries(n int) []Entry {
	out := make([]Entry, n)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Entry{ID: int64(n - i), At: base.Add(-time.Duration(i) * time.Minute), Action: "sales.update", Entity: "sales_document", EntityID: "1"}
	}
	return out
}

func TestServiceTrailPaging(t *testing.T) {
	repo := &stubTrailRepo{rows: entries(3)}
	svc := NewService(repo)

	result, err := svc.Trail(context.Background(), TrailFilter{Entity: "sales_document", EntityID: "1", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Trail(context.Background(), TrailFilter{Entity: "sales_document", EntityID: "1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestServiceTrailCapsPageSize(t *testing.T) {
	repo := &stubTrailRepo{}
	result, err := NewService(repo).Trail(context.Background(), TrailFilter{Entity: "e", EntityID: "1", PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, result.Paging.PageSize)
	assert.Equal(t, MaxPageSize+1, repo.lastLimit)
	assert.NotNil(t, result.Entries)
}

func TestServiceTrailRequiresEntity(t *testing.T) {
	_, err := NewService(&stubTrailRepo{}).Trail(context.Background(), TrailFilter{Entity: " "})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

type stubQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *stubQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "1"}, nil
}

type stubWriter struct {
	logs []shared.AuditLog
}

func (w *stubWriter) Record(_ context.Context, log shared.AuditLog) error {
	w.logs = append(w.logs, log)
	return nil
}

func TestRecorderEnqueues(t *testing.T) {
	queue, writer := &stubQueue{}, &stubWriter{}
	rec := NewRecorder(queue, writer, nil)

	err := rec.Record(context.Background(), shared.AuditLog{ActorID: 7, Action: "sales.finalize", Entity: "sales_document", EntityID: "1"})
	require.NoError(t, err)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, jobs.TaskTypeAuditRecord, queue.tasks[0].Type())
	assert.Empty(t, writer.logs)

	got, err := jobs.DecodeAuditRecord(queue.tasks[0].Payload())
	require.NoError(t, err)
	assert.Equal(t, "sales.finalize", got.Action)
	assert.False(t, got.At.IsZero())
}

func TestRecorderFallsBackToWriter(t *testing.T) {
	queue, writer := &stubQueue{err: errors.New("redis down")}, &stubWriter{}
	rec := NewRecorder(queue, writer, nil)

	require.NoError(t, rec.Record(context.Background(), shared.AuditLog{Action: "sales.annul", Entity: "sales_document", EntityID: "2"}))
	require.Len(t, writer.logs, 1)
	assert.Equal(t, "sales.annul", writer.logs[0].Action)
}

func TestRecorderRejectsIncompleteLog(t *testing.T) {
	rec := NewRecorder(&stubQueue{}, nil, nil)
	assert.Error(t, rec.Record(context.Background(), shared.AuditLog{Action: "x"}))
}
