package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.infos[queue], nil
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestHealthReportsBothQueues(t *testing.T) {
	w := serveHealth(t, fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueAudit:   {Queue: QueueAudit, Pending: 4, Retry: 1},
		QueueDefault: {Queue: QueueDefault, Active: 2},
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Queues []QueueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, QueueHealth{Queue: QueueAudit, Pending: 4, Retry: 1}, body.Queues[0])
	assert.Equal(t, QueueHealth{Queue: QueueDefault, Active: 2}, body.Queues[1])
}

func TestHealthWithoutInspector(t *testing.T) {
	w := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue":"audit"`)
}

func TestHealthUnavailable(t *testing.T) {
	w := serveHealth(t, fakeInspector{err: errors.New("dial tcp: refused")})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestNewClientRequiresAddr(t *testing.T) {
	_, err := NewClient(asynq.RedisClientOpt{})
	require.Error(t, err)
}
