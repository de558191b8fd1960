package jobs

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewBulkRunTask(t *testing.T) {
	task, err := NewBulkRunTask("6f1c1b7e-0d5a-4a53-9c39-1f0b8a9b3e21")
	require.NoError(t, err)
	require.Equal(t, TaskBulkRun, task.Type())

	var payload BulkRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "6f1c1b7e-0d5a-4a53-9c39-1f0b8a9b3e21", payload.JobID)

	_, err = NewBulkRunTask("")
	require.Error(t, err)
}

func TestNewBulkPruneTaskDefaultsRetention(t *testing.T) {
	task, err := NewBulkPruneTask(0)
	require.NoError(t, err)
	var payload BulkPrunePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 30, payload.RetentionDays)
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestInspectQueuesReportsMissingQueuesEmpty(t *testing.T) {
	stats, err := InspectQueues(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueBulk: {Queue: QueueBulk, Pending: 2, Active: 1, Retry: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, []QueueStats{
		{Queue: QueueBulk, Pending: 2, Active: 1, Retry: 1},
		{Queue: QueueDefault},
	}, stats)
}

func TestHealthEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{}}, logger).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[{"queue":"bulk","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0},{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}]`, rr.Body.String())

	broken := chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, logger).MountRoutes(broken)
	rr = httptest.NewRecorder()
	broken.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
