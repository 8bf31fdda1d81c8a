package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/partsledger/partsledger/internal/jobs"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubWarmer struct {
	limit  int
	warmed int
	err    error
}

func (s *stubWarmer) Warmup(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return s.warmed, s.err
}

type stubPurger struct {
	olderThan time.Duration
	removed   int64
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, nil
}

func TestNewTaskByName(t *testing.T) {
	for _, name := range TaskNames {
		task, err := NewTask(name)
		require.NoError(t, err)
		assert.Equal(t, name, task.Type())
	}
	_, err := NewTask("mail:send")
	require.Error(t, err)
}

func TestBalanceWarmupUsesDefaultLimit(t *testing.T) {
	warmer := &stubWarmer{warmed: 4}
	job := NewBalanceWarmupJob(warmer, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewBalanceWarmupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 500, warmer.limit)

	task, err = NewBalanceWarmupTask(25)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 25, warmer.limit)
}

func TestBalanceWarmupPropagatesFailure(t *testing.T) {
	boom := errors.New("redis down")
	job := NewBalanceWarmupJob(&stubWarmer{err: boom}, quiet, nil)
	task, err := NewBalanceWarmupTask(1)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	warm := NewBalanceWarmupJob(&stubWarmer{}, quiet, nil)
	err := warm.Handle(context.Background(), asynq.NewTask(TaskBalanceWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	clean := NewIdempotencyCleanupJob(&stubPurger{}, time.Hour, quiet, nil)
	err = clean.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &stubPurger{removed: 9}
	job := NewIdempotencyCleanupJob(purger, 0, quiet, nil)
	assert.Equal(t, 72*time.Hour, job.Retention)

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 72*time.Hour, purger.olderThan)

	task, err = NewIdempotencyCleanupTask(90 * time.Minute)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 90*time.Minute, purger.olderThan)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(NewHandler(nil, quiet))
	require.Equal(t, http.StatusOK, rr.Code)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, QueueDefault, stats.Queue)

	rr = serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1}}, quiet))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Failed)

	rr = serve(NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, quiet))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
