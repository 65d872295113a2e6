package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/trekgear/gearstock/internal/jobs"
	"github.com/trekgear/gearstock/internal/receiving"
)

type stubAuditor struct {
	calls int
	drift []receiving.StockDrift
	err   error
}

func (s *stubAuditor) AuditStock(ctx context.Context) ([]receiving.StockDrift, error) {
	s.calls++
	return s.drift, s.err
}

type stubRecomputer struct {
	mu   sync.Mutex
	seen []int64
	fail map[int64]error
}

func (s *stubRecomputer) RecomputeOrderStatus(ctx context.Context, orderID int64) (receiving.OrderStatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, orderID)
	if err := s.fail[orderID]; err != nil {
		return receiving.OrderStatusRecord{}, err
	}
	return receiving.OrderStatusRecord{OrderID: orderID, Status: receiving.OrderStatusPending}, nil
}

func newLocker(t *testing.T) (*redislock.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client), mr
}

func TestNewOrderRecomputeTaskValidates(t *testing.T) {
	_, err := NewOrderRecomputeTask()
	require.Error(t, err)
	_, err = NewOrderRecomputeTask(3, 0)
	require.Error(t, err)

	task, err := NewOrderRecomputeTask(3, 4)
	require.NoError(t, err)
	require.Equal(t, TaskOrderRecompute, task.Type())
	var payload OrderRecomputePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, []int64{3, 4}, payload.OrderIDs)
}

func TestStockAuditReportsDrift(t *testing.T) {
	locker, _ := newLocker(t)
	auditor := &stubAuditor{drift: []receiving.StockDrift{{ItemID: 9, CurrentStock: 4, LedgerNet: 5}}}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewStockAuditJob(auditor, locker, slog.Default(), metrics)

	task, err := NewStockAuditTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, auditor.calls)
}

func TestStockAuditSkipsWhenLocked(t *testing.T) {
	locker, _ := newLocker(t)
	auditor := &stubAuditor{}
	job := NewStockAuditJob(auditor, locker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	held, err := locker.Obtain(context.Background(), stockAuditLockKey, job.LockTTL, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	task, err := NewStockAuditTask("manual")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, auditor.calls)
}

func TestStockAuditPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewStockAuditJob(&stubAuditor{err: boom}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewStockAuditTask("manual")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestStockAuditRejectsBadPayload(t *testing.T) {
	job := NewStockAuditJob(&stubAuditor{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStockAudit, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOrderRecomputeRunsEveryOrder(t *testing.T) {
	boom := errors.New("conflict")
	rec := &stubRecomputer{fail: map[int64]error{2: boom}}
	inv := &stubInvalidator{}
	job := NewOrderRecomputeJob(rec, inv, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewOrderRecomputeTask(1, 2, 3)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	assert.ElementsMatch(t, []int64{1, 2, 3}, rec.seen)
	assert.ElementsMatch(t, []int64{1, 2, 3}, inv.orders)

	rec.fail = nil
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestOrderRecomputeSkipsUnknownOrders(t *testing.T) {
	rec := &stubRecomputer{fail: map[int64]error{5: fmt.Errorf("order 5: %w", receiving.ErrNotFound)}}
	job := NewOrderRecomputeJob(rec, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewOrderRecomputeTask(4, 5)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.ElementsMatch(t, []int64{4, 5}, rec.seen)
}

type stubInvalidator struct {
	mu     sync.Mutex
	orders []int64
}

func (s *stubInvalidator) Invalidate(ctx context.Context, orderID int64, itemIDs ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, orderID)
	return nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{
		Queue: "default", Pending: 2, Retry: 1, Archived: 4, Latency: 1500 * time.Millisecond,
	}}, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pending)
	assert.Equal(t, 1, body.Retry)
	assert.Equal(t, 4, body.Archived)
	assert.Equal(t, int64(1500), body.LatencyMS)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Paused: true}}, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSnapshotEmptyQueue(t *testing.T) {
	snap, err := Snapshot(stubInspector{})
	require.NoError(t, err)
	assert.Equal(t, QueueSnapshot{Queue: QueueDefault}, snap)
}

func TestNewWorkerValidatesRegistrations(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	noop := func(context.Context, *asynq.Task) error { return nil }

	_, err := NewWorker(WorkerConfig{RedisOpts: opts})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{
		{Type: TaskStockAudit, Handler: noop},
		{Type: TaskStockAudit, Handler: noop},
	}})
	require.ErrorContains(t, err, "duplicate handler")

	task, err := NewStockAuditTask("cron")
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: opts,
		Handlers:  []TaskHandler{{Type: TaskStockAudit, Handler: noop}},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.ErrorContains(t, err, TaskStockAudit)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: opts,
		Handlers:  []TaskHandler{{Type: TaskStockAudit, Handler: noop}},
		Cron:      []CronRegistration{{Spec: "30 2 * * *", Task: task}},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)
}

func TestTaskErrorHandlerLogsOnlyFinalFailure(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	task := asynq.NewTask(TaskStockAudit, nil)

	taskErrorHandler(logger)(context.Background(), task, asynq.SkipRetry)
	assert.Contains(t, buf.String(), "task archived")
	assert.Contains(t, buf.String(), TaskStockAudit)
}
