package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/trekgear/gearstock/jobs"
)

type stubOps struct {
	recomputed []int64
	stats      jobs.QueueSnapshot
	err        error
}

func (s *stubOps) TriggerStockAudit(ctx context.Context) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "a1", Type: "receiving:stock_audit"}, nil
}

func (s *stubOps) RecomputeOrders(ctx context.Context, orderIDs ...int64) (*asynq.TaskInfo, error) {
	s.recomputed = append(s.recomputed, orderIDs...)
	return &asynq.TaskInfo{ID: "r1", Type: "receiving:order_recompute"}, nil
}

func (s *stubOps) InspectQueue(ctx context.Context) (jobs.QueueSnapshot, error) {
	return s.stats, s.err
}

func run(ops JobOps, args ...string) (int, string, string) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := RunJobsCommand(context.Background(), ops, args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func TestJobsAudit(t *testing.T) {
	code, out, _ := run(&stubOps{}, "audit")
	require.Equal(t, 0, code)
	require.Contains(t, out, "receiving:stock_audit")

	code, _, errOut := run(&stubOps{err: errors.New("redis down")}, "audit")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "redis down")

	code, out, _ = run(&stubOps{err: jobs.ErrAuditPending}, "audit")
	require.Equal(t, 0, code)
	require.Contains(t, out, "already queued")
}

func TestJobsRecompute(t *testing.T) {
	ops := &stubOps{}
	code, out, _ := run(ops, "recompute", "-orders", "4, 9,12")
	require.Equal(t, 0, code)
	require.Equal(t, []int64{4, 9, 12}, ops.recomputed)
	require.Contains(t, out, "for 3 orders")

	code, _, errOut := run(ops, "recompute", "-orders", "4,x")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, `invalid order id "x"`)

	code, _, _ = run(ops, "recompute")
	require.Equal(t, 2, code)
}

func TestJobsQueueJSON(t *testing.T) {
	ops := &stubOps{stats: jobs.QueueSnapshot{Queue: "default", Pending: 3}}
	code, out, _ := run(ops, "queue", "-json")
	require.Equal(t, 0, code)
	var stats jobs.QueueSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 3, stats.Pending)
}

func TestJobsUnknownCommand(t *testing.T) {
	code, _, errOut := run(&stubOps{}, "purge")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "usage: gearstock jobs")

	code, _, _ = run(&stubOps{})
	require.Equal(t, 2, code)
}
