package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/trekgear/gearstock/jobs"
)

// JobsCLI wraps manual management helpers for receiving jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// TriggerStockAudit enqueues an out-of-schedule stock audit.
func (c *JobsCLI) TriggerStockAudit(ctx context.Context) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueStockAudit(ctx, "manual")
}

// RecomputeOrders enqueues a status rebuild for the given orders.
func (c *JobsCLI) RecomputeOrders(ctx context.Context, orderIDs ...int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueOrderRecompute(ctx, orderIDs...)
}

// InspectQueue reports the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueSnapshot, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueSnapshot{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.Snapshot(c.inspector)
}
