package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// auditUniqueWindow keeps manual triggers from piling up audits behind a slow one.
const auditUniqueWindow = 10 * time.Minute

// ErrAuditPending is returned when an audit is already queued.
var ErrAuditPending = errors.New("jobs: stock audit already queued")

// Client enqueues receiving tasks.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueStockAudit queues an immediate stock audit.
func (c *Client) EnqueueStockAudit(ctx context.Context, trigger string) (*asynq.TaskInfo, error) {
	task, err := NewStockAuditTask(trigger)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Unique(auditUniqueWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, ErrAuditPending
	}
	return info, err
}

// EnqueueOrderRecompute queues a status rebuild for orderIDs.
func (c *Client) EnqueueOrderRecompute(ctx context.Context, orderIDs ...int64) (*asynq.TaskInfo, error) {
	task, err := NewOrderRecomputeTask(orderIDs...)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(5*time.Minute))
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
