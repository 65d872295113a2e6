package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/trekgear/gearstock/internal/jobs"
	"github.com/trekgear/gearstock/internal/receiving"
)

// OrderRecomputer rebuilds the cached status of one order.
type OrderRecomputer interface {
	RecomputeOrderStatus(ctx context.Context, orderID int64) (receiving.OrderStatusRecord, error)
}

// CatalogInvalidator drops cached catalog data of an order.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, orderID int64, itemIDs ...int64) error
}

// OrderRecomputeJob refreshes order statuses after manual data fixes. The
// catalog cache of each order is dropped first so edited lines are seen.
type OrderRecomputeJob struct {
	Recomputer  OrderRecomputer
	Catalog     CatalogInvalidator
	Concurrency int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewOrderRecomputeJob wires the recompute handler.
func NewOrderRecomputeJob(recomputer OrderRecomputer, catalog CatalogInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrderRecomputeJob {
	return &OrderRecomputeJob{Recomputer: recomputer, Catalog: catalog, Concurrency: 4, Logger: logger, Metrics: metrics}
}

// Handle recomputes every order in the payload. Orders are independent, so a
// failure on one does not stop the others; the task is retried if any failed.
func (j *OrderRecomputeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Recomputer == nil {
		return errors.New("order recompute: handler not configured")
	}
	var payload OrderRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || len(payload.OrderIDs) == 0 {
		return asynq.SkipRetry
	}
	logger := j.logger()
	tracker := j.metrics().Track(TaskOrderRecompute)

	limit := j.Concurrency
	if limit <= 0 {
		limit = 1
	}
	errs := make([]error, len(payload.OrderIDs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, orderID := range payload.OrderIDs {
		i, orderID := i, orderID
		g.Go(func() error {
			if j.Catalog != nil {
				if err := j.Catalog.Invalidate(ctx, orderID); err != nil {
					logger.Warn("catalog invalidate failed", slog.Int64("order_id", orderID), slog.Any("error", err))
				}
			}
			rec, err := j.Recomputer.RecomputeOrderStatus(ctx, orderID)
			if errors.Is(err, receiving.ErrNotFound) {
				logger.Warn("order recompute skipped, unknown order", slog.Int64("order_id", orderID))
				return nil
			}
			if err != nil {
				errs[i] = fmt.Errorf("order %d: %w", orderID, err)
				logger.Error("order recompute failed", slog.Int64("order_id", orderID), slog.Any("error", err))
				return nil
			}
			logger.Info("order status recomputed",
				slog.Int64("order_id", orderID),
				slog.String("status", string(rec.Status)),
				slog.Float64("received_percent", rec.ReceivedPercent))
			return nil
		})
	}
	_ = g.Wait()
	return tracker.End(errors.Join(errs...))
}

func (j *OrderRecomputeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOrderRecompute))
	}
	return slog.Default().With(slog.String("job", TaskOrderRecompute))
}

func (j *OrderRecomputeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
