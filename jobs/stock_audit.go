package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/trekgear/gearstock/internal/jobs"
	"github.com/trekgear/gearstock/internal/receiving"
)

const stockAuditLockKey = "gearstock:lock:stock_audit"

// StockAuditor lists items whose balance disagrees with the ledger.
type StockAuditor interface {
	AuditStock(ctx context.Context) ([]receiving.StockDrift, error)
}

// StockAuditJob reports stock drift. It never corrects balances.
type StockAuditJob struct {
	Auditor StockAuditor
	Locker  *redislock.Client
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockAuditJob wires the audit handler. A nil locker disables the
// cross-worker lock.
func NewStockAuditJob(auditor StockAuditor, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAuditJob {
	return &StockAuditJob{Auditor: auditor, Locker: locker, LockTTL: 5 * time.Minute, Logger: logger, Metrics: metrics}
}

// Handle runs one audit.
func (j *StockAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Auditor == nil {
		return errors.New("stock audit: handler not configured")
	}
	var payload StockAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.logger().With(slog.String("trigger", payload.Trigger))

	tracker := j.metrics().Track(TaskStockAudit)
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, stockAuditLockKey, j.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("stock audit already running elsewhere, skipping")
			tracker.Skip()
			return nil
		}
		if err != nil {
			return tracker.End(fmt.Errorf("stock audit: obtain lock: %w", err))
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release stock audit lock", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	drift, err := j.Auditor.AuditStock(ctx)
	if err != nil {
		logger.Error("stock audit failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, d := range drift {
		logger.Warn("stock drift detected",
			slog.Int64("item_id", d.ItemID),
			slog.Int64("current_stock", d.CurrentStock),
			slog.Int64("ledger_net", d.LedgerNet))
	}
	j.metrics().SetStockDrift(len(drift))
	logger.Info("stock audit completed",
		slog.Int("drift_items", len(drift)),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *StockAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockAudit))
	}
	return slog.Default().With(slog.String("job", TaskStockAudit))
}

func (j *StockAuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
