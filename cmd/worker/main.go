package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trekgear/gearstock/internal/app"
	"github.com/trekgear/gearstock/internal/catalog"
	jobmetrics "github.com/trekgear/gearstock/internal/jobs"
	"github.com/trekgear/gearstock/internal/platform/cache"
	"github.com/trekgear/gearstock/internal/platform/db"
	"github.com/trekgear/gearstock/internal/receiving"
	"github.com/trekgear/gearstock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := cache.New(ctx, cfg.RedisAddr, logger)
	defer cache.Close(redisClient, logger)

	metrics := jobmetrics.NewMetrics(nil)
	catalogSource := catalog.NewCachedSource(catalog.NewRepository(pool), redisClient, cfg.CatalogCacheTTL, logger)
	receivingService := receiving.NewService(receiving.NewRepository(pool), catalogSource, logger, nil, receiving.Config{
		MaxAttempts:  cfg.ReceivingMaxAttempts,
		RetryBackoff: cfg.ReceivingRetryBackoff,
	})

	auditJob := jobs.NewStockAuditJob(receivingService, redislock.New(redisClient), logger, metrics)
	recomputeJob := jobs.NewOrderRecomputeJob(receivingService, catalogSource, logger, metrics)

	auditTask, err := jobs.NewStockAuditTask("cron")
	if err != nil {
		logger.Error("build stock audit task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskOrderRecompute, Handler: recomputeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	logger.Info("worker started", slog.String("stock_audit_cron", cfg.StockAuditCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
