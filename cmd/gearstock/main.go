package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/trekgear/gearstock/cmd/gearstock/cli"
	"github.com/trekgear/gearstock/internal/app"
	"github.com/trekgear/gearstock/internal/catalog"
	"github.com/trekgear/gearstock/internal/observability"
	"github.com/trekgear/gearstock/internal/platform/cache"
	"github.com/trekgear/gearstock/internal/platform/db"
	"github.com/trekgear/gearstock/internal/receiving"
	"github.com/trekgear/gearstock/jobs"
	"github.com/trekgear/gearstock/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		ops := cli.NewJobsCLI(cfg.RedisAddr)
		code := cli.RunJobsCommand(ctx, ops, os.Args[2:], os.Stdout, os.Stderr)
		if closeErr := ops.Close(); closeErr != nil {
			logger.Warn("jobs cli close", slog.Any("error", closeErr))
		}
		os.Exit(code)
	default:
		logger.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		return err
	}
	defer pool.Close()
	return migrations.Apply(ctx, pool, logger)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := cache.New(ctx, cfg.RedisAddr, logger)
	defer cache.Close(redisClient, logger)

	metrics := observability.NewMetrics()
	receivingMetrics := observability.NewReceivingMetrics(metrics.Registerer())

	catalogSource := catalog.NewCachedSource(catalog.NewRepository(pool), redisClient, cfg.CatalogCacheTTL, logger)
	receivingService := receiving.NewService(receiving.NewRepository(pool), catalogSource, logger, receivingMetrics, receiving.Config{
		MaxAttempts:  cfg.ReceivingMaxAttempts,
		RetryBackoff: cfg.ReceivingRetryBackoff,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ReceivingHandler: receiving.NewHandler(logger, receivingService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		DB:               pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
