package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/facilitydesk/internal/app"
	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	jobmetrics "github.com/odyssey-erp/facilitydesk/internal/jobs"
	"github.com/odyssey-erp/facilitydesk/internal/observability"
	"github.com/odyssey-erp/facilitydesk/internal/platform/cache"
	"github.com/odyssey-erp/facilitydesk/internal/platform/db"
	"github.com/odyssey-erp/facilitydesk/jobs"
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

	if err := db.Migrate(cfg.PGDSN, bulk.Migrations, bulk.MigrationsDir, logger); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	holder, stopCatalog, err := app.OpenCatalog(ctx, cfg, logger, func(c *catalog.Catalog) {
		logger.Info("catalog reloaded", slog.Int("views", len(c.Views)))
	})
	if err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer stopCatalog()

	metrics := observability.NewMetrics()
	taskMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	client, err := app.NewBackendClient(cfg, metrics, logger)
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}

	runner := bulk.NewRunner(bulk.RunnerConfig{
		Store:       bulk.NewPgStore(pool),
		Catalog:     holder,
		Backend:     client,
		Cache:       cache.NewPageCache(redisClient, cfg.PageCacheTTL),
		Metrics:     metrics,
		Concurrency: cfg.BulkConcurrency,
		Logger:      logger,
	})

	pruneTask, err := jobs.NewBulkPruneTask(cfg.BulkRetentionDays)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBulkRun, Handler: taskMetrics.Wrap(runner.Handle)},
			{Type: jobs.TaskBulkPrune, Handler: taskMetrics.Wrap(runner.Prune)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx, metricsServer, logger)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
