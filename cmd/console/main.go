package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/facilitydesk/internal/app"
	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/console"
	"github.com/odyssey-erp/facilitydesk/internal/observability"
	"github.com/odyssey-erp/facilitydesk/internal/platform/cache"
	"github.com/odyssey-erp/facilitydesk/internal/platform/db"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/internal/shared"
	"github.com/odyssey-erp/facilitydesk/internal/view"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping console startup")
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

	sessionManager := shared.NewSessionManager(redisClient, "facilitydesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("load templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	// Mounted views pick up a changed definition on their next request.
	holder, stopCatalog, err := app.OpenCatalog(ctx, cfg, logger, func(c *catalog.Catalog) {
		logger.Info("catalog reloaded", slog.Int("views", len(c.Views)))
	})
	if err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer stopCatalog()

	client, err := app.NewBackendClient(cfg, metrics, logger)
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}
	pages := cache.NewPageCache(redisClient, cfg.PageCacheTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	store := bulk.NewPgStore(pool)
	dispatcher := bulk.NewDispatcher(store, queue, logger)

	factory := console.NewFactory(console.ControllerConfig{
		Client:          client,
		Pages:           pages,
		Catalog:         holder,
		Actions:         dispatcher,
		Observer:        metrics,
		RetainSelection: cfg.SelectionRetain,
		PageSize:        cfg.ListPageSize,
		Logger:          logger,
	})
	registry := console.NewRegistry(factory, cfg.SessionTTL)
	registry.OnChange(metrics.SetActiveViews)
	go registry.Run(ctx)

	if err := pages.Subscribe(ctx, func(resource string, version int64) {
		if n := registry.Invalidate(resource); n > 0 {
			logger.Info("list views marked stale",
				slog.String("resource", resource), slog.Int64("version", version), slog.Int("views", n))
		}
	}); err != nil {
		logger.Warn("subscribe cache bumps", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Console: console.NewHandler(console.HandlerConfig{
			Logger:    logger,
			Templates: templates,
			CSRF:      csrfManager,
			Catalog:   holder,
			Registry:  registry,
			Jobs:      store,
			Render:    render.Options{Locale: cfg.Locale, Location: cfg.Location()},
		}),
		API:        console.NewAPI(logger, holder, factory, cfg.AllowedOrigins()),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	if err := app.Serve(ctx, server, logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		registry.Close()
		os.Exit(1)
	}
}
