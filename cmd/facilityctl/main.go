package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/facilitydesk/cmd/facilityctl/cli"
	"github.com/odyssey-erp/facilitydesk/internal/app"
	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/internal/console"
	"github.com/odyssey-erp/facilitydesk/internal/platform/db"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	setup := func(ctx context.Context) (*cli.App, error) {
		a, release, err := newApp(ctx)
		closers = append(closers, release)
		return a, err
	}

	err := cli.NewRootCommand(setup, os.Stdout).ExecuteContext(ctx)
	for _, c := range closers {
		c()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "facilityctl:", err)
		os.Exit(1)
	}
}

// newApp wires the commands to the configured backend. Logs go to stderr so they never mix
// with command output.
func newApp(ctx context.Context) (*cli.App, func(), error) {
	cfg, err := app.LoadToolConfig()
	if err != nil {
		return nil, func() {}, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Commands are short lived; the catalog is read once.
	once := *cfg
	once.CatalogWatch = false
	holder, stopCatalog, err := app.OpenCatalog(ctx, &once, logger, nil)
	if err != nil {
		return nil, func() {}, fmt.Errorf("load catalog: %w", err)
	}
	client, err := app.NewBackendClient(cfg, nil, logger)
	if err != nil {
		stopCatalog()
		return nil, func() {}, err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var (
		mu        sync.Mutex
		inspector *asynq.Inspector
		pool      *pgxpool.Pool
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		if inspector != nil {
			_ = inspector.Close()
		}
		if pool != nil {
			pool.Close()
		}
		stopCatalog()
	}

	return &cli.App{
		Catalog: holder,
		Build: console.NewFactory(console.ControllerConfig{
			Client:          client,
			Catalog:         holder,
			RetainSelection: cfg.SelectionRetain,
			PageSize:        cfg.ListPageSize,
			Logger:          logger,
		}),
		Render: render.Options{Locale: cfg.Locale, Location: cfg.Location()},
		Queues: func() (jobs.QueueInspector, error) {
			mu.Lock()
			defer mu.Unlock()
			if inspector == nil {
				inspector = asynq.NewInspector(redisOpts)
			}
			return inspector, nil
		},
		Jobs: func(ctx context.Context) (console.JobReader, error) {
			mu.Lock()
			defer mu.Unlock()
			if pool == nil {
				p, err := db.New(ctx, cfg.PGDSN)
				if err != nil {
					return nil, err
				}
				pool = p
			}
			return bulk.NewPgStore(pool), nil
		},
		Migrate: func() error {
			return db.Migrate(cfg.PGDSN, bulk.Migrations, bulk.MigrationsDir, logger)
		},
		Browse: func(m tea.Model) error {
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}, release, nil
}
