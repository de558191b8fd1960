package app

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
)

// OpenCatalog returns the configured view catalog. With CATALOG_PATH and CATALOG_WATCH set
// the file is watched until ctx ends and onReload sees every accepted version. The returned
// stop func is never nil.
func OpenCatalog(ctx context.Context, cfg *Config, logger *slog.Logger, onReload func(*catalog.Catalog)) (catalog.Holder, func(), error) {
	noop := func() {}
	if cfg.CatalogPath == "" {
		c, err := catalog.Default()
		if err != nil {
			return nil, noop, err
		}
		return catalog.Static{C: c}, noop, nil
	}
	if !cfg.CatalogWatch {
		c, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, noop, err
		}
		return catalog.Static{C: c}, noop, nil
	}
	w, err := catalog.NewWatcher(cfg.CatalogPath, logger, onReload)
	if err != nil {
		return nil, noop, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, noop, err
	}
	logger.Info("watching catalog", slog.String("path", cfg.CatalogPath))
	return w, w.Stop, nil
}

// NewBackendClient builds the backend client for the configured tenant.
func NewBackendClient(cfg *Config, recorder backend.Recorder, logger *slog.Logger) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL:  cfg.BackendBaseURL,
		Token:    cfg.BackendToken,
		Timeout:  cfg.BackendTimeout,
		Retries:  cfg.BackendRetries,
		Recorder: recorder,
	}, logger)
}
