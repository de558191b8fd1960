package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/facilitydesk/internal/console"
	"github.com/odyssey-erp/facilitydesk/internal/observability"
	"github.com/odyssey-erp/facilitydesk/internal/shared"
	"github.com/odyssey-erp/facilitydesk/internal/view"
	"github.com/odyssey-erp/facilitydesk/jobs"
	"github.com/odyssey-erp/facilitydesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Console        *console.Handler
	API            *console.API
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with the console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static files skip the session, CSRF and rate limiting stack.
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	// The JSON API is stateless and carries its own CORS policy, so it stays outside the
	// session stack.
	if params.API != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(chimw.Logger)
			if params.Metrics != nil {
				r.Use(params.Metrics.Middleware)
			}
			params.API.MountRoutes(r)
		})
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/views", http.StatusSeeOther)
		})
		r.Route("/views", params.Console.MountRoutes)
		r.Route("/jobs", func(r chi.Router) {
			if params.JobHandler != nil {
				params.JobHandler.MountRoutes(r)
			}
			params.Console.MountJobRoutes(r)
		})
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
