package console

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/platform/httpx"
	"github.com/odyssey-erp/facilitydesk/internal/render"
)

// API serves read-only JSON pages. Every request builds its own controller, so the API
// holds no per-client state.
type API struct {
	logger  *slog.Logger
	catalog catalog.Holder
	build   Factory
	origins []string
}

// NewAPI constructs the JSON API. origins lists the CORS origins allowed to read it.
func NewAPI(logger *slog.Logger, holder catalog.Holder, build Factory, origins []string) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{logger: logger, catalog: holder, build: build, origins: origins}
}

type apiView struct {
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	Resource string          `json:"resource"`
	Columns  []render.Header `json:"columns"`
	Actions  []string        `json:"actions"`
}

type apiPage struct {
	View                string           `json:"view"`
	Page                int              `json:"page"`
	PageSize            int              `json:"page_size"`
	EstimatedTotalPages int              `json:"estimated_total_pages"`
	Settled             bool             `json:"settled"`
	HasMore             bool             `json:"has_more"`
	TotalEstimate       int              `json:"total_estimate"`
	Filters             listing.Filters  `json:"filters"`
	Items               []listing.Record `json:"items"`
}

// MountRoutes registers the API routes, normally under /api.
func (a *API) MountRoutes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/views", a.listViews)
	r.Get("/views/{view}", a.getPage)
}

func (a *API) listViews(w http.ResponseWriter, r *http.Request) {
	cat := a.catalog.Current()
	out := make([]apiView, 0, len(cat.Views))
	for _, v := range cat.Views {
		item := apiView{Name: v.Name, Title: v.Title, Resource: v.Resource}
		for _, c := range v.Columns {
			item.Columns = append(item.Columns, render.Header{Key: c.Key, Label: c.Label})
		}
		for _, act := range v.BoundActions() {
			item.Actions = append(item.Actions, string(act))
		}
		out = append(out, item)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"views": out})
}

func (a *API) getPage(w http.ResponseWriter, r *http.Request) {
	v, err := a.catalog.Current().View(chi.URLParam(r, "view"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown view")
		return
	}
	query := r.URL.Query()
	page := 1
	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "page must be a positive integer")
			return
		}
		page = n
	}

	ctrl := a.build(v)
	defer ctrl.Close()

	fields := ctrl.Snapshot().Fields
	values, problems := parseFilters(query, fields)
	if len(problems) > 0 {
		httpx.RespondError(w, &listing.ValidationError{Fields: problems})
		return
	}
	for key, val := range values {
		if err := ctrl.SetFilter(key, val); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	lp, err := ctrl.ApplyFiltersAt(r.Context(), page)
	if err != nil {
		if !errors.Is(err, listing.ErrValidation) {
			a.logger.Warn("api page failed", slog.String("view", v.Name), slog.Int("page", page), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	snap := ctrl.Snapshot()
	httpx.JSON(w, http.StatusOK, apiPage{
		View:                v.Name,
		Page:                lp.Page,
		PageSize:            lp.PageSize,
		EstimatedTotalPages: lp.EstimatedTotalPages,
		Settled:             snap.Estimate.Settled,
		HasMore:             lp.HasMore,
		TotalEstimate:       lp.TotalCountEstimate(),
		Filters:             snap.Shown,
		Items:               lp.Items,
	})
}
