package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/platform/httpx"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/internal/shared"
	"github.com/odyssey-erp/facilitydesk/internal/view"
)

// JobReader reads bulk job progress.
type JobReader interface {
	GetJob(ctx context.Context, id string) (bulk.Job, error)
	ListItems(ctx context.Context, jobID string) ([]bulk.ItemResult, error)
}

// HandlerConfig groups the dependencies of Handler.
type HandlerConfig struct {
	Logger    *slog.Logger
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Catalog   catalog.Holder
	Registry  *Registry
	Jobs      JobReader
	Render    render.Options
}

// Handler serves the list pages.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	catalog   catalog.Holder
	registry  *Registry
	jobs      JobReader
	render    render.Options
}

// NewHandler constructs the console handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		logger:    cfg.Logger,
		templates: cfg.Templates,
		csrf:      cfg.CSRF,
		catalog:   cfg.Catalog,
		registry:  cfg.Registry,
		jobs:      cfg.Jobs,
		render:    cfg.Render,
	}
}

// MountRoutes registers the view routes, normally under /views.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showIndex)
	r.Route("/{view}", func(r chi.Router) {
		r.Get("/", h.showList)
		r.Get("/filters", h.showFilters)
		r.Post("/filters", h.handleFilters)
		r.Post("/selection", h.handleSelection)
		r.Post("/actions/{action}", h.handleAction)
	})
}

// MountJobRoutes registers the job status page, normally under /jobs.
func (h *Handler) MountJobRoutes(r chi.Router) {
	r.Get("/{id}", h.showJob)
}

type indexPageData struct {
	Views []catalog.View
}

type appliedFilter struct {
	Label string
	Value string
}

type listPageData struct {
	Table   render.TableModel
	Applied []appliedFilter
	Panel   listing.PanelState
}

type filtersPageData struct {
	View         string
	Title        string
	Inputs       []filterInput
	ResetApplies bool
	Error        string
}

type jobPageData struct {
	Job   bulk.Job
	View  string
	Title string
	Items []bulk.ItemResult
}

type selectionState struct {
	Count    int      `json:"count"`
	IDs      []string `json:"ids"`
	Visible  bool     `json:"visible"`
	Selected bool     `json:"selected"`
}

func (h *Handler) showIndex(w http.ResponseWriter, r *http.Request) {
	cat := h.catalog.Current()
	h.renderPage(w, r, http.StatusOK, "pages/index.html", "Lists", "", indexPageData{Views: cat.Views})
}

func (h *Handler) showList(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	ctrl, fresh := h.registry.Mount(sess.ID, v)
	snap := ctrl.Snapshot()

	// After a failed filter change the query points at page 1 of the new filters.
	target := max(snap.Query.Page, 1)
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			target = n
		}
	}
	stale := h.registry.TakeStale(sess.ID)
	refresh := stale || r.URL.Query().Get("refresh") != ""

	var err error
	switch {
	case refresh && snap.Loaded && target == snap.Page.Page:
		_, err = ctrl.Refresh(r.Context())
	case fresh || refresh || !snap.Loaded || snap.Err != nil || target != snap.Page.Page:
		_, err = ctrl.Load(r.Context(), target)
	}
	if err != nil && !errors.Is(err, listing.ErrSuperseded) {
		h.logger.Warn("list load failed",
			slog.String("view", v.Name),
			slog.Int("page", target),
			slog.Any("error", err))
	}
	h.renderList(w, r, v, ctrl.Snapshot())
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, v catalog.View, snap listing.Snapshot[listing.Record]) {
	shown := snap.Applied
	if snap.Loaded {
		shown = snap.Shown
	}
	data := listPageData{
		Table:   render.Table(v, snap, h.render),
		Applied: appliedFilters(snap.Fields, shown),
		Panel:   snap.Panel,
	}
	h.renderPage(w, r, http.StatusOK, "pages/list.html", v.Title, v.Name, data)
}

func (h *Handler) showFilters(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	ctrl, _ := h.registry.Mount(sess.ID, v)
	snap := ctrl.Snapshot()
	h.renderFilters(w, r, v, filterInputs(snap.Fields, snap.Draft, nil), "", http.StatusOK)
}

func (h *Handler) renderFilters(w http.ResponseWriter, r *http.Request, v catalog.View, inputs []filterInput, message string, status int) {
	data := filtersPageData{
		View:         v.Name,
		Title:        v.Title,
		Inputs:       inputs,
		ResetApplies: h.catalog.Current().ResetApplies,
		Error:        message,
	}
	h.renderPage(w, r, status, "pages/filters.html", "Filter "+v.Title, v.Name, data)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	ctrl, _ := h.registry.Mount(sess.ID, v)

	switch r.PostFormValue("op") {
	case "cancel":
		ctrl.CancelFilters()
		http.Redirect(w, r, listURL(v.Name, 0), http.StatusSeeOther)
	case "reset":
		if _, err := ctrl.ResetFilters(r.Context()); err != nil && !errors.Is(err, listing.ErrSuperseded) {
			h.logger.Warn("reset filters", slog.String("view", v.Name), slog.Any("error", err))
		}
		if h.catalog.Current().ResetApplies {
			http.Redirect(w, r, listURL(v.Name, 0), http.StatusSeeOther)
			return
		}
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "Defaults restored. Apply them to update the list."})
		http.Redirect(w, r, filtersURL(v.Name), http.StatusSeeOther)
	case "apply", "":
		snap := ctrl.Snapshot()
		values, problems := parseFilters(r.PostForm, snap.Fields)
		for key, val := range values {
			if err := ctrl.SetFilter(key, val); err != nil {
				problems[key] = "is not a filter of this list"
			}
		}
		if len(problems) > 0 {
			h.rejectFilters(w, r, v, ctrl, problems)
			return
		}
		_, err := ctrl.ApplyFilters(r.Context())
		var verr *listing.ValidationError
		if errors.As(err, &verr) {
			h.rejectFilters(w, r, v, ctrl, verr.Fields)
			return
		}
		if err != nil && !errors.Is(err, listing.ErrSuperseded) {
			h.logger.Warn("apply filters", slog.String("view", v.Name), slog.Any("error", err))
		}
		http.Redirect(w, r, listURL(v.Name, 0), http.StatusSeeOther)
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	}
}

// rejectFilters re-renders the dialog with field messages. The applied filters and the
// loaded page are untouched; fields whose input could not be parsed keep the raw input.
func (h *Handler) rejectFilters(w http.ResponseWriter, r *http.Request, v catalog.View, ctrl *listing.Controller[listing.Record], problems map[string]string) {
	snap := ctrl.Snapshot()
	inputs := filterInputs(snap.Fields, snap.Draft, problems)
	for i, in := range inputs {
		if in.Error == "" || in.Kind != string(listing.FieldDateRange) {
			continue
		}
		inputs[i].From = r.PostFormValue(in.Key + "_from")
		inputs[i].To = r.PostFormValue(in.Key + "_to")
	}
	h.renderFilters(w, r, v, inputs, shared.UserSafeMessage(&listing.ValidationError{Fields: problems}), http.StatusUnprocessableEntity)
}

func (h *Handler) handleSelection(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	ctrl, mounted := h.registry.Lookup(sess.ID, v.Name)
	if !mounted {
		if wantsJSON(r) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "the list is no longer open")
			return
		}
		http.Redirect(w, r, listURL(v.Name, 0), http.StatusSeeOther)
		return
	}

	var (
		on  bool
		err error
	)
	switch r.PostFormValue("op") {
	case "toggle":
		on, err = ctrl.Toggle(r.PostFormValue("id"))
	case "all":
		ctrl.SelectAll()
		on = true
	case "clear":
		ctrl.ClearSelection()
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	snap := ctrl.Snapshot()
	if wantsJSON(r) {
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, selectionState{
			Count:    snap.Panel.Count,
			IDs:      snap.Selected,
			Visible:  snap.Panel.Visible,
			Selected: on,
		})
		return
	}
	if err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: shared.UserSafeMessage(err)})
	}
	http.Redirect(w, r, listURL(v.Name, snap.Page.Page), http.StatusSeeOther)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	action, err := listing.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "That action is not available for this list.")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	ctrl, mounted := h.registry.Lookup(sess.ID, v.Name)
	if !mounted {
		http.Redirect(w, r, listURL(v.Name, 0), http.StatusSeeOther)
		return
	}
	snap := ctrl.Snapshot()

	jobID, err := ctrl.Dispatch(r.Context(), action, actionParams(r.PostForm))
	if err != nil {
		h.logger.Warn("dispatch action",
			slog.String("view", v.Name),
			slog.String("action", string(action)),
			slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "danger", Message: shared.UserSafeMessage(err)})
		http.Redirect(w, r, listURL(v.Name, snap.Page.Page), http.StatusSeeOther)
		return
	}
	if action == listing.ActionClear {
		http.Redirect(w, r, listURL(v.Name, snap.Page.Page), http.StatusSeeOther)
		return
	}
	sess.AddFlash(shared.FlashMessage{
		Kind:    "success",
		Message: fmt.Sprintf("%s queued for %d %s.", action.Label(), snap.Panel.Count, plural(snap.Panel.Count, "item", "items")),
	})
	http.Redirect(w, r, "/jobs/"+url.PathEscape(jobID), http.StatusSeeOther)
}

func (h *Handler) showJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, bulk.ErrJobNotFound) {
			if wantsJSON(r) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "job not found")
				return
			}
			h.renderError(w, r, http.StatusNotFound, "That job does not exist.")
			return
		}
		h.logger.Error("load job", slog.String("job_id", id), slog.Any("error", err))
		h.renderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	items, err := h.jobs.ListItems(r.Context(), id)
	if err != nil {
		h.logger.Error("load job items", slog.String("job_id", id), slog.Any("error", err))
		h.renderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"job": job, "items": items})
		return
	}
	data := jobPageData{Job: job, View: job.Request.View, Title: job.Request.View, Items: items}
	if v, err := h.catalog.Current().View(job.Request.View); err == nil {
		data.Title = v.Title
	}
	h.renderPage(w, r, http.StatusOK, "pages/job.html", data.Title+" job", data.View, data)
}

func (h *Handler) lookupView(w http.ResponseWriter, r *http.Request) (catalog.View, bool) {
	v, err := h.catalog.Current().View(chi.URLParam(r, "view"))
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "That list does not exist.")
		return catalog.View{}, false
	}
	return v, true
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.renderPage(w, r, status, "pages/error.html", http.StatusText(status), "", map[string]any{
		"Status":  status,
		"Message": message,
	})
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name, title, active string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Nav:         h.nav(active),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) nav(active string) []view.NavItem {
	cat := h.catalog.Current()
	items := make([]view.NavItem, 0, len(cat.Views))
	for _, v := range cat.Views {
		items = append(items, view.NavItem{Name: v.Name, Title: v.Title, Active: v.Name == active})
	}
	return items
}

func appliedFilters(fields []listing.Field, applied listing.Filters) []appliedFilter {
	out := make([]appliedFilter, 0, len(applied))
	for _, f := range fields {
		v, ok := applied[f.Key]
		if !ok || v.IsZero() {
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Key
		}
		text := v.Text
		if v.Range != nil {
			from, to := isoDate(v.Range.From), isoDate(v.Range.To)
			switch {
			case from == "":
				text = "until " + to
			case to == "":
				text = "from " + from
			default:
				text = from + " to " + to
			}
		}
		out = append(out, appliedFilter{Label: label, Value: text})
	}
	return out
}

func listURL(name string, page int) string {
	u := "/views/" + url.PathEscape(name)
	if page > 1 {
		u += "?page=" + strconv.Itoa(page)
	}
	return u
}

func filtersURL(name string) string {
	return "/views/" + url.PathEscape(name) + "/filters"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
