package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/console"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/internal/tui"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

const cliCatalog = `
[[views]]
name = "assets"
title = "Assets"
resource = "pms/assets"
page_size = 5

  [[views.columns]]
  key = "name"
  label = "Name"

  [[views.columns]]
  key = "status"
  label = "Status"
  format = "status"

  [[views.filters]]
  key = "status"
  label = "Status"
  kind = "select"
  options = ["in_use", "breakdown"]

  [[views.filters]]
  key = "created"
  label = "Created"
  kind = "date_range"

  [views.actions.move]
  method = "POST"
  path = "pms/assets/{id}/move"

[[views]]
name = "surveys"
title = "Surveys"
resource = "pms/surveys"

  [[views.columns]]
  key = "title"
  label = "Title"
`

type assetsBackend struct {
	mu    sync.Mutex
	last  url.Values
	calls int
}

func (b *assetsBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b.mu.Lock()
	b.last = q
	b.calls++
	b.mu.Unlock()
	var all []map[string]any
	for i := 1; i <= 7; i++ {
		status := "in_use"
		if i%2 == 0 {
			status = "breakdown"
		}
		if want := q.Get("status"); want != "" && want != status {
			continue
		}
		all = append(all, map[string]any{"id": fmt.Sprintf("A-%02d", i), "name": fmt.Sprintf("Chiller %d", i), "status": status})
	}
	page, _ := strconv.Atoi(q.Get("page"))
	per, _ := strconv.Atoi(q.Get("per_page"))
	out := []map[string]any{}
	for i := (page - 1) * per; i >= 0 && i < len(all) && i < page*per; i++ {
		out = append(out, all[i])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (b *assetsBackend) query() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *assetsBackend) fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type queueStub map[string]*asynq.QueueInfo

func (q queueStub) GetQueueInfo(name string) (*asynq.QueueInfo, error) {
	info, ok := q[name]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

type jobsStub struct {
	job   bulk.Job
	items []bulk.ItemResult
}

func (s jobsStub) GetJob(ctx context.Context, id string) (bulk.Job, error) {
	if id != s.job.ID {
		return bulk.Job{}, bulk.ErrJobNotFound
	}
	return s.job, nil
}

func (s jobsStub) ListItems(ctx context.Context, jobID string) ([]bulk.ItemResult, error) {
	return s.items, nil
}

type fixture struct {
	app     *App
	backend *assetsBackend
	out     *bytes.Buffer
	browsed tea.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	be := &assetsBackend{}
	mux := http.NewServeMux()
	mux.Handle("/pms/assets.json", be)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := backend.New(backend.Config{BaseURL: srv.URL}, logger)
	require.NoError(t, err)
	cat, err := catalog.Parse([]byte(cliCatalog), ".toml")
	require.NoError(t, err)
	holder := catalog.Static{C: cat}

	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	f := &fixture{backend: be, out: new(bytes.Buffer)}
	f.app = &App{
		Catalog: holder,
		Build:   console.NewFactory(console.ControllerConfig{Client: client, Catalog: holder, Logger: logger}),
		Render:  render.Options{Locale: "en-IN", Location: time.UTC},
		Queues: func() (jobs.QueueInspector, error) {
			return queueStub{jobs.QueueBulk: {Queue: jobs.QueueBulk, Pending: 2, Active: 1}}, nil
		},
		Jobs: func(ctx context.Context) (console.JobReader, error) {
			return jobsStub{
				job: bulk.Job{
					ID:        "job-1",
					Request:   bulk.Request{View: "assets", Resource: "pms/assets", Action: listing.ActionMove, IDs: []string{"A-01", "A-02"}},
					Status:    bulk.StatusFailed,
					Total:     2,
					Succeeded: 1,
					Failed:    1,
					Error:     "1 of 2 items failed",
					CreatedAt: at,
					UpdatedAt: at,
				},
				items: []bulk.ItemResult{
					{JobID: "job-1", ItemID: "A-01", OK: true, At: at},
					{JobID: "job-1", ItemID: "A-02", Error: "asset is locked", At: at},
				},
			}, nil
		},
		Migrate: func() error { return nil },
		Browse: func(m tea.Model) error {
			f.browsed = m
			return nil
		},
	}
	return f
}

func (f *fixture) run(args ...string) error {
	setup := func(context.Context) (*App, error) { return f.app, nil }
	cmd := NewRootCommand(setup, f.out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestViewsCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("views"))
	out := f.out.String()
	require.Contains(t, out, "assets")
	require.Contains(t, out, "pms/surveys")
	require.Contains(t, out, "move")

	f.out.Reset()
	require.NoError(t, f.run("views", "--json"))
	var views []catalog.View
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &views))
	require.Len(t, views, 2)
}

func TestListCommandPrintsPage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("list", "assets"))
	out := f.out.String()
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "Chiller 1")
	require.Contains(t, out, "Chiller 5")
	require.NotContains(t, out, "Chiller 6")
	require.Contains(t, out, "Page 1 of at least 2 · about 10 rows")
}

func TestListCommandLastPageAndFilters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("list", "assets", "--page", "2"))
	require.Contains(t, f.out.String(), "Page 2 of 2 · about 10 rows")
	require.Equal(t, 1, f.backend.fetches())
	require.Equal(t, "2", f.backend.query().Get("page"))

	f.out.Reset()
	require.NoError(t, f.run("list", "assets", "--filter", "status=breakdown", "--json"))
	var page listing.ListPage[listing.Record]
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &page))
	require.Len(t, page.Items, 3)
	require.Equal(t, "breakdown", f.backend.query().Get("status"))
}

func TestListCommandRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.run("list", "nope"), catalog.ErrUnknownView)
	require.ErrorIs(t, f.run("list", "assets", "--filter", "colour=red"), listing.ErrUnknownField)
	require.ErrorContains(t, f.run("list", "assets", "--from", "2024-03-01", "--to", "2024-01-01"), "invalid filters: created:")
	require.ErrorContains(t, f.run("list", "surveys", "--from", "2024-03-01"), "no date range filter")
	require.ErrorContains(t, f.run("list", "assets", "--page", "0"), "--page must be positive")
}

func TestBrowseCommandStartsModel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("browse", "assets"))
	_, ok := f.browsed.(tui.Model)
	require.True(t, ok)
}

func TestJobsCommands(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("jobs", "stats", "--json"))
	var stats []jobs.QueueStats
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &stats))
	require.Equal(t, []jobs.QueueStats{{Queue: jobs.QueueBulk, Pending: 2, Active: 1}, {Queue: jobs.QueueDefault}}, stats)

	f.out.Reset()
	require.NoError(t, f.run("jobs", "show", "job-1"))
	out := f.out.String()
	require.Contains(t, out, "Job job-1: Move 2 item(s) of pms/assets (view assets)")
	require.Contains(t, out, "1 succeeded · 1 failed")
	require.Contains(t, out, "asset is locked")

	err := f.run("jobs", "show", "job-9")
	require.ErrorContains(t, err, "job job-9 not found")
}

func TestSetupErrorIsReturned(t *testing.T) {
	boom := errors.New("no config")
	cmd := NewRootCommand(func(context.Context) (*App, error) { return nil, boom }, io.Discard)
	cmd.SetArgs([]string{"views"})
	require.ErrorIs(t, cmd.Execute(), boom)
}

func TestMigrateCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run("migrate"))
	require.Contains(t, f.out.String(), "migrations applied")
}
