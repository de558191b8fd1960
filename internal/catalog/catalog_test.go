package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, []string{"assets", "amc", "tickets", "inventory", "grns", "parking", "surveys", "approvals", "documents"}, c.Names())
	require.Equal(t, listing.ResetKeepsApplied, c.ResetPolicy())

	tickets, err := c.View("tickets")
	require.NoError(t, err)
	require.Equal(t, backend.Envelope{Kind: "object", ItemsKey: "complaints", TotalPagesKey: "total_pages"}, tickets.ResponseEnvelope())
	require.Equal(t, "id", tickets.IDField)
	require.Zero(t, tickets.PageSize, "unset page size falls back to the configured default")

	_, err = c.View("nope")
	require.ErrorIs(t, err, ErrUnknownView)
}

func TestViewParamsAndActions(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assets, err := c.View("assets")
	require.NoError(t, err)

	params := assets.Params()
	require.Equal(t, "q[status_eq]", params["status"].Key)
	require.Equal(t, "q[created_at_gteq]", params["created"].From)
	require.Equal(t, "q[created_at_lteq]", params["created"].To)

	require.Equal(t, []listing.Action{listing.ActionMove, listing.ActionDispose, listing.ActionPrint, listing.ActionClear}, assets.BoundActions())
	ep, ok := assets.Endpoint(listing.ActionMove)
	require.True(t, ok)
	require.Equal(t, "pms/assets/42/move", ep.PathFor("42"))
	_, ok = assets.Endpoint(listing.ActionCheckIn)
	require.False(t, ok)
}

func TestViewDefaultsUseTrailingWindow(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	inv, err := c.View("inventory")
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	opts := c.Options(inv, now, false, nil, nil)
	got := opts.Defaults()["period"]
	require.NotNil(t, got.Range)
	require.Equal(t, "2025-03-15", got.Range.From.Format(listing.DateLayout))
	require.Equal(t, "2025-06-15", got.Range.To.Format(listing.DateLayout))
	require.Equal(t, "7", opts.ID(listing.Record{"id": "7"}))
}

func TestParseYAML(t *testing.T) {
	raw := []byte(`
reset_applies: true
views:
  - name: vendors
    resource: pms/suppliers
    columns:
      - key: company_name
    filters:
      - key: name
        kind: text
`)
	c, err := Parse(raw, ".yaml")
	require.NoError(t, err)
	require.Equal(t, listing.ResetApplies, c.ResetPolicy())
	v, err := c.View("vendors")
	require.NoError(t, err)
	require.Equal(t, "text", v.Columns[0].Format)
	require.Equal(t, "company_name", v.Columns[0].Label)
	require.Equal(t, backend.EnvelopeArray, v.Envelope)
}

func TestValidateCollectsProblems(t *testing.T) {
	raw := []byte(`
[[views]]
name = "Bad Name"
resource = ""
envelope = "object"

  [[views.columns]]
  key = "x"
  format = "currency:rupees"

  [[views.filters]]
  key = "status"
  kind = "select"

  [views.default_window]
  field = "status"
  months = 1

  [views.actions.move]
  method = "GET"
  path = "pms/assets/move"

  [views.actions.clear]
  method = "POST"
  path = "x/{id}"
`)
	_, err := Parse(raw, ".toml")
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"invalid name",
		"resource required",
		"needs items_key",
		"unknown format",
		"has no options",
		"default window",
		"unsupported method",
		"needs {id}",
		`action "clear" cannot be bound`,
	} {
		require.Contains(t, msg, want)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[[views]]\nname = \"a\"\nresourse = \"x\"\n"), ".toml")
	require.Error(t, err)
	_, err = Parse([]byte("{}"), ".json")
	require.Error(t, err)
}

func TestWatcherReloadsAndKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "views.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("views:\n  - name: one\n    resource: a\n    columns: [{key: id}]\n")

	reloaded := make(chan *Catalog, 4)
	w, err := NewWatcher(path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c *Catalog) { reloaded <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	write("views:\n  - name: two\n    resource: b\n    columns: [{key: id}]\n")
	select {
	case c := <-reloaded:
		require.Equal(t, []string{"two"}, c.Names())
	case <-time.After(3 * time.Second):
		t.Fatal("catalog not reloaded")
	}
	require.Equal(t, []string{"two"}, w.Current().Names())

	write("views: [")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{"two"}, w.Current().Names())
}
