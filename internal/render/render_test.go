package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestFormatterCells(t *testing.T) {
	f := NewFormatter("en-IN", ist)
	rec := listing.Record{
		"purchased_on": "2026-03-05",
		"updated_at":   "2026-03-05T10:00:00Z",
		"qty":          json.Number("1234"),
		"cost":         json.Number("1234.5"),
		"state":        "in_progress",
		"active":       true,
		"flag":         "false",
		"name":         "Chiller 2",
		"vendor":       map[string]any{"name": "Acme"},
	}

	cases := []struct {
		key, format, want string
	}{
		{"purchased_on", "date", "05 Mar 2026"},
		{"updated_at", "datetime", "05 Mar 2026 15:30"},
		{"qty", "number", "1,234"},
		{"cost", "currency:INR", "INR 1,234.50"},
		{"state", "status", "In Progress"},
		{"active", "bool", "Yes"},
		{"flag", "bool", "No"},
		{"name", "", "Chiller 2"},
		{"vendor.name", "text", "Acme"},
		{"missing", "text", "-"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, f.Cell(rec, tc.key, tc.format), "%s as %q", tc.key, tc.format)
	}
}

func TestFormatterUnknownLocaleFallsBack(t *testing.T) {
	f := NewFormatter("not a locale", nil)
	assert.Equal(t, "INR 10.00", f.Cell(listing.Record{"v": 10.0}, "v", "currency:INR"))
	assert.Equal(t, "10.00", f.Cell(listing.Record{"v": 10.0}, "v", "currency:???"))
}

func assetView() catalog.View {
	return catalog.View{
		Name:     "assets",
		Title:    "Assets",
		Resource: "pms/assets",
		IDField:  "id",
		Columns: []catalog.Column{
			{Key: "name", Label: "Name"},
			{Key: "state", Label: "State", Format: "status"},
		},
		Actions: map[string]catalog.Endpoint{
			"move": {Method: "PUT", Path: "pms/assets/{id}/move"},
		},
	}
}

func TestTableRowsAndSelection(t *testing.T) {
	snap := listing.Snapshot[listing.Record]{
		Loaded: true,
		Page: listing.ListPage[listing.Record]{
			Items: []listing.Record{
				{"id": "A-1", "name": "Pump", "state": "active"},
				{"id": "A-2", "name": "Lift", "state": "under_repair"},
			},
			Page:                2,
			PageSize:            2,
			EstimatedTotalPages: 3,
		},
		Estimate: listing.Estimation{Pages: 3},
		Selected: []string{"A-1", "A-2"},
	}

	m := Table(assetView(), snap, Options{Locale: "en", Location: time.UTC})
	require.Len(t, m.Rows, 2)
	assert.Equal(t, []string{"Lift", "Under Repair"}, m.Rows[1].Cells)
	assert.True(t, m.Rows[0].Selected)
	assert.True(t, m.AllSelected)
	assert.Equal(t, 2, m.SelectedCount)
	assert.True(t, m.HasPrev)
	assert.True(t, m.HasNext)
	assert.Equal(t, 6, m.TotalEstimate)
	assert.Equal(t, []listing.Action{listing.ActionMove, listing.ActionClear}, m.Actions)
	assert.False(t, m.Empty)
	assert.Empty(t, m.Error)
}

func TestTableEmptyMessage(t *testing.T) {
	snap := listing.Snapshot[listing.Record]{
		Loaded: true,
		Page:   listing.ListPage[listing.Record]{Items: []listing.Record{}, Page: 1, PageSize: 15},
	}

	m := Table(assetView(), snap, Options{})
	assert.True(t, m.Empty)
	assert.Equal(t, DefaultEmptyMessage, m.EmptyMessage)
	assert.False(t, m.HasNext)

	v := assetView()
	v.EmptyMessage = "No stock movements in this window"
	m = Table(v, snap, Options{})
	assert.Equal(t, "No stock movements in this window", m.EmptyMessage)
}

func TestTableKeepsLastPageOnError(t *testing.T) {
	snap := listing.Snapshot[listing.Record]{
		Loaded: true,
		Page: listing.ListPage[listing.Record]{
			Items:    []listing.Record{{"id": "A-1", "name": "Pump"}},
			Page:     1,
			PageSize: 15,
		},
		Err: &listing.FetchError{Resource: "pms/assets", Status: 503},
	}

	m := Table(assetView(), snap, Options{})
	require.Len(t, m.Rows, 1)
	assert.Equal(t, "The server failed to load the list. Showing the last loaded page.", m.Error)
}

func TestTableBeforeFirstLoad(t *testing.T) {
	m := Table(assetView(), listing.Snapshot[listing.Record]{Status: listing.StatusLoading}, Options{})
	assert.Equal(t, 1, m.Page)
	assert.False(t, m.Empty)
	assert.True(t, m.Loading)
}
