package render

import (
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/shared"
)

// DefaultEmptyMessage is shown for an empty page when the view declares none.
const DefaultEmptyMessage = "No data available for the selected range"

// Header is one rendered column heading.
type Header struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Row is one rendered table row.
type Row struct {
	ID       string
	Cells    []string
	Selected bool
}

// TableModel is everything a list template needs.
type TableModel struct {
	View          string
	Title         string
	Columns       []Header
	Rows          []Row
	Empty         bool
	EmptyMessage  string
	Page          int
	Pages         int
	Settled       bool
	PageSize      int
	HasPrev       bool
	HasNext       bool
	TotalEstimate int
	SelectedCount int
	AllSelected   bool
	Actions       []listing.Action
	Loading       bool
	Error         string
}

// Options tunes Table.
type Options struct {
	Locale   string
	Location *time.Location
}

// Table renders a view snapshot.
func Table(v catalog.View, snap listing.Snapshot[listing.Record], opts Options) TableModel {
	f := NewFormatter(opts.Locale, opts.Location)
	id := listing.RecordID(v.IDField)

	selected := make(map[string]bool, len(snap.Selected))
	for _, s := range snap.Selected {
		selected[s] = true
	}

	m := TableModel{
		View:          v.Name,
		Title:         v.Title,
		Columns:       make([]Header, 0, len(v.Columns)),
		Rows:          make([]Row, 0, len(snap.Page.Items)),
		Page:          snap.Page.Page,
		Pages:         snap.Estimate.Pages,
		Settled:       snap.Estimate.Settled,
		PageSize:      snap.Page.PageSize,
		HasPrev:       snap.HasPrev(),
		HasNext:       snap.HasNext(),
		TotalEstimate: snap.Page.TotalCountEstimate(),
		SelectedCount: len(snap.Selected),
		Loading:       snap.Status == listing.StatusLoading,
		Actions:       v.BoundActions(),
	}
	if m.Page < 1 {
		m.Page = 1
	}
	for _, c := range v.Columns {
		m.Columns = append(m.Columns, Header{Key: c.Key, Label: c.Label})
	}

	onPage := 0
	for _, item := range snap.Page.Items {
		rowID := id(item)
		row := Row{ID: rowID, Selected: selected[rowID], Cells: make([]string, 0, len(v.Columns))}
		for _, c := range v.Columns {
			row.Cells = append(row.Cells, f.Cell(item, c.Key, c.Format))
		}
		if row.Selected {
			onPage++
		}
		m.Rows = append(m.Rows, row)
	}
	m.AllSelected = len(m.Rows) > 0 && onPage == len(m.Rows)

	if snap.Loaded && len(m.Rows) == 0 {
		m.Empty = true
		m.EmptyMessage = v.EmptyMessage
		if m.EmptyMessage == "" {
			m.EmptyMessage = DefaultEmptyMessage
		}
	}
	if snap.Err != nil {
		m.Error = shared.UserSafeMessage(snap.Err)
	}
	return m
}
