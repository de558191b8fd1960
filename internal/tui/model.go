// Package tui is a terminal browser for one list view.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/render"
)

const helpText = "j/k move · space toggle · a all · c clear · n/p page · / filter · r reset · ctrl+r refresh · q quit"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// loadedMsg reports the end of a controller load.
type loadedMsg struct {
	err error
}

// Controller is the list view the model drives.
type Controller interface {
	Load(ctx context.Context, page int) (listing.ListPage[listing.Record], error)
	Refresh(ctx context.Context) (listing.ListPage[listing.Record], error)
	Next(ctx context.Context) (listing.ListPage[listing.Record], error)
	Prev(ctx context.Context) (listing.ListPage[listing.Record], error)
	SetFilter(key string, v listing.Value) error
	CancelFilters()
	ApplyFilters(ctx context.Context) (listing.ListPage[listing.Record], error)
	ResetFilters(ctx context.Context) (listing.ListPage[listing.Record], error)
	Toggle(id string) (bool, error)
	SelectAll()
	ClearSelection()
	Snapshot() listing.Snapshot[listing.Record]
	Close()
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx   context.Context
	view  catalog.View
	ctrl  Controller
	opts  render.Options
	table table.Model
	input textinput.Model

	filtering bool
	loading   bool // a load command is out; the controller may not have started it yet
	snap      listing.Snapshot[listing.Record]
	rendered  render.TableModel
	message   string
	quitting  bool
}

// New builds a model for v. Loads run under ctx.
func New(ctx context.Context, v catalog.View, ctrl Controller, opts render.Options) Model {
	cols := make([]table.Column, 0, len(v.Columns)+1)
	cols = append(cols, table.Column{Title: " ", Width: 3})
	for _, c := range v.Columns {
		cols = append(cols, table.Column{Title: c.Label, Width: columnWidth(c.Label)})
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	in := textinput.New()
	in.Placeholder = "status=in_use, created=2024-01-01..2024-03-31"
	in.CharLimit = 200
	in.Width = 60

	m := Model{ctx: ctx, view: v, ctrl: ctrl, opts: opts, table: t, input: in}
	m.refresh()
	return m
}

func columnWidth(label string) int {
	return min(max(len(label)+2, 10), 28)
}

// Init loads the first page.
func (m Model) Init() tea.Cmd {
	return m.run(func(ctx context.Context) error {
		_, err := m.ctrl.Load(ctx, 1)
		return err
	})
}

// start marks the model loading and returns the command running fn.
func (m *Model) start(fn func(ctx context.Context) error) tea.Cmd {
	m.loading = true
	return m.run(fn)
}

func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return loadedMsg{err: fn(ctx)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		var verr *listing.ValidationError
		switch {
		case errors.Is(msg.err, listing.ErrSuperseded), errors.Is(msg.err, listing.ErrClosed):
			// A newer load owns the screen.
			return m, nil
		case errors.As(msg.err, &verr):
			m.message = "Invalid filters: " + verr.Summary()
		default:
			m.message = ""
		}
		m.loading = false
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.ctrl.Close()
		return m, tea.Quit
	case "j", "down":
		m.table.MoveDown(1)
	case "k", "up":
		m.table.MoveUp(1)
	case " ":
		if id, ok := m.cursorID(); ok {
			if _, err := m.ctrl.Toggle(id); err != nil {
				m.message = err.Error()
			}
		}
	case "a":
		m.ctrl.SelectAll()
	case "c":
		m.ctrl.ClearSelection()
	case "n":
		cmd := m.start(func(ctx context.Context) error {
			_, err := m.ctrl.Next(ctx)
			return err
		})
		return m, cmd
	case "p":
		cmd := m.start(func(ctx context.Context) error {
			_, err := m.ctrl.Prev(ctx)
			return err
		})
		return m, cmd
	case "r":
		cmd := m.start(func(ctx context.Context) error {
			_, err := m.ctrl.ResetFilters(ctx)
			return err
		})
		return m, cmd
	case "ctrl+r":
		cmd := m.start(func(ctx context.Context) error {
			_, err := m.ctrl.Refresh(ctx)
			return err
		})
		return m, cmd
	case "/":
		m.filtering = true
		m.message = ""
		m.input.SetValue(FormatFilters(m.snap.Fields, m.snap.Draft))
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.input.Blur()
		m.ctrl.CancelFilters()
		m.refresh()
		return m, nil
	case "enter":
		values, err := ParseLine(m.snap.Fields, m.input.Value())
		if err != nil {
			m.message = err.Error()
			return m, nil
		}
		// Fields left out of the line are cleared.
		for _, f := range m.snap.Fields {
			if err := m.ctrl.SetFilter(f.Key, values[f.Key]); err != nil {
				m.message = err.Error()
				return m, nil
			}
		}
		m.filtering = false
		m.input.Blur()
		cmd := m.start(func(ctx context.Context) error {
			_, err := m.ctrl.ApplyFilters(ctx)
			return err
		})
		m.refresh()
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) cursorID() (string, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rendered.Rows) {
		return "", false
	}
	return m.rendered.Rows[i].ID, true
}

// refresh copies the controller state into the table.
func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.rendered = render.Table(m.view, m.snap, m.opts)
	rows := make([]table.Row, 0, len(m.rendered.Rows))
	for _, r := range m.rendered.Rows {
		mark := "[ ]"
		if r.Selected {
			mark = "[x]"
		}
		rows = append(rows, append(table.Row{mark}, r.Cells...))
	}
	m.table.SetRows(rows)
	// The table parks the cursor at -1 while it has no rows.
	switch c := m.table.Cursor(); {
	case c < 0 && len(rows) > 0:
		m.table.SetCursor(0)
	case c >= len(rows):
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.rendered.Title))
	shown := m.snap.Applied
	if m.snap.Loaded {
		shown = m.snap.Shown
	}
	if applied := FormatFilters(m.snap.Fields, shown); applied != "" {
		sb.WriteString("  " + mutedStyle.Render(applied))
	}
	sb.WriteString("\n\n")

	switch {
	case !m.snap.Loaded:
		sb.WriteString(mutedStyle.Render("Loading…"))
	case m.rendered.Empty:
		sb.WriteString(mutedStyle.Render(m.rendered.EmptyMessage))
	default:
		sb.WriteString(m.table.View())
	}
	sb.WriteString("\n\n")

	if m.filtering {
		sb.WriteString(promptStyle.Render(m.input.View()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.StatusLine())
	sb.WriteString("\n")
	if m.message != "" {
		sb.WriteString(errorStyle.Render(m.message) + "\n")
	} else if m.rendered.Error != "" {
		sb.WriteString(errorStyle.Render(m.rendered.Error) + "\n")
	}
	sb.WriteString(mutedStyle.Render(helpText))
	return sb.String()
}

// StatusLine summarises paging and selection.
func (m Model) StatusLine() string {
	t := m.rendered
	pages := fmt.Sprintf("%d", t.Pages)
	if !t.Settled {
		pages = "at least " + pages
	}
	line := fmt.Sprintf("Page %d of %s · about %d rows · %d selected", t.Page, pages, t.TotalEstimate, t.SelectedCount)
	if t.Loading || m.loading {
		line += " · loading"
	}
	return line
}
