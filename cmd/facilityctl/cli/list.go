package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/internal/tui"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func (r *root) viewsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "views",
		Short: "List the configured views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			cat := app.Catalog.Current()
			if asJSON {
				return r.printJSON(cat.Views)
			}
			t := newTable("VIEW", "TITLE", "RESOURCE", "ACTIONS")
			for _, v := range cat.Views {
				acts := make([]string, 0, len(v.Actions))
				for _, a := range v.BoundActions() {
					acts = append(acts, string(a))
				}
				t.Row(v.Name, v.Title, v.Resource, strings.Join(acts, ", "))
			}
			_, err = fmt.Fprintln(r.out, t.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

type listOptions struct {
	page    int
	filters []string
	from    string
	to      string
	asJSON  bool
}

func (r *root) listCommand() *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list <view>",
		Short: "Print one page of a view",
		Example: `  facilityctl list assets --filter status=breakdown
  facilityctl list tickets --from 2024-01-01 --to 2024-01-31 --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			return r.runList(cmd.Context(), app, args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.page, "page", 1, "page to print")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "filter as key=value; date ranges take from..to")
	cmd.Flags().StringVar(&opts.from, "from", "", "start date for the view's date range filter")
	cmd.Flags().StringVar(&opts.to, "to", "", "end date for the view's date range filter")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the page as JSON")
	return cmd
}

func (r *root) runList(ctx context.Context, app *App, name string, opts listOptions) error {
	if opts.page < 1 {
		return fmt.Errorf("--page must be positive, got %d", opts.page)
	}
	v, err := app.Catalog.Current().View(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	ctrl := app.Build(v)
	defer ctrl.Close()

	pairs := append([]string(nil), opts.filters...)
	if opts.from != "" || opts.to != "" {
		key, ok := dateRangeField(v)
		if !ok {
			return fmt.Errorf("view %s has no date range filter for --from/--to", v.Name)
		}
		pairs = append(pairs, key+"="+opts.from+".."+opts.to)
	}
	values, err := tui.ParseAssignments(ctrl.Snapshot().Fields, pairs)
	if err != nil {
		return err
	}
	for key, val := range values {
		if err := ctrl.SetFilter(key, val); err != nil {
			return err
		}
	}

	lp, err := ctrl.ApplyFiltersAt(ctx, opts.page)
	if err != nil {
		var verr *listing.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid filters: %s", verr.Summary())
		}
		return err
	}
	if opts.asJSON {
		return r.printJSON(lp)
	}

	model := render.Table(v, ctrl.Snapshot(), app.Render)
	if model.Empty {
		_, err := fmt.Fprintln(r.out, model.EmptyMessage)
		return err
	}
	headers := make([]string, 0, len(model.Columns))
	for _, c := range model.Columns {
		headers = append(headers, strings.ToUpper(c.Label))
	}
	t := newTable(headers...)
	for _, row := range model.Rows {
		t.Row(row.Cells...)
	}
	pages := fmt.Sprintf("%d", model.Pages)
	if !model.Settled {
		pages = "at least " + pages
	}
	_, err = fmt.Fprintf(r.out, "%s\nPage %d of %s · about %d rows\n", t.String(), model.Page, pages, model.TotalEstimate)
	return err
}

func dateRangeField(v catalog.View) (string, bool) {
	for _, f := range v.Filters {
		if f.Kind == string(listing.FieldDateRange) {
			return f.Key, true
		}
	}
	return "", false
}

func (r *root) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse <view>",
		Short: "Browse a view interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			v, err := app.Catalog.Current().View(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			ctrl := app.Build(v)
			defer ctrl.Close()
			return app.Browse(tui.New(cmd.Context(), v, ctrl, app.Render))
		},
	}
}
