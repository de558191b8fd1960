// Package cli implements the facilityctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/console"
	"github.com/odyssey-erp/facilitydesk/internal/render"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

// App carries what the commands operate on. Connections to Redis and Postgres are opened
// on first use so commands that do not need them work without.
type App struct {
	Catalog catalog.Holder
	Build   console.Factory
	Render  render.Options
	Queues  func() (jobs.QueueInspector, error)
	Jobs    func(ctx context.Context) (console.JobReader, error)
	Migrate func() error
	// Browse runs an interactive program; tests replace it.
	Browse func(m tea.Model) error
}

// Setup builds the App for a command invocation.
type Setup func(ctx context.Context) (*App, error)

type root struct {
	setup Setup
	out   io.Writer

	once sync.Once
	app  *App
	err  error
}

func (r *root) load(cmd *cobra.Command) (*App, error) {
	r.once.Do(func() {
		r.app, r.err = r.setup(cmd.Context())
	})
	return r.app, r.err
}

// NewRootCommand assembles the command tree. out receives command output; nil means
// standard output.
func NewRootCommand(setup Setup, out io.Writer) *cobra.Command {
	if out == nil {
		out = os.Stdout
	}
	r := &root{setup: setup, out: out}

	cmd := &cobra.Command{
		Use:           "facilityctl",
		Short:         "Browse facility list views and manage bulk jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.AddCommand(
		r.viewsCommand(),
		r.listCommand(),
		r.browseCommand(),
		r.jobsCommand(),
		r.migrateCommand(),
	)
	return cmd
}

func (r *root) printJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *root) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending bulk job migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			if err := app.Migrate(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(r.out, "migrations applied")
			return err
		},
	}
}
