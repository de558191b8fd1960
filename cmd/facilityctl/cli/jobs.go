package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/facilitydesk/internal/bulk"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

func (r *root) jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect bulk action jobs",
	}
	cmd.AddCommand(r.jobsStatsCommand(), r.jobsShowCommand())
	return cmd
}

func (r *root) jobsStatsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth for the bulk and default queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			inspector, err := app.Queues()
			if err != nil {
				return err
			}
			stats, err := jobs.InspectQueues(inspector)
			if err != nil {
				return fmt.Errorf("inspect queues: %w", err)
			}
			if asJSON {
				return r.printJSON(stats)
			}
			t := newTable("QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED")
			for _, s := range stats {
				t.Row(s.Queue, itoa(s.Pending), itoa(s.Active), itoa(s.Scheduled), itoa(s.Retry), itoa(s.Archived))
			}
			_, err = fmt.Fprintln(r.out, t.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print stats as JSON")
	return cmd
}

type jobReport struct {
	Job   bulk.Job          `json:"job"`
	Items []bulk.ItemResult `json:"items"`
}

func (r *root) jobsShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a bulk job and its item outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.load(cmd)
			if err != nil {
				return err
			}
			store, err := app.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			job, err := store.GetJob(cmd.Context(), args[0])
			if errors.Is(err, bulk.ErrJobNotFound) {
				return fmt.Errorf("job %s not found", args[0])
			}
			if err != nil {
				return err
			}
			items, err := store.ListItems(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return r.printJSON(jobReport{Job: job, Items: items})
			}

			_, _ = fmt.Fprintf(r.out, "Job %s: %s %d item(s) of %s (view %s)\n",
				job.ID, job.Request.Action.Label(), job.Total, job.Request.Resource, job.Request.View)
			_, _ = fmt.Fprintf(r.out, "Status %s · %d succeeded · %d failed · updated %s\n",
				job.Status, job.Succeeded, job.Failed, job.UpdatedAt.Format(time.RFC3339))
			if job.Error != "" {
				_, _ = fmt.Fprintf(r.out, "Error: %s\n", job.Error)
			}
			if len(items) == 0 {
				return nil
			}
			t := newTable("ITEM", "RESULT", "ERROR")
			for _, it := range items {
				result := "ok"
				if !it.OK {
					result = "failed"
				}
				t.Row(it.ItemID, result, it.Error)
			}
			_, err = fmt.Fprintln(r.out, t.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job as JSON")
	return cmd
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
