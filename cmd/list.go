package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

func newListCmd() *cobra.Command {
	var (
		state string
		limit int
		since string
		sort  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs with optional filtering and sorting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := storage.ListOptions{Limit: limit, Sort: sort}
			if state != "" {
				st := core.JobState(state)
				if !st.Valid() {
					return fmt.Errorf("%w: unknown state %q", core.ErrInvalidSpec, state)
				}
				opts.State = st
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("%w: --since %q is not an ISO-8601 timestamp", core.ErrInvalidSpec, since)
				}
				opts.Since = &t
			}

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := queue.NewService(store, settings).List(ctx, opts)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tPRIORITY\tATTEMPTS\tCOMMAND\tCREATED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					truncate(j.ID, 20),
					j.State,
					j.Priority,
					j.Attempts,
					truncate(j.Command, 30),
					j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by job state (pending, processing, completed, failed, dead)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of jobs to show")
	cmd.Flags().StringVar(&since, "since", "", "Show jobs created since ISO-8601 time")
	cmd.Flags().StringVar(&sort, "sort", "created_at", "Sort by field (created_at, updated_at, priority)")
	return cmd
}
