package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
)

func newDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the Dead Letter Queue",
	}
	cmd.AddCommand(newDLQListCmd(), newDLQRetryCmd(), newDLQPurgeCmd())
	return cmd
}

func newDLQListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the Dead Letter Queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := queue.NewService(store, settings).ListDLQ(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No jobs in Dead Letter Queue")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "DLQ ID\tORIGINAL ID\tATTEMPTS\tCOMMAND\tMOVED AT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					truncate(e.ID, 20),
					truncate(e.OriginalJobID, 20),
					e.Attempts,
					truncate(e.Command, 30),
					e.MovedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of entries to show")
	return cmd
}

func newDLQRetryCmd() *cobra.Command {
	var sameID bool

	cmd := &cobra.Command{
		Use:   "retry JOB_ID",
		Short: "Retry a job from the Dead Letter Queue",
		Long: `Retry a job from the Dead Letter Queue.

Creates a fresh pending job with zero attempts and removes the DLQ entry.
By default the new job gets a new id; --same-id reuses the original job id
and fails if a job with that id still exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			newID, err := queue.NewService(store, settings).RetryDLQ(ctx, args[0], sameID)
			if err != nil {
				return err
			}
			fmt.Printf("Job retried successfully with ID: %s\n", newID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&sameID, "same-id", false, "Reuse the original job ID")
	return cmd
}

func newDLQPurgeCmd() *cobra.Command {
	var (
		olderThan int
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete jobs from the Dead Letter Queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !force {
				return fmt.Errorf("%w: purge requires --force for confirmation", core.ErrInvalidSpec)
			}

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var days *int
			if cmd.Flags().Changed("older-than") {
				if olderThan < 0 {
					return fmt.Errorf("%w: --older-than must not be negative", core.ErrInvalidSpec)
				}
				days = &olderThan
			}

			removed, err := queue.NewService(store, settings).PurgeDLQ(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d DLQ entries\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 0, "Purge entries older than N days (all entries when omitted)")
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the purge operation")
	return cmd
}
