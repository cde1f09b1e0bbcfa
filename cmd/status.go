package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status and worker information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := queue.NewService(store, settings).Status(ctx, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Println("=== queuectl status ===")
			fmt.Println()
			fmt.Println("Job counts:")
			fmt.Printf("  Pending:    %d\n", st.Counts[core.StatePending])
			fmt.Printf("  Processing: %d\n", st.Counts[core.StateProcessing])
			fmt.Printf("  Completed:  %d\n", st.Counts[core.StateCompleted])
			fmt.Printf("  Failed:     %d\n", st.Counts[core.StateFailed])
			fmt.Printf("  Dead:       %d\n", st.Counts[core.StateDead])
			fmt.Printf("  DLQ:        %d\n", st.DLQ)
			fmt.Println()
			fmt.Printf("Active workers: %d\n", len(st.Workers))
			for _, w := range st.Workers {
				fmt.Printf("  %s (PID: %d, Host: %s)\n", w.WorkerID, w.PID, w.Hostname)
			}

			if len(st.RecentFailures) > 0 {
				fmt.Println()
				fmt.Println("Recent failures:")
				for _, j := range st.RecentFailures {
					lastError := ""
					if j.LastError != nil {
						lastError = truncate(*j.LastError, 50)
					}
					fmt.Printf("  %s: %s\n", j.ID, lastError)
				}
			}
			return nil
		},
	}
}
