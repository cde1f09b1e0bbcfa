package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
	"github.com/krishnasharma4415/QueueCTL/pkg/supervisor"
	"github.com/krishnasharma4415/QueueCTL/pkg/worker"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage worker processes that execute jobs",
	}
	cmd.AddCommand(newWorkerStartCmd(), newWorkerStopCmd(), newWorkerRunCmd())
	return cmd
}

func newWorkerStartCmd() *cobra.Command {
	var (
		count          int
		detach         bool
		pollIntervalMS int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start worker processes to execute jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pollInterval := settings.PollInterval
			if cmd.Flags().Changed("poll-interval-ms") {
				pollInterval = time.Duration(pollIntervalMS) * time.Millisecond
			}

			// Put jobs stranded by crashed workers back in play before the
			// new fleet starts claiming.
			recovered, err := queue.NewService(store, settings).RecoverOrphans(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if recovered > 0 {
				fmt.Printf("Recovered %d stale jobs from previous workers\n", recovered)
			}

			if detach {
				fmt.Printf("Starting %d worker processes in background\n", count)
			} else {
				fmt.Printf("Starting %d worker processes (Press Ctrl+C to stop)\n", count)
			}
			return supervisor.New(store, settings.DBPath).Start(ctx, count, pollInterval, detach)
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "Number of worker processes to start")
	cmd.Flags().BoolVar(&detach, "detach", false, "Run workers in background")
	cmd.Flags().IntVar(&pollIntervalMS, "poll-interval-ms", 0, "Polling interval in milliseconds")
	return cmd
}

func newWorkerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop all running worker processes gracefully",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := supervisor.New(store, settings.DBPath).Stop(ctx); err != nil {
				return err
			}
			fmt.Println("All workers stopped")
			return nil
		},
	}
}

// newWorkerRunCmd is the hidden per-process entry point the supervisor
// spawns; it hosts exactly one worker runtime in the foreground.
func newWorkerRunCmd() *cobra.Command {
	var pollIntervalMS int

	cmd := &cobra.Command{
		Use:    "run",
		Short:  "Run a single worker in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("poll-interval-ms") {
				settings.PollInterval = time.Duration(pollIntervalMS) * time.Millisecond
			}

			service := queue.NewService(store, settings)
			w := worker.New(store, service, settings)

			logger, closer, err := worker.NewProcessLogger(settings.LogDir, w.ID())
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			slog.SetDefault(logger)
			service.WithLogger(logger)
			w.WithLogger(logger)

			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&pollIntervalMS, "poll-interval-ms", 0, "Polling interval in milliseconds")
	return cmd
}
