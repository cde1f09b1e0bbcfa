// Package cmd wires the queuectl command tree. Commands are thin: they parse
// arguments, call into the queue service or supervisor, and format results.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/config"
	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

var rootCmd = &cobra.Command{
	Use:     "queuectl",
	Short:   "A CLI-based persistent background job queue",
	Version: core.Version,
	Long: `queuectl enqueues shell commands as durable background jobs, processes
them with a pool of worker processes, retries failures with exponential
backoff, and quarantines permanently-failed jobs in a Dead Letter Queue.

Examples:
  queuectl enqueue '{"command": "echo hello"}'
  queuectl worker start --count 2
  queuectl status
  queuectl dlq list`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code: 0 on success, 2
// for validation, duplicate-id and not-found errors, 1 for everything else.
func Execute() int {
	rootCmd.AddCommand(
		newEnqueueCmd(),
		newListCmd(),
		newStatusCmd(),
		newWorkerCmd(),
		newDLQCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if core.IsUsageError(err) {
			return 2
		}
		return 1
	}
	return 0
}

// openEnv opens the store and loads the effective settings. The db_path key
// lives in the database itself, so the store is bootstrapped from the
// default path and reopened when an override points elsewhere.
func openEnv(ctx context.Context) (*storage.Store, config.Settings, error) {
	store, err := storage.Open(config.DefaultDBPath)
	if err != nil {
		return nil, config.Settings{}, err
	}

	settings, err := config.NewRegistry(store).Load(ctx)
	if err != nil {
		store.Close()
		return nil, config.Settings{}, err
	}

	if settings.DBPath != config.DefaultDBPath {
		store.Close()
		store, err = storage.Open(settings.DBPath)
		if err != nil {
			return nil, config.Settings{}, err
		}
	}
	return store, settings, nil
}

// openBootstrap opens the store at the default path without following a
// db_path override. Config commands use it so the db_path key itself stays
// readable and writable from one well-known place.
func openBootstrap() (*storage.Store, error) {
	return storage.Open(config.DefaultDBPath)
}

// truncate shortens s for fixed-width table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
