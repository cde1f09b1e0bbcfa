package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		file       string
		command    string
		jobID      string
		priority   int
		maxRetries int
		timeout    int
		runAt      string
	)

	cmd := &cobra.Command{
		Use:   "enqueue [JOB_SPEC]",
		Short: "Enqueue a new job for processing",
		Long: `Enqueue a new job for processing.

JOB_SPEC is a JSON string containing job details. Use --file to read the
specification from a file, or --command with optional flags instead.

Examples:
  queuectl enqueue '{"command": "echo hello world"}'
  queuectl enqueue --file job.json
  queuectl enqueue --command "echo hello" --id my-job --max-retries 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			methods := 0
			if file != "" {
				methods++
			}
			if len(args) == 1 {
				methods++
			}
			if command != "" {
				methods++
			}
			if methods == 0 {
				return fmt.Errorf("%w: provide a JSON spec, --file, or --command", core.ErrInvalidSpec)
			}
			if methods > 1 {
				return fmt.Errorf("%w: choose one of JSON spec, --file, or --command", core.ErrInvalidSpec)
			}

			var spec queue.JobSpec
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("%w: read %s: %v", core.ErrInvalidSpec, file, err)
				}
				spec, err = queue.ParseSpec(data)
				if err != nil {
					return err
				}
			case len(args) == 1:
				var err error
				spec, err = queue.ParseSpec([]byte(args[0]))
				if err != nil {
					return err
				}
			default:
				spec = queue.JobSpec{
					ID:       jobID,
					Command:  command,
					Priority: priority,
					RunAt:    runAt,
				}
				if cmd.Flags().Changed("max-retries") {
					spec.MaxRetries = &maxRetries
				}
				if cmd.Flags().Changed("timeout") {
					spec.TimeoutSeconds = &timeout
				}
			}

			store, settings, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := queue.NewService(store, settings).Enqueue(ctx, spec)
			if err != nil {
				return err
			}
			fmt.Printf("Job enqueued successfully with ID: %s\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read job specification from a file")
	cmd.Flags().StringVar(&command, "command", "", "Command to execute (alternative to JSON)")
	cmd.Flags().StringVar(&jobID, "id", "", "Job ID (auto-generated if not provided)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority (higher runs first)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Maximum retry attempts")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Job timeout in seconds")
	cmd.Flags().StringVar(&runAt, "run-at", "", "Earliest run time (ISO-8601)")
	return cmd
}
