package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

const (
	// termGrace is how long a timed-out child gets between SIGTERM and the
	// forced kill.
	termGrace = 3 * time.Second

	// maxCapturedStderr bounds in-memory stderr capture; stored errors are
	// truncated further by the store.
	maxCapturedStderr = 8 << 10
)

// execute runs a claimed job's command in a child shell and resolves the
// outcome through the queue service. Execution is deliberately not bound to
// the worker's shutdown context; only the job timeout can interrupt it.
func (w *Worker) execute(job *core.Job) {
	start := time.Now()

	timeout := job.Timeout()
	if timeout == 0 {
		timeout = w.settings.DefaultTimeout
	}

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	w.logger.Info("executing job", "job_id", job.ID, "command", job.Command, "attempt", job.Attempts+1)

	stderr := &capBuffer{max: maxCapturedStderr}
	cmd := exec.CommandContext(ctx, "sh", "-c", job.Command)
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		// terminate first; WaitDelay force-kills anything that survives
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	err := cmd.Run()
	duration := time.Since(start)

	switch {
	case err == nil:
		if cerr := w.service.HandleSuccess(context.Background(), job); cerr != nil {
			w.logger.Error("failed to mark job completed", "job_id", job.ID, "error", cerr)
			return
		}
		w.logger.Info("job succeeded", "job_id", job.ID, "duration", duration)

	case ctx.Err() == context.DeadlineExceeded:
		msg := fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))
		w.resolveFailure(job, msg, duration)

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("Command failed with exit code %d", exitErr.ExitCode())
			if s := strings.TrimSpace(stderr.String()); s != "" {
				msg += ": " + s
			}
			w.resolveFailure(job, msg, duration)
		} else {
			w.resolveFailure(job, fmt.Sprintf("Execution error: %v", err), duration)
		}
	}
}

// resolveFailure hands the failed attempt to the centralized handler. The
// worker never decides retry-vs-deadletter itself.
func (w *Worker) resolveFailure(job *core.Job, msg string, duration time.Duration) {
	w.logger.Warn("job attempt failed", "job_id", job.ID, "duration", duration, "error", msg)
	if err := w.service.HandleFailure(context.Background(), job, msg); err != nil {
		w.logger.Error("failed to resolve job failure", "job_id", job.ID, "error", err)
	}
}

// capBuffer collects writes up to a fixed capacity and discards the rest.
type capBuffer struct {
	max int
	buf []byte
}

func (b *capBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *capBuffer) String() string {
	return string(b.buf)
}
