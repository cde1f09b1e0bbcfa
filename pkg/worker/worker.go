// Package worker implements the claim-execute-resolve loop run by each
// worker process, including registration, heartbeats, and child-process
// supervision of the job commands themselves.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/krishnasharma4415/QueueCTL/pkg/config"
	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/queue"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

// Worker is a single worker process's runtime. It claims one job at a time;
// the claimed job's command runs in a child process under a timeout watcher.
type Worker struct {
	id       string
	store    *storage.Store
	service  *queue.Service
	settings config.Settings
	logger   *slog.Logger
}

// New creates a worker with a fresh worker id.
func New(store *storage.Store, service *queue.Service, settings config.Settings) *Worker {
	u := uuid.New()
	id := fmt.Sprintf("worker-%x", u[:4])
	return &Worker{
		id:       id,
		store:    store,
		service:  service,
		settings: settings,
		logger:   slog.Default().With("worker_id", id),
	}
}

// WithLogger replaces the worker logger.
func (w *Worker) WithLogger(logger *slog.Logger) *Worker {
	w.logger = logger.With("worker_id", w.id)
	return w
}

// ID returns the worker's registry identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run executes the worker loop until ctx is cancelled. Shutdown is
// cooperative: an in-flight job finishes (bounded by its own timeout) before
// the worker unregisters and returns.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.register(ctx); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	defer w.unregister()

	// The heartbeat runs on its own context so liveness stays fresh while a
	// shutdown waits on the in-flight job.
	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go w.runHeartbeat(hbCtx)

	w.logger.Info("worker started", "pid", os.Getpid(), "hostname", hostname())

	w.sweepOrphans(ctx)
	lastSweep := time.Now()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return nil
		default:
		}

		if time.Since(lastSweep) >= w.settings.StaleWorkerTimeout {
			w.sweepOrphans(ctx)
			lastSweep = time.Now()
		}

		job, err := w.store.ClaimNext(ctx, w.id, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("claim failed", "error", err)
			w.idle(ctx)
			continue
		}
		if job == nil {
			w.idle(ctx)
			continue
		}

		w.execute(job)
	}
}

// idle sleeps for the poll interval or until shutdown.
func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.settings.PollInterval):
	}
}

// sweepOrphans releases jobs stranded by stale or vanished workers so they
// do not sit in processing until the next worker restart.
func (w *Worker) sweepOrphans(ctx context.Context) {
	n, err := w.service.RecoverOrphans(ctx, time.Now().UTC())
	if err != nil {
		w.logger.Error("orphan recovery failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("recovered orphaned jobs", "count", n)
	}
}

func (w *Worker) register(ctx context.Context) error {
	now := time.Now().UTC()
	record := &core.WorkerRecord{
		WorkerID:        w.id,
		PID:             os.Getpid(),
		Hostname:        hostname(),
		Version:         core.Version,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}
	if err := w.store.RegisterWorker(ctx, record); err != nil {
		return err
	}
	w.logger.Info("worker registered")
	return nil
}

func (w *Worker) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.UnregisterWorker(ctx, w.id); err != nil {
		w.logger.Error("unregister failed", "error", err)
		return
	}
	w.logger.Info("worker unregistered")
}

// runHeartbeat refreshes the registry timestamp every heartbeat interval for
// the worker's whole lifetime, so a worker stuck in a long job is not
// mistaken for dead.
func (w *Worker) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.settings.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, w.id, time.Now().UTC()); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
