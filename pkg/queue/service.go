// Package queue implements the user-facing queue service: job validation and
// enqueue, the centralized retry-vs-deadletter failure handler, status
// aggregation, DLQ operations, and orphan recovery.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/krishnasharma4415/QueueCTL/pkg/config"
	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/security"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

// Service is a stateless facade over the store. It owns every job lifecycle
// decision; workers report outcomes but never decide retry policy themselves.
type Service struct {
	store    *storage.Store
	settings config.Settings
	logger   *slog.Logger
}

// NewService creates a queue service.
func NewService(store *storage.Store, settings config.Settings) *Service {
	return &Service{
		store:    store,
		settings: settings,
		logger:   slog.Default(),
	}
}

// WithLogger replaces the service logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *storage.Store {
	return s.store
}

// Enqueue validates a job specification, fills defaults, and inserts the job
// in the pending state. Returns the stored job.
func (s *Service) Enqueue(ctx context.Context, spec JobSpec) (*core.Job, error) {
	job, err := s.jobFromSpec(spec)
	if err != nil {
		return nil, err
	}
	if err := s.store.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job enqueued", "job_id", job.ID, "priority", job.Priority)
	return job, nil
}

func (s *Service) jobFromSpec(spec JobSpec) (*core.Job, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("%w: command is required", core.ErrInvalidSpec)
	}
	if len(spec.Command) > security.MaxCommandLength {
		return nil, fmt.Errorf("%w: command exceeds %d bytes", core.ErrInvalidSpec, security.MaxCommandLength)
	}

	id := spec.ID
	if id == "" {
		id = uuid.New().String()
	} else if err := security.ValidateJobID(id); err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", core.ErrInvalidSpec, spec.ID)
	}

	maxRetries := s.settings.MaxRetries
	if spec.MaxRetries != nil {
		if *spec.MaxRetries < 0 {
			return nil, fmt.Errorf("%w: max_retries must not be negative", core.ErrInvalidSpec)
		}
		maxRetries = security.ClampRetries(*spec.MaxRetries)
	}

	if spec.TimeoutSeconds != nil && *spec.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("%w: timeout_seconds must be positive", core.ErrInvalidSpec)
	}

	now := time.Now().UTC()
	job := &core.Job{
		ID:             id,
		Command:        spec.Command,
		State:          core.StatePending,
		Priority:       spec.Priority,
		Attempts:       0,
		MaxRetries:     maxRetries,
		TimeoutSeconds: spec.TimeoutSeconds,
		NextRunAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if spec.RunAt != "" {
		runAt, err := parseRunAt(spec.RunAt)
		if err != nil {
			return nil, err
		}
		runAt = runAt.UTC()
		job.RunAt = &runAt
		job.NextRunAt = runAt
	}
	return job, nil
}

// maxBackoffDelay bounds the exponential schedule so large attempt counts
// cannot overflow the delay arithmetic.
const maxBackoffDelay = 24 * time.Hour

// BackoffDelay computes the delay before a failed attempt becomes eligible
// again: base^attempt seconds, bounded by maxBackoffDelay.
func BackoffDelay(base, attempt int) time.Duration {
	if base < 1 {
		base = 1
	}
	delay := time.Second
	for i := 0; i < attempt; i++ {
		delay *= time.Duration(base)
		if delay >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	return delay
}

// HandleSuccess resolves a processing job as completed.
func (s *Service) HandleSuccess(ctx context.Context, job *core.Job) error {
	workerID := ""
	if job.WorkerID != nil {
		workerID = *job.WorkerID
	}
	if err := s.store.CompleteJob(ctx, job.ID, workerID); err != nil {
		return err
	}
	s.logger.Info("job completed", "job_id", job.ID, "attempts", job.Attempts+1)
	return nil
}

// HandleFailure is the single place that decides between retry and dead
// letter. The failing attempt is consumed either way: a job whose consumed
// attempts would exceed max_retries (that is, reach max_retries+1) moves to
// the DLQ, otherwise it returns to pending after an exponential backoff delay.
func (s *Service) HandleFailure(ctx context.Context, job *core.Job, errMsg string) error {
	workerID := ""
	if job.WorkerID != nil {
		workerID = *job.WorkerID
	}

	if job.Attempts+1 > job.MaxRetries {
		entry, err := s.store.FailAndDeadletter(ctx, job.ID, workerID, errMsg)
		if err != nil {
			return err
		}
		s.logger.Warn("job moved to DLQ",
			"job_id", job.ID,
			"dlq_id", entry.ID,
			"attempts", entry.Attempts,
			"error", errMsg)
		return nil
	}

	delay := BackoffDelay(s.settings.BackoffBase, job.Attempts+1)
	if err := s.store.FailAndRetry(ctx, job.ID, workerID, errMsg, delay); err != nil {
		return err
	}
	s.logger.Warn("job failed, retry scheduled",
		"job_id", job.ID,
		"attempt", job.Attempts+1,
		"max_retries", job.MaxRetries,
		"delay", delay,
		"error", errMsg)
	return nil
}

// RecoverOrphans releases jobs claimed by stale or vanished workers. Each
// interrupted attempt is consumed through the normal failure handler, so jobs
// with exhausted retries dead-letter instead of looping forever. Stale
// registry rows are removed afterwards. Returns the number of jobs released.
func (s *Service) RecoverOrphans(ctx context.Context, now time.Time) (int, error) {
	jobs, err := s.store.FindOrphanedJobs(ctx, now, s.settings.StaleWorkerTimeout)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		workerID := "unknown"
		if job.WorkerID != nil {
			workerID = *job.WorkerID
		}
		msg := fmt.Sprintf("Job recovered from stale worker %s", workerID)
		if err := s.HandleFailure(ctx, job, msg); err != nil {
			s.logger.Error("orphan recovery failed for job", "job_id", job.ID, "error", err)
			continue
		}
		recovered++
	}

	if _, err := s.store.DeleteStaleWorkers(ctx, now, s.settings.StaleWorkerTimeout); err != nil {
		return recovered, err
	}
	return recovered, nil
}

// List returns a filtered page of jobs.
func (s *Service) List(ctx context.Context, opts storage.ListOptions) ([]core.Job, error) {
	return s.store.ListJobs(ctx, opts)
}

// Status aggregates queue counts, live workers, and recent failures.
type Status struct {
	Counts         map[core.JobState]int64
	DLQ            int64
	Workers        []core.WorkerRecord
	RecentFailures []core.Job
}

// Status reports the queue's current shape.
func (s *Service) Status(ctx context.Context, now time.Time) (*Status, error) {
	counts, err := s.store.CountJobsByState(ctx)
	if err != nil {
		return nil, err
	}
	dlq, err := s.store.CountDLQ(ctx)
	if err != nil {
		return nil, err
	}
	workers, err := s.store.ActiveWorkers(ctx, now, s.settings.StaleWorkerTimeout)
	if err != nil {
		return nil, err
	}
	failures, err := s.store.RecentFailures(ctx, 3)
	if err != nil {
		return nil, err
	}
	return &Status{
		Counts:         counts,
		DLQ:            dlq,
		Workers:        workers,
		RecentFailures: failures,
	}, nil
}

// ListDLQ returns dead-letter entries, most recently moved first.
func (s *Service) ListDLQ(ctx context.Context, limit int) ([]core.DLQEntry, error) {
	return s.store.ListDLQ(ctx, limit)
}

// RetryDLQ replaces a dead-letter entry with a fresh pending job. The new
// job gets a fresh id unless sameID is set, zero attempts, and the default
// retry budget. Returns the new job id.
func (s *Service) RetryDLQ(ctx context.Context, dlqID string, sameID bool) (string, error) {
	newJobID := uuid.New().String()
	if sameID {
		entry, err := s.store.GetDLQEntry(ctx, dlqID)
		if err != nil {
			return "", err
		}
		newJobID = entry.OriginalJobID
	}
	job, err := s.store.RetryDLQ(ctx, dlqID, newJobID, s.settings.MaxRetries)
	if err != nil {
		return "", err
	}
	s.logger.Info("DLQ entry retried", "dlq_id", dlqID, "job_id", job.ID)
	return job.ID, nil
}

// PurgeDLQ deletes dead-letter entries older than the given number of days,
// or every entry when olderThanDays is nil.
func (s *Service) PurgeDLQ(ctx context.Context, olderThanDays *int) (int64, error) {
	var cutoff *time.Time
	if olderThanDays != nil {
		t := time.Now().UTC().AddDate(0, 0, -*olderThanDays)
		cutoff = &t
	}
	return s.store.PurgeDLQ(ctx, cutoff)
}
